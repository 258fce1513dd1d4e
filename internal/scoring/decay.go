// Package scoring computes decayed popularity scores from weighted events.
package scoring

import (
	"math"
	"time"
)

// DaysBetween returns the fractional number of days from "from" to "to".
// A zero "from" is treated as infinitely old.
func DaysBetween(from, to time.Time) float64 {
	if from.IsZero() {
		return math.Inf(1)
	}
	return to.Sub(from).Hours() / 24
}

// Decay computes the contribution of one event.
// Formula: weight * 0.5^(daysAgo / halfLifeDays)
// Events in the future count as happening now. A non-positive half-life
// disables decay.
func Decay(weight, daysAgo, halfLifeDays float64) float64 {
	if weight == 0 {
		return 0
	}
	if daysAgo <= 0 || halfLifeDays <= 0 {
		return weight
	}
	if math.IsInf(daysAgo, 1) {
		return 0
	}
	return weight * math.Pow(0.5, daysAgo/halfLifeDays)
}
