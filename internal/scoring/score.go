package scoring

import (
	"time"

	"github.com/sells-group/placepulse/internal/model"
)

// Event is a single weighted event, aged in days.
type Event struct {
	DaysAgo float64
	Weight  float64
}

// ComputeScore sums the decayed weights of events. An empty list scores 0.
// The result may be negative; clamping happens at persistence.
func ComputeScore(events []Event, halfLifeDays float64) float64 {
	var score float64
	for _, e := range events {
		score += Decay(e.Weight, e.DaysAgo, halfLifeDays)
	}
	return score
}

// Weights maps event kinds to their score weight.
type Weights map[model.EventKind]float64

// DefaultWeights returns the stock event weights.
func DefaultWeights() Weights {
	return Weights{
		model.EventEndorsement: 1.0,
		model.EventRenewal:     0.6,
		model.EventDownvote:    -1.0,
	}
}

// Config holds decay parameters.
type Config struct {
	HalfLifeDays float64
	Weights      Weights
}

// Weight returns the configured weight for kind, or 0 if unset.
func (c Config) Weight(kind model.EventKind) float64 {
	return c.Weights[kind]
}

// Roll updates a stored score incrementally: the previous score is decayed
// from its last update to now, and only the triggering event is added.
func (c Config) Roll(prev float64, prevAt, now time.Time, kind model.EventKind) float64 {
	decayed := 0.0
	if prev > 0 && !prevAt.IsZero() {
		decayed = Decay(prev, DaysBetween(prevAt, now), c.HalfLifeDays)
	}
	trigger := ComputeScore([]Event{{DaysAgo: 0, Weight: c.Weight(kind)}}, c.HalfLifeDays)
	return Clamp(decayed + trigger)
}

// FromHistory recomputes a score from a complete event history.
func (c Config) FromHistory(entries []model.EventEntry, now time.Time) float64 {
	return c.FromLog(&model.EventLog{Events: entries}, now)
}

// FromLog recomputes a score from a retained history plus the weight already
// folded out of it.
func (c Config) FromLog(log *model.EventLog, now time.Time) float64 {
	events := make([]Event, 0, len(log.Events)+1)
	for _, e := range log.Events {
		events = append(events, Event{DaysAgo: DaysBetween(e.At, now), Weight: c.Weight(e.Kind)})
	}
	if log.Folded != 0 {
		events = append(events, Event{DaysAgo: DaysBetween(log.FoldedAt, now), Weight: log.Folded})
	}
	return Clamp(ComputeScore(events, c.HalfLifeDays))
}

// Fold moves entries older than cutoff out of log.Events into log.Folded,
// decayed to now. It returns the number of entries folded.
func (c Config) Fold(log *model.EventLog, cutoff, now time.Time) int {
	keep := log.Events[:0]
	folded := []Event{{DaysAgo: DaysBetween(log.FoldedAt, now), Weight: log.Folded}}
	for _, e := range log.Events {
		if e.At.Before(cutoff) {
			folded = append(folded, Event{DaysAgo: DaysBetween(e.At, now), Weight: c.Weight(e.Kind)})
			continue
		}
		keep = append(keep, e)
	}
	n := len(folded) - 1
	if n == 0 {
		return 0
	}
	log.Events = keep
	log.Folded = ComputeScore(folded, c.HalfLifeDays)
	log.FoldedAt = now
	return n
}

// FromCounters approximates a score from aggregate counters when no event
// history is retained: recent endorsements are aged from the last
// endorsement, older ones from creation, downvotes from the last update.
func (c Config) FromCounters(p *model.Place, now time.Time) float64 {
	recent := p.RecentEndorsements
	if recent > p.TotalEndorsements {
		recent = p.TotalEndorsements
	}
	older := p.TotalEndorsements - recent
	w := c.Weight(model.EventEndorsement)
	events := []Event{
		{DaysAgo: DaysBetween(p.LastEndorsedAt, now), Weight: float64(recent) * w},
		{DaysAgo: DaysBetween(p.CreatedAt, now), Weight: float64(older) * w},
		{DaysAgo: DaysBetween(p.UpdatedAt, now), Weight: float64(p.Downvotes) * c.Weight(model.EventDownvote)},
	}
	return Clamp(ComputeScore(events, c.HalfLifeDays))
}

// Clamp floors a score at zero.
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	return score
}
