package geocache

import (
	"fmt"
	"math"
)

// Bucket precisions in decimal places. Four decimals is roughly 11 m of
// latitude, three is roughly 111 m.
const (
	FinePrecision   = 4
	CoarsePrecision = 3
)

const earthRadiusMeters = 6371008.8

// FineKey returns the fine bucket key for a coordinate.
func FineKey(lat, lon float64) string {
	return bucketKey(lat, lon, FinePrecision)
}

// CoarseKey returns the coarse bucket key for a coordinate.
func CoarseKey(lat, lon float64) string {
	return bucketKey(lat, lon, CoarsePrecision)
}

func bucketKey(lat, lon float64, precision int) string {
	return fmt.Sprintf("%.*f,%.*f", precision, round(lat, precision), precision, round(lon, precision))
}

// round rounds half away from zero and folds -0 into 0 so both sides of the
// equator and meridian never produce "-0.000" keys.
func round(v float64, precision int) float64 {
	p := math.Pow10(precision)
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}

// ValidCoordinate reports whether lat/lon is a finite WGS84 coordinate.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
