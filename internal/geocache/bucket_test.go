package geocache

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketKeys(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		fine     string
		coarse   string
	}{
		{"cape town", -33.9249, 18.4241, "-33.9249,18.4241", "-33.925,18.424"},
		{"rounds to nearest", 40.71236, -74.00606, "40.7124,-74.0061", "40.712,-74.006"},
		{"negative zero folded", -0.00001, -0.00004, "0.0000,0.0000", "0.000,0.000"},
		{"extremes", 90, -180, "90.0000,-180.0000", "90.000,-180.000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fine, FineKey(tt.lat, tt.lon))
			assert.Equal(t, tt.coarse, CoarseKey(tt.lat, tt.lon))
		})
	}
}

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0, Haversine(capeTownLat, capeTownLon, capeTownLat, capeTownLon), 1e-9)
	assert.InDelta(t, 111195, Haversine(0, 0, 1, 0), 10)

	d := Haversine(capeTownLat, capeTownLon, -33.9252, 18.4244)
	assert.Greater(t, d, 30.0)
	assert.Less(t, d, 50.0)

	assert.InDelta(t, 300, Haversine(capeTownLat, capeTownLon, -33.9276, capeTownLon), 5)
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(capeTownLat, capeTownLon))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(90.1, 0))
	assert.False(t, ValidCoordinate(0, -180.5))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
	assert.False(t, ValidCoordinate(0, math.Inf(1)))
}
