package api

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/placepulse/internal/model"
)

// featureCollection renders places as GeoJSON points with their counters as
// properties.
func featureCollection(list []model.Place) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(list))}
	for _, p := range list {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       p.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}),
			Properties: map[string]any{
				"name":                p.Name,
				"category":            p.Category,
				"score":               p.Score,
				"total_endorsements":  p.TotalEndorsements,
				"recent_endorsements": p.RecentEndorsements,
				"downvotes":           p.Downvotes,
				"last_endorsed_at":    p.LastEndorsedAt,
			},
		})
	}
	b, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "api: encode geojson")
	}
	return b, nil
}
