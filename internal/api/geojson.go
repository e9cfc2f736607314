package api

import (
	"github.com/mr1hm/go-arrival-alert/internal/tracker"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON builds the document the map surface renders: the current
// position and the destination as point features, with the distance and
// alert state attached to the destination.
func toGeoJSON(st tracker.Status) FeatureCollection {
	features := make([]Feature, 0, 2)

	if st.Position != nil {
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{st.Position.Lon, st.Position.Lat},
			},
			Properties: map[string]any{
				"role": "position",
			},
		})
	}

	if st.Destination != nil {
		props := map[string]any{
			"role":  "destination",
			"state": st.State.String(),
		}
		if st.HasDistance {
			props["distance_km"] = st.DistanceKm
		}
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{st.Destination.Lon, st.Destination.Lat},
			},
			Properties: props,
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
