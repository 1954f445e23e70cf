package geo

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LoadRegion reads a region of interest from a GeoJSON file. Accepts a
// bare geometry, a feature, or a feature collection (first feature wins).
func LoadRegion(path string) (orb.Geometry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if fc, err := geojson.UnmarshalFeatureCollection(raw); err == nil && len(fc.Features) > 0 {
		return fc.Features[0].Geometry, nil
	}
	if f, err := geojson.UnmarshalFeature(raw); err == nil {
		return f.Geometry, nil
	}
	if g, err := geojson.UnmarshalGeometry(raw); err == nil {
		return g.Geometry(), nil
	}
	return nil, fmt.Errorf("region file %s holds no usable GeoJSON geometry", path)
}
