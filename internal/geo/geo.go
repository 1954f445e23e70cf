// Package geo wraps the orb primitives used for catalogue filtering:
// bounding boxes for server-side queries and exact containment for the
// client-side pass.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// WorldBound covers the full lon/lat domain, used when no region of
// interest is configured.
var WorldBound = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// Bound returns the bounding box of geom, or WorldBound for nil.
func Bound(geom orb.Geometry) orb.Bound {
	if geom == nil {
		return WorldBound
	}
	return geom.Bound()
}

// Contains reports whether g lies within region. Points must fall inside;
// multipoints must have every point inside. A nil region contains
// everything; a nil geometry is never contained. Regions other than
// polygons fall back to bound containment.
func Contains(region, g orb.Geometry) bool {
	if region == nil {
		return true
	}
	if g == nil {
		return false
	}
	switch v := g.(type) {
	case orb.Point:
		return pointIn(region, v)
	case orb.MultiPoint:
		if len(v) == 0 {
			return false
		}
		for _, p := range v {
			if !pointIn(region, p) {
				return false
			}
		}
		return true
	default:
		return region.Bound().Contains(g.Bound().Min) && region.Bound().Contains(g.Bound().Max)
	}
}

func pointIn(region orb.Geometry, p orb.Point) bool {
	switch r := region.(type) {
	case orb.Polygon:
		return planar.PolygonContains(r, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(r, p)
	case orb.Bound:
		return r.Contains(p)
	default:
		return region.Bound().Contains(p)
	}
}
