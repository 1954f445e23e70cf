package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func TestContainsPoint(t *testing.T) {
	region := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	if !Contains(region, orb.Point{5, 5}) {
		t.Error("interior point should be contained")
	}
	if Contains(region, orb.Point{15, 5}) {
		t.Error("exterior point should not be contained")
	}
	if !Contains(nil, orb.Point{200, 0}) {
		t.Error("nil region contains everything")
	}
}

func TestContainsMultiPoint(t *testing.T) {
	region := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	allIn := orb.MultiPoint{{1, 1}, {9, 9}}
	if !Contains(region, allIn) {
		t.Error("all points inside: contained")
	}
	partial := orb.MultiPoint{{1, 1}, {50, 50}}
	if Contains(region, partial) {
		t.Error("one point outside: not contained")
	}
}

func TestBound(t *testing.T) {
	if got := Bound(nil); got != WorldBound {
		t.Errorf("nil geometry: %v", got)
	}
	region := orb.Polygon{{{2, 3}, {8, 3}, {8, 7}, {2, 7}, {2, 3}}}
	b := Bound(region)
	if b.Min != (orb.Point{2, 3}) || b.Max != (orb.Point{8, 7}) {
		t.Errorf("bound: %v", b)
	}
}

func TestLoadRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roi.geojson")
	doc := `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]},"properties":{}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadRegion(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(orb.Polygon); !ok {
		t.Fatalf("expected polygon, got %T", g)
	}
}
