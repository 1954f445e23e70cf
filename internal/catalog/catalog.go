// Package catalog caches per-portal catalogue snapshots as GeoJSON files
// with a time-to-live freshness rule, so repeated runs inside the TTL
// window never re-query the portal's expensive listing endpoints.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ITC-Water-Resources/hydrosync/internal/geo"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
)

// DefaultTTL is how long a snapshot file is trusted before a refresh hits
// the portal again.
const DefaultTTL = 24 * time.Hour

// ErrNoSnapshot is returned by Load when no cache file exists yet.
var ErrNoSnapshot = errors.New("no cached catalogue snapshot")

// FetchFunc retrieves the full current target listing from the portal.
type FetchFunc func(ctx context.Context) ([]portal.Target, error)

// Snapshot is one cached catalogue listing.
type Snapshot struct {
	Targets     []portal.Target
	RefreshedAt time.Time
}

// List filters the snapshot in memory: geometric containment when region
// is non-nil and product-label match when product is non-empty. It never
// triggers a network call.
func (s *Snapshot) List(region orb.Geometry, product string) []portal.Target {
	out := make([]portal.Target, 0, len(s.Targets))
	for _, t := range s.Targets {
		if region != nil && !geo.Contains(region, t.Geometry) {
			continue
		}
		if product != "" && !t.HasProduct(product) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Cache manages one portal's snapshot file.
type Cache struct {
	path  string
	ttl   time.Duration
	fetch FetchFunc
	log   *slog.Logger
}

// New builds a cache writing to path. A zero ttl means DefaultTTL.
func New(path string, ttl time.Duration, fetch FetchFunc, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{path: path, ttl: ttl, fetch: fetch, log: log}
}

// Fresh reports whether the cache file exists and its modification time is
// within the TTL window.
func (c *Cache) Fresh() bool {
	info, err := os.Stat(c.path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < c.ttl
}

// Load reads the snapshot file without any network activity. Returns
// ErrNoSnapshot when the file is absent.
func (c *Cache) Load() (*Snapshot, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", c.path, err)
	}
	targets := make([]portal.Target, 0, len(fc.Features))
	for _, f := range fc.Features {
		targets = append(targets, featureToTarget(f))
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Targets: targets, RefreshedAt: info.ModTime()}, nil
}

// Refresh returns the current snapshot, reusing the cache file when it is
// still fresh (unless force is set) and otherwise fetching from the portal
// and rewriting the file.
func (c *Cache) Refresh(ctx context.Context, force bool) (*Snapshot, error) {
	if !force && c.Fresh() {
		c.log.Debug("reusing cached catalogue", "path", c.path)
		return c.Load()
	}

	targets, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Targets: targets, RefreshedAt: time.Now()}
	if err := c.save(snap); err != nil {
		return nil, err
	}
	c.log.Info("catalogue refreshed", "path", c.path, "targets", len(targets))
	return snap, nil
}

func (c *Cache) save(snap *Snapshot) error {
	fc := geojson.NewFeatureCollection()
	for _, t := range snap.Targets {
		fc.Append(targetToFeature(t))
	}
	raw, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

const stampLayout = "2006-01-02T15:04:05.000Z07:00"

func targetToFeature(t portal.Target) *geojson.Feature {
	f := geojson.NewFeature(t.Geometry)
	f.Properties["id"] = t.ID
	f.Properties["title"] = t.Title
	f.Properties["products"] = t.Products
	if !t.LastUpdate.IsZero() {
		f.Properties["lastupdate"] = t.LastUpdate.UTC().Format(stampLayout)
	}
	if !t.TStart.IsZero() {
		f.Properties["tstart"] = t.TStart.UTC().Format(stampLayout)
	}
	if !t.TEnd.IsZero() {
		f.Properties["tend"] = t.TEnd.UTC().Format(stampLayout)
	}
	for k, v := range t.Extra {
		f.Properties["x_"+k] = v
	}
	return f
}

func featureToTarget(f *geojson.Feature) portal.Target {
	t := portal.Target{
		Geometry: f.Geometry,
		Extra:    make(map[string]string),
	}
	for k, v := range f.Properties {
		switch k {
		case "id":
			t.ID, _ = v.(string)
		case "title":
			t.Title, _ = v.(string)
		case "products":
			t.Products = toStrings(v)
		case "lastupdate":
			t.LastUpdate = parseStamp(v)
		case "tstart":
			t.TStart = parseStamp(v)
		case "tend":
			t.TEnd = parseStamp(v)
		default:
			if len(k) > 2 && k[:2] == "x_" {
				if s, ok := v.(string); ok {
					t.Extra[k[2:]] = s
				}
			}
		}
	}
	return t
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func parseStamp(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(stampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
