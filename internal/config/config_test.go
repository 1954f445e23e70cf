package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hydrosync")
	t.Setenv("HYDROSYNC_CACHE_DIR", "")
	t.Setenv("HYDROSYNC_FORCE_REFRESH", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheDir != "hydrosync_cache" || cfg.PortalsFile != "portals.yaml" {
		t.Errorf("defaults: %+v", cfg)
	}
	if !cfg.Force {
		t.Error("force flag not picked up")
	}
}

func TestLoadPortalsMissingFileUsesDefaults(t *testing.T) {
	p, err := LoadPortals(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Dahiti.Enabled || !p.Hydrosat.Enabled || !p.Hydroweb.Enabled {
		t.Errorf("defaults should enable all portals: %+v", p)
	}
	if len(p.Hydroweb.Collections) != 2 {
		t.Errorf("default collections: %v", p.Hydroweb.Collections)
	}
}

func TestLoadPortalsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portals.yaml")
	doc := `region_file: roi.geojson
dahiti:
  enabled: true
  products: [water_level_altimetry]
hydrosat:
  enabled: false
hydroweb:
  enabled: true
  collections: [HYDROWEB_LAKES_RESEARCH]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPortals(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.RegionFile != "roi.geojson" {
		t.Errorf("region file: %q", p.RegionFile)
	}
	if p.Hydrosat.Enabled {
		t.Error("hydrosat should be disabled")
	}
	if len(p.Hydroweb.Collections) != 1 || p.Hydroweb.Collections[0] != "HYDROWEB_LAKES_RESEARCH" {
		t.Errorf("collections: %v", p.Hydroweb.Collections)
	}
}
