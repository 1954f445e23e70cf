// Package config wires runtime settings from the environment (with .env
// support) and the portal selection from a YAML file. Credentials stay in
// the environment; the YAML file only says what to sync.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultCacheDir       = "hydrosync_cache"
	defaultPortalsFile    = "portals.yaml"
	defaultRequestTimeout = 120 * time.Second
)

// Config holds environment-driven settings shared by the commands.
type Config struct {
	DatabaseURL    string
	CacheDir       string
	PortalsFile    string
	RequestTimeout time.Duration
	Force          bool
	Port           string

	DahitiAPIKey   string
	HydrosatUser   string
	HydrosatPass   string
	HydrowebAPIKey string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	cfg.CacheDir = strings.TrimSpace(os.Getenv("HYDROSYNC_CACHE_DIR"))
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir
	}

	cfg.PortalsFile = strings.TrimSpace(os.Getenv("HYDROSYNC_PORTALS"))
	if cfg.PortalsFile == "" {
		cfg.PortalsFile = defaultPortalsFile
	}

	cfg.RequestTimeout = defaultRequestTimeout
	if v := strings.TrimSpace(os.Getenv("HYDROSYNC_REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid HYDROSYNC_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	force := strings.TrimSpace(os.Getenv("HYDROSYNC_FORCE_REFRESH"))
	cfg.Force = force == "1" || strings.EqualFold(force, "true")

	cfg.Port = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	cfg.DahitiAPIKey = os.Getenv("DAHITI_API_KEY")
	cfg.HydrosatUser = os.Getenv("HYDROSAT_USER")
	cfg.HydrosatPass = os.Getenv("HYDROSAT_PASS")
	cfg.HydrowebAPIKey = os.Getenv("HYDROWEB_API_KEY")

	return cfg, nil
}

// ListenAddr formats the HTTP bind address for the API service.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

// Portals selects which portals and products one run synchronizes.
type Portals struct {
	// RegionFile points to an optional GeoJSON region of interest.
	RegionFile string `yaml:"region_file"`

	Dahiti struct {
		Enabled  bool     `yaml:"enabled"`
		Products []string `yaml:"products"`
	} `yaml:"dahiti"`

	Hydrosat struct {
		Enabled  bool     `yaml:"enabled"`
		Products []string `yaml:"products"`
	} `yaml:"hydrosat"`

	Hydroweb struct {
		Enabled     bool     `yaml:"enabled"`
		Collections []string `yaml:"collections"`
	} `yaml:"hydroweb"`
}

// DefaultPortals enables every portal with its standard product set.
func DefaultPortals() Portals {
	var p Portals
	p.Dahiti.Enabled = true
	p.Dahiti.Products = []string{"water_level_altimetry"}
	p.Hydrosat.Enabled = true
	p.Hydrosat.Products = []string{"WL"}
	p.Hydroweb.Enabled = true
	p.Hydroweb.Collections = []string{"HYDROWEB_LAKES_OPE", "HYDROWEB_RIVERS_OPE"}
	return p
}

// LoadPortals reads the YAML portal selection; a missing file falls back
// to DefaultPortals.
func LoadPortals(path string) (Portals, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPortals(), nil
	}
	if err != nil {
		return Portals{}, err
	}
	var p Portals
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Portals{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}
