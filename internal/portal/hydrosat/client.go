// Package hydrosat talks to the legacy Hydrosat map service: cookie
// login, a catalogue scraped from two HTML pages, and gzip text downloads
// per target.
package hydrosat

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/ITC-Water-Resources/hydrosync/internal/catalog"
	"github.com/ITC-Water-Resources/hydrosync/internal/format"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
)

const defaultRootURL = "https://hydrosat.gis.uni-stuttgart.de"

// Client scrapes and downloads from the Hydrosat service. All fetched
// documents are cached on disk under cacheDir with a 24h TTL.
type Client struct {
	rootURL  string
	user     string
	pass     string
	cacheDir string
	ttl      time.Duration
	http     *http.Client
	log      *slog.Logger
	cache    *catalog.Cache
	loggedIn bool
}

// New builds a client. The http client gains a cookie jar for the login
// session when it has none.
func New(user, pass, cacheDir string, httpClient *http.Client, log *slog.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}
	c := &Client{
		rootURL:  defaultRootURL,
		user:     user,
		pass:     pass,
		cacheDir: cacheDir,
		ttl:      catalog.DefaultTTL,
		http:     httpClient,
		log:      log,
	}
	c.cache = catalog.New(filepath.Join(cacheDir, "hydrosat_holdings.geojson"), c.ttl, c.fetchInventory, log)
	return c, nil
}

// WithRootURL overrides the service root, used by tests.
func (c *Client) WithRootURL(root string) *Client {
	c.rootURL = strings.TrimSuffix(root, "/")
	return c
}

// Catalog exposes the snapshot cache backing this client, so the sync
// jobs share it instead of stacking a second cache on top.
func (c *Client) Catalog() *catalog.Cache { return c.cache }

// Login establishes the cookie session used for data downloads.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{"email": {c.user}, "pass": {c.pass}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rootURL+"/php/ajax.php?r=200", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hydrosat login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &portal.AuthError{Portal: "hydrosat", Detail: fmt.Sprintf("login status %s", resp.Status)}
	}
	c.loggedIn = true
	return nil
}

func (c *Client) ensureLogin(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	return c.Login(ctx)
}

// fetchInventory scrapes both catalogue pages and joins their records.
// The map page carries the markers (geometry, title, icon-coded product);
// the search page carries the hyd_no linkage. Rows present in only one
// page are dropped.
func (c *Client) fetchInventory(ctx context.Context) ([]portal.Target, error) {
	mapDoc, err := c.fetchDocument(ctx, c.rootURL+"/php/index.php", "hydrosat.html")
	if err != nil {
		return nil, err
	}
	_, markers, err := scanDocument(strings.NewReader(mapDoc))
	if err != nil {
		return nil, fmt.Errorf("hydrosat map page: %w", err)
	}

	searchDoc, err := c.fetchDocument(ctx, c.rootURL+"/php/ajax.php?r=4.2&title=", "hydrosat_search.html")
	if err != nil {
		return nil, err
	}
	search, _, err := scanDocument(strings.NewReader(searchDoc))
	if err != nil {
		return nil, fmt.Errorf("hydrosat search page: %w", err)
	}

	return joinInventory(search, markers), nil
}

// joinInventory is the inner join of search and map records on
// (current_id, data_type, source_id).
func joinInventory(search []searchRecord, markers []mapRecord) []portal.Target {
	type joinKey struct {
		currentID int
		dataType  string
		sourceID  int
	}
	byKey := make(map[joinKey]mapRecord, len(markers))
	for _, m := range markers {
		byKey[joinKey{m.CurrentID, m.DataType, m.SourceID}] = m
	}

	targets := make([]portal.Target, 0, len(search))
	for _, s := range search {
		m, ok := byKey[joinKey{s.CurrentID, s.DataType, s.SourceID}]
		if !ok {
			continue
		}
		targets = append(targets, portal.Target{
			ID:       strconv.FormatInt(s.HydNo, 10),
			Title:    m.Title,
			Geometry: orb.Point{m.Lon, m.Lat},
			Products: []string{s.DataType},
			Extra: map[string]string{
				"current_id": strconv.Itoa(s.CurrentID),
				"source_id":  strconv.Itoa(s.SourceID),
			},
		})
	}
	return targets
}

// fetchDocument returns the page body, reusing the cached copy while it
// is within the TTL window.
func (c *Client) fetchDocument(ctx context.Context, pageURL, name string) (string, error) {
	path := filepath.Join(c.cacheDir, name)
	if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) < c.ttl {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("hydrosat fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hydrosat fetch %s: status %s", name, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return string(raw), nil
}

// ListTargets serves from the snapshot cache, refreshing it when stale.
func (c *Client) ListTargets(ctx context.Context, geom orb.Geometry) ([]portal.Target, error) {
	snap, err := c.cache.Refresh(ctx, false)
	if err != nil {
		return nil, err
	}
	return snap.List(geom, ""), nil
}

// GetByProduct downloads one target's gzip text product. Absence from the
// catalogue and HTTP 404 both mean not-found.
func (c *Client) GetByProduct(ctx context.Context, id, product string) portal.FetchResult {
	snap, err := c.cache.Refresh(ctx, false)
	if err != nil {
		return portal.Failed(err)
	}
	found := false
	for _, t := range snap.Targets {
		if t.ID == id && t.HasProduct(product) {
			found = true
			break
		}
	}
	if !found {
		return portal.NotFound(fmt.Errorf("hydrosat %s/%s: %w", id, product, portal.ErrNotFound))
	}

	path := filepath.Join(c.cacheDir, id+".gz")
	if info, err := os.Stat(path); err != nil || time.Since(info.ModTime()) >= c.ttl {
		if res := c.download(ctx, id, path); res != nil {
			return *res
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return portal.Failed(err)
	}
	defer f.Close()

	header, series, err := format.ParseHydrosat(f)
	if err != nil {
		return portal.Failed(err)
	}
	return portal.OK(header, series)
}

// download fetches and stores one gzip-compressed payload; a non-nil
// result is the terminal outcome for the caller.
func (c *Client) download(ctx context.Context, id, path string) *portal.FetchResult {
	fail := func(res portal.FetchResult) *portal.FetchResult { return &res }

	if err := c.ensureLogin(ctx); err != nil {
		return fail(portal.Failed(err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.rootURL+"/data/download/"+id+".txt", nil)
	if err != nil {
		return fail(portal.Failed(err))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fail(portal.Failed(fmt.Errorf("hydrosat download %s: %w", id, err)))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fail(portal.NotFound(fmt.Errorf("hydrosat %s: %w", id, portal.ErrNotFound)))
	case resp.StatusCode != http.StatusOK:
		return fail(portal.Failed(fmt.Errorf("hydrosat download %s: status %s", id, resp.Status)))
	}

	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return fail(portal.Failed(err))
	}
	f, err := os.Create(path)
	if err != nil {
		return fail(portal.Failed(err))
	}
	gz := gzip.NewWriter(f)
	if _, err := io.Copy(gz, resp.Body); err != nil {
		f.Close()
		return fail(portal.Failed(err))
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return fail(portal.Failed(err))
	}
	if err := f.Close(); err != nil {
		return fail(portal.Failed(err))
	}
	return nil
}
