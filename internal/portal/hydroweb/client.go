// Package hydroweb talks to the Hydroweb-next STAC catalogue. STAC is
// plain JSON over HTTP, so the client speaks it directly: collection
// lookup (memoized), item listing or bbox search with link-based paging,
// and a single-asset download per item.
package hydroweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ITC-Water-Resources/hydrosync/internal/format"
	"github.com/ITC-Water-Resources/hydrosync/internal/geo"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
	"github.com/ITC-Water-Resources/hydrosync/internal/timeseries"
)

const defaultRootURL = "https://hydroweb.next.theia-land.fr/api/v1/rs-catalog/stac"

// Collections available on the portal: lakes and rivers, each in a
// research and an operational variant.
var Collections = []string{
	"HYDROWEB_RIVERS_RESEARCH",
	"HYDROWEB_RIVERS_OPE",
	"HYDROWEB_LAKES_RESEARCH",
	"HYDROWEB_LAKES_OPE",
}

const pageLimit = 500

// Client serves one Hydroweb-next collection.
type Client struct {
	rootURL      string
	collectionID string
	apiKey       string
	http         *http.Client
	log          *slog.Logger

	// collection lookup is memoized for the client's lifetime
	collection *stacCollection
}

// New builds a client for one of the four known collections.
func New(collectionID, apiKey string, httpClient *http.Client, log *slog.Logger) (*Client, error) {
	known := false
	for _, id := range Collections {
		if id == collectionID {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("hydroweb collection %q: must be one of %v", collectionID, Collections)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		rootURL:      defaultRootURL,
		collectionID: collectionID,
		apiKey:       apiKey,
		http:         httpClient,
		log:          log,
	}, nil
}

// WithRootURL overrides the STAC root, used by tests.
func (c *Client) WithRootURL(root string) *Client {
	c.rootURL = strings.TrimSuffix(root, "/")
	return c
}

type stacLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type stacCollection struct {
	ID string `json:"id"`
}

type stacAsset struct {
	Href string `json:"href"`
}

type stacItem struct {
	ID         string           `json:"id"`
	Geometry   json.RawMessage  `json:"geometry"`
	Properties struct {
		StartDatetime time.Time `json:"start_datetime"`
		EndDatetime   time.Time `json:"end_datetime"`
	} `json:"properties"`
	Assets map[string]stacAsset `json:"assets"`
}

type stacItemPage struct {
	Features []stacItem `json:"features"`
	Links    []stacLink `json:"links"`
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("hydroweb %s: %w", rawURL, portal.ErrRateLimited)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("hydroweb %s: %w", rawURL, portal.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hydroweb %s: status %s: %s", rawURL, resp.Status, detail)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ensureCollection resolves the collection once per client lifetime. A
// lookup failure is reported as rate limiting: the portal answers a
// missing collection and an exhausted quota identically, and callers
// cannot tell them apart.
func (c *Client) ensureCollection(ctx context.Context) error {
	if c.collection != nil {
		return nil
	}
	var col stacCollection
	if err := c.get(ctx, c.rootURL+"/collections/"+c.collectionID, &col); err != nil {
		return fmt.Errorf("collection %s lookup (%v): %w", c.collectionID, err, portal.ErrRateLimited)
	}
	c.collection = &col
	return nil
}

// ListTargets walks the collection's items, or a bbox search when geom is
// set, following next links. Each item becomes a target with its own
// validity interval; the exact containment filter runs client-side.
func (c *Client) ListTargets(ctx context.Context, geom orb.Geometry) ([]portal.Target, error) {
	if err := c.ensureCollection(ctx); err != nil {
		return nil, err
	}

	pageURL := c.rootURL + "/collections/" + c.collectionID + fmt.Sprintf("/items?limit=%d", pageLimit)
	if geom != nil {
		b := geo.Bound(geom)
		pageURL = c.rootURL + "/search?" + url.Values{
			"collections": {c.collectionID},
			"bbox":        {fmt.Sprintf("%g,%g,%g,%g", b.Min[0], b.Min[1], b.Max[0], b.Max[1])},
			"limit":       {fmt.Sprintf("%d", pageLimit)},
		}.Encode()
	}

	var targets []portal.Target
	for pageURL != "" {
		var page stacItemPage
		if err := c.get(ctx, pageURL, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Features {
			g, err := decodeGeometry(item.Geometry)
			if err != nil {
				return nil, fmt.Errorf("item %s: %w", item.ID, err)
			}
			if geom != nil && !geo.Contains(geom, g) {
				continue
			}
			targets = append(targets, portal.Target{
				ID:       item.ID,
				Geometry: g,
				Products: []string{c.collectionID},
				TStart:   item.Properties.StartDatetime,
				TEnd:     item.Properties.EndDatetime,
			})
		}
		pageURL = nextLink(page.Links)
	}
	return targets, nil
}

func nextLink(links []stacLink) string {
	for _, l := range links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

func decodeGeometry(raw json.RawMessage) (orb.Geometry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var g geojson.Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}

// GetByProduct retrieves the item's single asset and parses it with the
// reader matching the collection (lakes or rivers).
func (c *Client) GetByProduct(ctx context.Context, id, product string) portal.FetchResult {
	if err := c.ensureCollection(ctx); err != nil {
		return portal.RateLimited(err)
	}

	var item stacItem
	err := c.get(ctx, c.rootURL+"/collections/"+c.collectionID+"/items/"+id, &item)
	switch {
	case err == nil:
	case errors.Is(err, portal.ErrNotFound):
		return portal.NotFound(err)
	case errors.Is(err, portal.ErrRateLimited):
		return portal.RateLimited(err)
	default:
		return portal.Failed(err)
	}

	asset, ok := firstAsset(item.Assets)
	if !ok {
		return portal.NotFound(fmt.Errorf("hydroweb item %s has no assets: %w", id, portal.ErrNotFound))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.Href, nil)
	if err != nil {
		return portal.Failed(err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return portal.Failed(fmt.Errorf("hydroweb asset %s: %w", id, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return portal.RateLimited(fmt.Errorf("hydroweb asset %s: %w", id, portal.ErrRateLimited))
	case resp.StatusCode == http.StatusNotFound:
		return portal.NotFound(fmt.Errorf("hydroweb asset %s: %w", id, portal.ErrNotFound))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return portal.Failed(fmt.Errorf("hydroweb asset %s: status %s", id, resp.Status))
	}

	var header map[string]string
	var series *timeseries.Series
	if strings.Contains(c.collectionID, "LAKES") {
		header, series, err = format.ParseHydrowebLakes(resp.Body)
	} else {
		header, series, err = format.ParseHydrowebRivers(resp.Body)
	}
	if err != nil {
		return portal.Failed(err)
	}
	return portal.OK(header, series)
}

// firstAsset returns the single expected asset; the map has one entry.
func firstAsset(assets map[string]stacAsset) (stacAsset, bool) {
	for _, a := range assets {
		return a, true
	}
	return stacAsset{}, false
}
