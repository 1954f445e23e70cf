// Package dahiti talks to the DAHITI v2 REST API: an api-key
// authenticated catalogue (list-targets) plus per-target product
// downloads with HTTP 429 signalling quota exhaustion.
package dahiti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/ITC-Water-Resources/hydrosync/internal/format"
	"github.com/ITC-Water-Resources/hydrosync/internal/geo"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
)

const defaultRootURL = "https://dahiti.dgfi.tum.de/api/v2/"

// ProductWaterLevel is the only DAHITI product wired to a download
// endpoint so far.
const ProductWaterLevel = "water_level_altimetry"

// Client is an api-key authenticated DAHITI portal client.
type Client struct {
	rootURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

// New builds a client. A nil httpClient falls back to http.DefaultClient.
func New(apiKey string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{rootURL: defaultRootURL, apiKey: apiKey, http: httpClient, log: log}
}

// WithRootURL overrides the API root, used by tests.
func (c *Client) WithRootURL(root string) *Client {
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	c.rootURL = root
	return c
}

type listEntry struct {
	DahitiID   int64           `json:"dahiti_id"`
	TargetName string          `json:"target_name"`
	Longitude  float64         `json:"longitude"`
	Latitude   float64         `json:"latitude"`
	DataAccess map[string]*string `json:"data_access"`
}

type listResponse struct {
	Data []listEntry `json:"data"`
}

// ListTargets queries the catalogue restricted to the bounding box of geom
// (the whole globe when nil), then applies the exact containment filter
// client-side. Targets advertise one product label per non-null
// data_access entry, in "name:access" form.
func (c *Client) ListTargets(ctx context.Context, geom orb.Geometry) ([]portal.Target, error) {
	bound := geo.Bound(geom)
	args := url.Values{}
	args.Set("api_key", c.apiKey)
	args.Set("min_lon", fmt.Sprintf("%g", bound.Min[0]))
	args.Set("min_lat", fmt.Sprintf("%g", bound.Min[1]))
	args.Set("max_lon", fmt.Sprintf("%g", bound.Max[0]))
	args.Set("max_lat", fmt.Sprintf("%g", bound.Max[1]))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rootURL+"list-targets/", strings.NewReader(args.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dahiti list-targets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("dahiti list-targets: %w", portal.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("dahiti list-targets: unexpected status %s", resp.Status)
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("dahiti list-targets: decode: %w", err)
	}

	targets := make([]portal.Target, 0, len(payload.Data))
	for _, entry := range payload.Data {
		point := orb.Point{entry.Longitude, entry.Latitude}
		if geom != nil && !geo.Contains(geom, point) {
			continue
		}
		targets = append(targets, portal.Target{
			ID:       strconv.FormatInt(entry.DahitiID, 10),
			Title:    entry.TargetName,
			Geometry: point,
			Products: accessLabels(entry.DataAccess),
		})
	}
	return targets, nil
}

// accessLabels keeps only products with a non-null access level.
func accessLabels(access map[string]*string) []string {
	labels := make([]string, 0, len(access))
	for name, level := range access {
		if level == nil {
			continue
		}
		labels = append(labels, name+":"+*level)
	}
	sort.Strings(labels)
	return labels
}

// GetByProduct downloads one target's product series. Only water level is
// implemented; unknown products fail.
func (c *Client) GetByProduct(ctx context.Context, id, product string) portal.FetchResult {
	if product != ProductWaterLevel && !strings.HasPrefix(product, ProductWaterLevel+":") {
		return portal.Failed(fmt.Errorf("dahiti product %q not implemented", product))
	}
	dahitiID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return portal.Failed(fmt.Errorf("dahiti id %q: %w", id, err))
	}

	body, err := json.Marshal(map[string]any{
		"api_key":   c.apiKey,
		"dahiti_id": dahitiID,
		"format":    "json",
	})
	if err != nil {
		return portal.Failed(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rootURL+"download-water-level/", bytes.NewReader(body))
	if err != nil {
		return portal.Failed(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return portal.Failed(fmt.Errorf("dahiti download: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return portal.RateLimited(fmt.Errorf("dahiti: %w", portal.ErrRateLimited))
	case resp.StatusCode == http.StatusNotFound:
		return portal.NotFound(fmt.Errorf("dahiti %s: %w", id, portal.ErrNotFound))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return portal.Failed(fmt.Errorf("dahiti download %s: status %s: %s", id, resp.Status, detail))
	}

	header, series, err := format.ParseDahitiWaterLevel(resp.Body)
	if errors.Is(err, portal.ErrEmptyResult) {
		return portal.NotFound(fmt.Errorf("dahiti %s: %w", id, portal.ErrNotFound))
	}
	if err != nil {
		return portal.Failed(err)
	}
	return portal.OK(header, series)
}
