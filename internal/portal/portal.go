// Package portal defines the contract shared by the remote data portals:
// a catalogue listing of targets and a per-target product fetch with an
// explicit outcome instead of error-driven control flow.
package portal

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/ITC-Water-Resources/hydrosync/internal/timeseries"
)

// Target is one remote station or catalogue item. IDs are kept in string
// form even for portals with numeric identifiers so every portal shares
// one key representation in the record store.
type Target struct {
	ID       string
	Title    string
	Geometry orb.Geometry
	// Products lists the data-access labels offered for this target.
	Products []string
	// LastUpdate is the catalogue-level freshness stamp, when the portal
	// publishes one.
	LastUpdate time.Time
	// TStart/TEnd carry the per-item validity interval for STAC portals.
	TStart time.Time
	TEnd   time.Time
	// Extra holds portal-specific attributes (hydrosat current_id etc).
	Extra map[string]string
}

// HasProduct reports whether the target advertises the given product label.
func (t Target) HasProduct(product string) bool {
	for _, p := range t.Products {
		if p == product {
			return true
		}
	}
	return false
}

// Status classifies the outcome of a single product fetch.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusRateLimited
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not-found"
	case StatusRateLimited:
		return "rate-limited"
	default:
		return "failed"
	}
}

// FetchResult is the outcome of one GetByProduct call. The orchestrator
// inspects Status to decide continue/halt/abort; Err carries detail for
// the non-OK statuses.
type FetchResult struct {
	Status Status
	Header map[string]string
	Series *timeseries.Series
	Err    error
}

// OK wraps a successful parse into a result.
func OK(header map[string]string, series *timeseries.Series) FetchResult {
	return FetchResult{Status: StatusOK, Header: header, Series: series}
}

// NotFound marks a target/product pair with no remote data.
func NotFound(err error) FetchResult {
	return FetchResult{Status: StatusNotFound, Err: err}
}

// RateLimited marks a remote quota hit; the caller should stop scanning.
func RateLimited(err error) FetchResult {
	return FetchResult{Status: StatusRateLimited, Err: err}
}

// Failed marks an unexpected transport or parse failure.
func Failed(err error) FetchResult {
	return FetchResult{Status: StatusFailed, Err: err}
}

// Client is the capability set every portal implements. ListTargets may
// consult a cached catalogue; geom restricts results to targets contained
// in it when non-nil.
type Client interface {
	ListTargets(ctx context.Context, geom orb.Geometry) ([]Target, error)
	GetByProduct(ctx context.Context, id, product string) FetchResult
}
