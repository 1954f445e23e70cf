// Package syncer drives the incremental synchronization of one portal
// into the record store: catalogue pull, freshness diff, and the
// sequential fetch/upsert loop.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/ITC-Water-Resources/hydrosync/internal/catalog"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
	"github.com/ITC-Water-Resources/hydrosync/internal/store"
)

// RecordStore is the slice of the record store the syncer needs.
type RecordStore interface {
	EnsureProductTable(ctx context.Context, desc store.ProductDescriptor) error
	HasRows(ctx context.Context, desc store.ProductDescriptor) (bool, error)
	LastUpdates(ctx context.Context, desc store.ProductDescriptor) (map[string]time.Time, error)
	UpsertRecord(ctx context.Context, desc store.ProductDescriptor, rec store.Record) error
	ReplaceTargets(ctx context.Context, portalName string, targets []portal.Target) error
	SetCatalogState(ctx context.Context, portalName string, lastupdate time.Time) error
	CatalogState(ctx context.Context, portalName string) (time.Time, bool, error)
}

// Policy selects the freshness reference a portal's diff compares stored
// records against.
type Policy int

const (
	// RefCatalog uses the portal-wide catalogue pull stamp. Used by the
	// portals that publish a single catalogue-level freshness value.
	RefCatalog Policy = iota
	// RefTargetEnd uses each target's own validity end, for portals that
	// expose per-item intervals instead of a catalogue stamp.
	RefTargetEnd
)

// Job binds one portal client to one product table.
type Job struct {
	Portal  string
	Client  portal.Client
	Catalog *catalog.Cache
	Desc    store.ProductDescriptor
	// Product filters the catalogue; empty means all targets.
	Product string
	Policy  Policy
	// Force bypasses the catalogue TTL on Pull.
	Force bool
	// Extra derives values for the descriptor's extra columns.
	Extra func(portal.Target) []any
}

// Syncer runs jobs against one record store.
type Syncer struct {
	store RecordStore
	log   *slog.Logger
	now   func() time.Time
}

// New builds a syncer. The logger is required; pass a per-run logger so
// runs stay distinguishable.
func New(st RecordStore, log *slog.Logger) *Syncer {
	return &Syncer{store: st, log: log, now: time.Now}
}

// Pull refreshes the job's catalogue snapshot, mirrors it into the store
// and stamps the portal's catalogue freshness reference. Failures here
// propagate to the caller untouched.
func (s *Syncer) Pull(ctx context.Context, job Job) error {
	snap, err := job.Catalog.Refresh(ctx, job.Force)
	if err != nil {
		return fmt.Errorf("%s: pull catalogue: %w", job.Portal, err)
	}
	if err := s.store.ReplaceTargets(ctx, job.Portal, snap.Targets); err != nil {
		return fmt.Errorf("%s: mirror targets: %w", job.Portal, err)
	}
	if err := s.store.SetCatalogState(ctx, job.Portal, snap.RefreshedAt); err != nil {
		return fmt.Errorf("%s: catalog state: %w", job.Portal, err)
	}
	s.log.Info("catalogue pulled", "portal", job.Portal, "targets", len(snap.Targets))
	return nil
}

// Register diffs the catalogue against the stored records and fetches
// every stale target in order. NotFound and malformed payloads skip one
// target; a rate limit ends the scan cleanly; anything else aborts.
func (s *Syncer) Register(ctx context.Context, job Job, region orb.Geometry) error {
	if err := s.store.EnsureProductTable(ctx, job.Desc); err != nil {
		return fmt.Errorf("%s: ensure table %s: %w", job.Portal, job.Desc.Table, err)
	}

	snap, err := job.Catalog.Refresh(ctx, false)
	if err != nil {
		return fmt.Errorf("%s: load catalogue: %w", job.Portal, err)
	}
	cataloged := snap.List(region, job.Product)

	candidates, err := s.diff(ctx, job, snap, cataloged)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		s.log.Info("nothing to update/register", "portal", job.Portal, "product", job.Product)
		return nil
	}
	s.log.Info("registering targets", "portal", job.Portal, "product", job.Product, "candidates", len(candidates))

	for _, target := range candidates {
		s.log.Info("getting product", "portal", job.Portal, "product", job.Product, "id", target.ID)
		res := job.Client.GetByProduct(ctx, target.ID, job.Product)
		switch res.Status {
		case portal.StatusOK:
			rec := store.Record{
				Key:        target.ID,
				LastUpdate: s.now(),
				TStart:     res.Series.TStart(),
				TEnd:       res.Series.TEnd(),
				Header:     res.Header,
				Series:     res.Series,
			}
			if job.Extra != nil {
				rec.Extra = job.Extra(target)
			}
			if err := s.store.UpsertRecord(ctx, job.Desc, rec); err != nil {
				return fmt.Errorf("%s: upsert %s/%s: %w", job.Portal, job.Product, target.ID, err)
			}
		case portal.StatusNotFound:
			s.log.Info("no data for target, continuing", "portal", job.Portal, "id", target.ID, "product", job.Product)
		case portal.StatusRateLimited:
			// remaining candidates stay pending; the next run's diff
			// picks them up again
			s.log.Warn("rate limit reached, stopping scan", "portal", job.Portal, "id", target.ID)
			return nil
		default:
			if portal.IsMalformed(res.Err) {
				s.log.Warn("malformed payload, skipping target",
					"portal", job.Portal, "id", target.ID, "product", job.Product, "err", res.Err)
				continue
			}
			return fmt.Errorf("%s: fetch %s/%s: %w", job.Portal, job.Product, target.ID, res.Err)
		}
	}
	return nil
}

// diff selects the targets whose stored record is absent or older than
// the job's freshness reference. A table with no rows yet means the whole
// catalogue is due.
func (s *Syncer) diff(ctx context.Context, job Job, snap *catalog.Snapshot, cataloged []portal.Target) ([]portal.Target, error) {
	hasRows, err := s.store.HasRows(ctx, job.Desc)
	if err != nil {
		return nil, fmt.Errorf("%s: has rows: %w", job.Portal, err)
	}
	if !hasRows {
		return cataloged, nil
	}

	stored, err := s.store.LastUpdates(ctx, job.Desc)
	if err != nil {
		return nil, fmt.Errorf("%s: last updates: %w", job.Portal, err)
	}

	var catalogRef time.Time
	if job.Policy == RefCatalog {
		ref, ok, err := s.store.CatalogState(ctx, job.Portal)
		if err != nil {
			return nil, fmt.Errorf("%s: catalog state: %w", job.Portal, err)
		}
		if !ok {
			ref = snap.RefreshedAt
		}
		catalogRef = ref
	}

	candidates := make([]portal.Target, 0, len(cataloged))
	for _, t := range cataloged {
		last, ok := stored[t.ID]
		if !ok {
			candidates = append(candidates, t)
			continue
		}
		ref := catalogRef
		if job.Policy == RefTargetEnd {
			ref = t.TEnd
		}
		if last.Before(ref) {
			candidates = append(candidates, t)
		}
	}
	return candidates, nil
}

// Run performs a full pull-then-register cycle for one job.
func (s *Syncer) Run(ctx context.Context, job Job, region orb.Geometry) error {
	if err := s.Pull(ctx, job); err != nil {
		return err
	}
	return s.Register(ctx, job, region)
}
