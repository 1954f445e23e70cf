// Package store is the record store: a PostgreSQL schema holding the
// mirrored catalogue snapshots plus one table per product, written
// through idempotent keyed upserts.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/geojson"

	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
	"github.com/ITC-Water-Resources/hydrosync/internal/timeseries"
)

// Schema is the PostgreSQL schema all tables live in.
const Schema = "hydrosync"

// Store wraps database access.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects a pgx pool to the database.
func Open(ctx context.Context, databaseURL string, log *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, log: log}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Record is one (target, product) row ready for upsert.
type Record struct {
	Key        string
	LastUpdate time.Time
	TStart     time.Time
	TEnd       time.Time
	Header     map[string]string
	Series     *timeseries.Series
	// Extra values for the descriptor's extra columns, in order.
	Extra []any
}

// EnsureProductTable creates the descriptor's table when absent.
func (s *Store) EnsureProductTable(ctx context.Context, desc ProductDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, desc.DDL())
	return err
}

// UpsertRecord inserts or fully updates one product record by key.
func (s *Store) UpsertRecord(ctx context.Context, desc ProductDescriptor, rec Record) error {
	var header []byte
	if rec.Header != nil {
		raw, err := json.Marshal(rec.Header)
		if err != nil {
			return err
		}
		header = raw
	}
	data, err := json.Marshal(rec.Series)
	if err != nil {
		return err
	}
	args := []any{rec.Key, rec.LastUpdate, rec.TStart, rec.TEnd, header, data}
	if len(rec.Extra) != len(desc.Extra) {
		return fmt.Errorf("record has %d extra values for %d extra columns", len(rec.Extra), len(desc.Extra))
	}
	args = append(args, rec.Extra...)
	_, err = s.pool.Exec(ctx, desc.upsertSQL(), args...)
	return err
}

// LastUpdates loads the stored lastupdate stamp per key for one product
// table.
func (s *Store) LastUpdates(ctx context.Context, desc ProductDescriptor) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT key, lastupdate FROM %s", desc.QualifiedTable()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var lastupdate time.Time
		if err := rows.Scan(&key, &lastupdate); err != nil {
			return nil, err
		}
		out[key] = lastupdate
	}
	return out, rows.Err()
}

// HasRows reports whether the product table holds any record yet.
func (s *Store) HasRows(ctx context.Context, desc ProductDescriptor) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s)", desc.QualifiedTable())).Scan(&exists)
	return exists, err
}

// RowCount returns the number of records in the product table.
func (s *Store) RowCount(ctx context.Context, desc ProductDescriptor) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", desc.QualifiedTable())).Scan(&n)
	return n, err
}

const upsertTargetSQL = `INSERT INTO hydrosync.targets (portal, id, title, geometry, products, lastupdate, tstart, tend, extra)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (portal, id) DO UPDATE
SET title = EXCLUDED.title,
    geometry = EXCLUDED.geometry,
    products = EXCLUDED.products,
    lastupdate = EXCLUDED.lastupdate,
    tstart = EXCLUDED.tstart,
    tend = EXCLUDED.tend,
    extra = EXCLUDED.extra`

// ReplaceTargets mirrors a catalogue snapshot into the targets table.
func (s *Store) ReplaceTargets(ctx context.Context, portalName string, targets []portal.Target) error {
	if len(targets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range targets {
		var geomJSON []byte
		if t.Geometry != nil {
			raw, err := geojson.NewGeometry(t.Geometry).MarshalJSON()
			if err != nil {
				return err
			}
			geomJSON = raw
		}
		products, err := json.Marshal(t.Products)
		if err != nil {
			return err
		}
		extra, err := json.Marshal(t.Extra)
		if err != nil {
			return err
		}
		batch.Queue(upsertTargetSQL,
			portalName, t.ID, t.Title, geomJSON, products,
			nullTime(t.LastUpdate), nullTime(t.TStart), nullTime(t.TEnd), extra)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range targets {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// SetCatalogState stamps the portal's catalogue freshness reference.
func (s *Store) SetCatalogState(ctx context.Context, portalName string, lastupdate time.Time) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO hydrosync.catalog_state (portal, lastupdate)
VALUES ($1,$2)
ON CONFLICT (portal) DO UPDATE SET lastupdate = EXCLUDED.lastupdate`, portalName, lastupdate)
	return err
}

// CatalogState reads the portal's catalogue freshness reference; ok is
// false when the portal was never pulled.
func (s *Store) CatalogState(ctx context.Context, portalName string) (time.Time, bool, error) {
	var lastupdate time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT lastupdate FROM hydrosync.catalog_state WHERE portal = $1`, portalName).Scan(&lastupdate)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return lastupdate, true, nil
}

// PortalState is one catalogue pull stamp as served by the API.
type PortalState struct {
	Portal     string    `json:"portal"`
	LastUpdate time.Time `json:"lastupdate"`
}

// Portals lists every portal that has been pulled at least once.
func (s *Store) Portals(ctx context.Context) ([]PortalState, error) {
	rows, err := s.pool.Query(ctx, `SELECT portal, lastupdate FROM hydrosync.catalog_state ORDER BY portal`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]PortalState, 0)
	for rows.Next() {
		var p PortalState
		if err := rows.Scan(&p.Portal, &p.LastUpdate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TargetRow is one mirrored catalogue row as served by the API.
type TargetRow struct {
	Portal     string          `json:"portal"`
	ID         string          `json:"id"`
	Title      *string         `json:"title,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
	Products   json.RawMessage `json:"products,omitempty"`
	LastUpdate *time.Time      `json:"lastupdate,omitempty"`
	TStart     *time.Time      `json:"tstart,omitempty"`
	TEnd       *time.Time      `json:"tend,omitempty"`
}

// ListTargets returns the mirrored snapshot rows for one portal.
func (s *Store) ListTargets(ctx context.Context, portalName string) ([]TargetRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT portal, id, title, geometry, products, lastupdate, tstart, tend
FROM hydrosync.targets WHERE portal = $1 ORDER BY id`, portalName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TargetRow, 0)
	for rows.Next() {
		var row TargetRow
		if err := rows.Scan(&row.Portal, &row.ID, &row.Title, &row.Geometry, &row.Products,
			&row.LastUpdate, &row.TStart, &row.TEnd); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RecordRow is one product record as served by the API.
type RecordRow struct {
	Key        string          `json:"key"`
	LastUpdate time.Time       `json:"lastupdate"`
	TStart     *time.Time      `json:"tstart,omitempty"`
	TEnd       *time.Time      `json:"tend,omitempty"`
	Header     json.RawMessage `json:"header,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// GetRecord fetches one product record by key; ok is false when absent.
func (s *Store) GetRecord(ctx context.Context, desc ProductDescriptor, key string) (RecordRow, bool, error) {
	var row RecordRow
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT key, lastupdate, tstart, tend, header, data FROM %s WHERE key = $1", desc.QualifiedTable()), key).
		Scan(&row.Key, &row.LastUpdate, &row.TStart, &row.TEnd, &row.Header, &row.Data)
	if err == pgx.ErrNoRows {
		return RecordRow{}, false, nil
	}
	if err != nil {
		return RecordRow{}, false, err
	}
	return row, true, nil
}
