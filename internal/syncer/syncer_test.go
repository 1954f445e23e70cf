package syncer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/ITC-Water-Resources/hydrosync/internal/catalog"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
	"github.com/ITC-Water-Resources/hydrosync/internal/store"
	"github.com/ITC-Water-Resources/hydrosync/internal/timeseries"
)

type fakeStore struct {
	records      map[string]store.Record
	upserts      int
	catalogState map[string]time.Time
	targets      map[string][]portal.Target
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:      make(map[string]store.Record),
		catalogState: make(map[string]time.Time),
		targets:      make(map[string][]portal.Target),
	}
}

func (f *fakeStore) EnsureProductTable(ctx context.Context, desc store.ProductDescriptor) error {
	return nil
}

func (f *fakeStore) HasRows(ctx context.Context, desc store.ProductDescriptor) (bool, error) {
	return len(f.records) > 0, nil
}

func (f *fakeStore) LastUpdates(ctx context.Context, desc store.ProductDescriptor) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(f.records))
	for key, rec := range f.records {
		out[key] = rec.LastUpdate
	}
	return out, nil
}

func (f *fakeStore) UpsertRecord(ctx context.Context, desc store.ProductDescriptor, rec store.Record) error {
	f.records[rec.Key] = rec
	f.upserts++
	return nil
}

func (f *fakeStore) ReplaceTargets(ctx context.Context, portalName string, targets []portal.Target) error {
	f.targets[portalName] = targets
	return nil
}

func (f *fakeStore) SetCatalogState(ctx context.Context, portalName string, lastupdate time.Time) error {
	f.catalogState[portalName] = lastupdate
	return nil
}

func (f *fakeStore) CatalogState(ctx context.Context, portalName string) (time.Time, bool, error) {
	t, ok := f.catalogState[portalName]
	return t, ok, nil
}

type fakeClient struct {
	results map[string]portal.FetchResult
	fetched []string
}

func (c *fakeClient) ListTargets(ctx context.Context, geom orb.Geometry) ([]portal.Target, error) {
	return nil, errors.New("not used")
}

func (c *fakeClient) GetByProduct(ctx context.Context, id, product string) portal.FetchResult {
	c.fetched = append(c.fetched, id)
	res, ok := c.results[id]
	if !ok {
		return portal.NotFound(portal.ErrNotFound)
	}
	return res
}

func okResult(value float64) portal.FetchResult {
	series := timeseries.New()
	series.AppendTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	series.AppendFloat("water_level", value)
	return portal.OK(map[string]string{"unit": "m"}, series)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testJob(t *testing.T, client portal.Client, targets []portal.Target) Job {
	t.Helper()
	cache := catalog.New(
		filepath.Join(t.TempDir(), "holdings.geojson"),
		time.Hour,
		func(ctx context.Context) ([]portal.Target, error) { return targets, nil },
		testLogger(),
	)
	return Job{
		Portal:  "testportal",
		Client:  client,
		Catalog: cache,
		Desc:    store.ProductDescriptor{Portal: "testportal", Product: "WL", Table: "testportal_wl"},
		Product: "WL",
		Policy:  RefCatalog,
	}
}

func wlTarget(id string) portal.Target {
	return portal.Target{ID: id, Geometry: orb.Point{0, 0}, Products: []string{"WL"}}
}

func TestRegisterFirstRunFetchesAll(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{results: map[string]portal.FetchResult{
		"A": okResult(1), "B": okResult(2),
	}}
	job := testJob(t, client, []portal.Target{wlTarget("A"), wlTarget("B")})
	s := New(st, testLogger())

	if err := s.Run(context.Background(), job, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.upserts != 2 {
		t.Fatalf("expected 2 upserts, got %d", st.upserts)
	}
	if _, ok := st.records["A"]; !ok {
		t.Error("record A missing")
	}
	if got := st.records["A"]; got.TStart.IsZero() || got.Header["unit"] != "m" {
		t.Errorf("record A: %+v", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{results: map[string]portal.FetchResult{
		"A": okResult(1), "B": okResult(2),
	}}
	job := testJob(t, client, []portal.Target{wlTarget("A"), wlTarget("B")})
	s := New(st, testLogger())

	if err := s.Run(context.Background(), job, nil); err != nil {
		t.Fatal(err)
	}
	// unchanged remote catalogue and data: the second register is a no-op
	if err := s.Register(context.Background(), job, nil); err != nil {
		t.Fatal(err)
	}
	if st.upserts != 2 {
		t.Fatalf("second register must not write, upserts=%d", st.upserts)
	}
	if len(st.records) != 2 {
		t.Fatalf("row count changed: %d", len(st.records))
	}
}

func TestDiffCorrectness(t *testing.T) {
	st := newFakeStore()
	catalogStamp := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	st.catalogState["testportal"] = catalogStamp
	// stored after the catalogue stamp: excluded
	st.records["A"] = store.Record{Key: "A", LastUpdate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	// stored before the catalogue stamp: included
	st.records["B"] = store.Record{Key: "B", LastUpdate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	// "C" absent: included

	client := &fakeClient{results: map[string]portal.FetchResult{
		"B": okResult(2), "C": okResult(3),
	}}
	job := testJob(t, client, []portal.Target{wlTarget("A"), wlTarget("B"), wlTarget("C")})
	s := New(st, testLogger())

	if err := s.Register(context.Background(), job, nil); err != nil {
		t.Fatal(err)
	}
	if len(client.fetched) != 2 || client.fetched[0] != "B" || client.fetched[1] != "C" {
		t.Fatalf("fetched %v, want [B C]", client.fetched)
	}
}

func TestDiffPerTargetEnd(t *testing.T) {
	st := newFakeStore()
	st.records["A"] = store.Record{Key: "A", LastUpdate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}
	st.records["B"] = store.Record{Key: "B", LastUpdate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}

	older := wlTarget("A")
	older.TEnd = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC) // data ends before stored stamp
	newer := wlTarget("B")
	newer.TEnd = time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)

	client := &fakeClient{results: map[string]portal.FetchResult{"B": okResult(2)}}
	job := testJob(t, client, []portal.Target{older, newer})
	job.Policy = RefTargetEnd
	s := New(st, testLogger())

	if err := s.Register(context.Background(), job, nil); err != nil {
		t.Fatal(err)
	}
	if len(client.fetched) != 1 || client.fetched[0] != "B" {
		t.Fatalf("fetched %v, want [B]", client.fetched)
	}
}

func TestRateLimitStopsScan(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{results: map[string]portal.FetchResult{
		"A": okResult(1),
		"B": portal.RateLimited(portal.ErrRateLimited),
		"C": okResult(3),
	}}
	job := testJob(t, client, []portal.Target{wlTarget("A"), wlTarget("B"), wlTarget("C")})
	s := New(st, testLogger())

	if err := s.Run(context.Background(), job, nil); err != nil {
		t.Fatalf("rate limit must not be an error: %v", err)
	}
	if _, ok := st.records["A"]; !ok {
		t.Error("record A should be written before the limit hit")
	}
	if _, ok := st.records["B"]; ok {
		t.Error("record B must not exist")
	}
	if _, ok := st.records["C"]; ok {
		t.Error("record C must not exist, scan stops at B")
	}
	if len(client.fetched) != 2 {
		t.Errorf("fetched %v, scan must stop at B", client.fetched)
	}
}

func TestNotFoundSkips(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{results: map[string]portal.FetchResult{
		"A": portal.NotFound(portal.ErrNotFound),
		"B": okResult(2),
	}}
	job := testJob(t, client, []portal.Target{wlTarget("A"), wlTarget("B")})
	s := New(st, testLogger())

	if err := s.Run(context.Background(), job, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.records["B"]; !ok {
		t.Error("scan should continue past a not-found target")
	}
	if st.upserts != 1 {
		t.Errorf("upserts=%d", st.upserts)
	}
}

func TestMalformedSkips(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{results: map[string]portal.FetchResult{
		"A": portal.Failed(portal.Malformed(nil, "bad row")),
		"B": okResult(2),
	}}
	job := testJob(t, client, []portal.Target{wlTarget("A"), wlTarget("B")})
	s := New(st, testLogger())

	if err := s.Run(context.Background(), job, nil); err != nil {
		t.Fatalf("malformed payload should skip, not abort: %v", err)
	}
	if st.upserts != 1 {
		t.Errorf("upserts=%d", st.upserts)
	}
}

func TestFatalAborts(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{results: map[string]portal.FetchResult{
		"A": portal.Failed(errors.New("boom")),
		"B": okResult(2),
	}}
	job := testJob(t, client, []portal.Target{wlTarget("A"), wlTarget("B")})
	s := New(st, testLogger())

	if err := s.Run(context.Background(), job, nil); err == nil {
		t.Fatal("transport failure must abort the run")
	}
	if len(client.fetched) != 1 {
		t.Errorf("fetched %v, run must abort at A", client.fetched)
	}
}

func TestRegisterEmptyCandidateSetIsNoop(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{}
	job := testJob(t, client, nil)
	s := New(st, testLogger())

	if err := s.Run(context.Background(), job, nil); err != nil {
		t.Fatalf("empty catalogue: %v", err)
	}
	if len(client.fetched) != 0 || st.upserts != 0 {
		t.Errorf("no fetches expected: %v", client.fetched)
	}
}

func TestRegisterSpatialFilter(t *testing.T) {
	st := newFakeStore()
	inside := wlTarget("IN")
	inside.Geometry = orb.Point{5, 5}
	outside := wlTarget("OUT")
	outside.Geometry = orb.Point{50, 50}

	client := &fakeClient{results: map[string]portal.FetchResult{"IN": okResult(1)}}
	job := testJob(t, client, []portal.Target{inside, outside})
	s := New(st, testLogger())

	region := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	if err := s.Run(context.Background(), job, region); err != nil {
		t.Fatal(err)
	}
	if len(client.fetched) != 1 || client.fetched[0] != "IN" {
		t.Fatalf("fetched %v, want [IN]", client.fetched)
	}
}
