package hydroweb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
)

const lakesAsset = `id=L_victoria;lon=33.0;lat=-1.0;date=2024.1;first_date=2015.3;last_date=2024.0
# operational lakes product
2015.3000;x;x;1134.21;0.05;120.3;4.1
2024.0000;x;x;1134.62;0.04;121.8;4.4
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStacServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/collections/HYDROWEB_LAKES_OPE", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"HYDROWEB_LAKES_OPE"}`)
	})
	mux.HandleFunc("/collections/HYDROWEB_LAKES_OPE/items", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
  "features": [
    {"id": "L_victoria",
     "geometry": {"type": "Point", "coordinates": [33.0, -1.0]},
     "properties": {"start_datetime": "2015-04-20T00:00:00Z", "end_datetime": "2024-01-01T00:00:00Z"},
     "assets": {"data": {"href": "%s/assets/L_victoria.txt"}}}
  ],
  "links": []
}`, srv.URL)
	})
	mux.HandleFunc("/collections/HYDROWEB_LAKES_OPE/items/L_victoria", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id": "L_victoria",
  "geometry": {"type": "Point", "coordinates": [33.0, -1.0]},
  "properties": {"start_datetime": "2015-04-20T00:00:00Z", "end_datetime": "2024-01-01T00:00:00Z"},
  "assets": {"data": {"href": "%s/assets/L_victoria.txt"}}}`, srv.URL)
	})
	mux.HandleFunc("/assets/L_victoria.txt", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(lakesAsset))
	})

	srv = httptest.NewServer(mux)
	return srv
}

func TestListTargets(t *testing.T) {
	srv := newStacServer(t)
	defer srv.Close()

	c, err := New("HYDROWEB_LAKES_OPE", "key", nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	c.WithRootURL(srv.URL)

	targets, err := c.ListTargets(context.Background(), nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("targets: %+v", targets)
	}
	got := targets[0]
	if got.ID != "L_victoria" || got.TEnd.IsZero() || !got.HasProduct("HYDROWEB_LAKES_OPE") {
		t.Errorf("target: %+v", got)
	}
}

func TestGetByProduct(t *testing.T) {
	srv := newStacServer(t)
	defer srv.Close()

	c, err := New("HYDROWEB_LAKES_OPE", "key", nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	c.WithRootURL(srv.URL)

	res := c.GetByProduct(context.Background(), "L_victoria", "HYDROWEB_LAKES_OPE")
	if res.Status != portal.StatusOK {
		t.Fatalf("status %v err %v", res.Status, res.Err)
	}
	if res.Series.Len() != 2 || len(res.Series.Floats["water_level"]) != 2 {
		t.Errorf("series: %+v", res.Series.Floats)
	}
	if res.Header["hydrowebid"] != "L_victoria" {
		t.Errorf("header: %v", res.Header)
	}
}

func TestCollectionLookupFailureIsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New("HYDROWEB_RIVERS_OPE", "key", nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	c.WithRootURL(srv.URL)

	res := c.GetByProduct(context.Background(), "anything", "HYDROWEB_RIVERS_OPE")
	if res.Status != portal.StatusRateLimited {
		t.Fatalf("expected rate-limited, got %v (%v)", res.Status, res.Err)
	}
}

func TestUnknownCollectionRejected(t *testing.T) {
	if _, err := New("HYDROWEB_GLACIERS", "key", nil, testLogger()); err == nil {
		t.Fatal("expected constructor error")
	}
}
