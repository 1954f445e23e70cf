// Command hydrosync runs one synchronization pass: for every enabled
// portal it pulls the catalogue, diffs it against the record store and
// fetches the stale targets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/ITC-Water-Resources/hydrosync/internal/catalog"
	"github.com/ITC-Water-Resources/hydrosync/internal/config"
	"github.com/ITC-Water-Resources/hydrosync/internal/geo"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal/dahiti"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal/hydrosat"
	"github.com/ITC-Water-Resources/hydrosync/internal/portal/hydroweb"
	"github.com/ITC-Water-Resources/hydrosync/internal/store"
	"github.com/ITC-Water-Resources/hydrosync/internal/syncer"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("run_id", uuid.NewString())
	if err := run(log); err != nil {
		log.Error("sync failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	portals, err := config.LoadPortals(cfg.PortalsFile)
	if err != nil {
		return err
	}

	var region orb.Geometry
	if portals.RegionFile != "" {
		region, err = geo.LoadRegion(portals.RegionFile)
		if err != nil {
			return fmt.Errorf("region: %w", err)
		}
	}

	ctx := context.Background()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer st.Close()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	jobs, err := buildJobs(cfg, portals, httpClient, log)
	if err != nil {
		return err
	}

	s := syncer.New(st, log)
	var failures []error
	for _, job := range jobs {
		log.Info("syncing", "portal", job.Portal, "product", job.Product)
		if err := s.Run(ctx, job, region); err != nil {
			// a broken portal must not block the others
			log.Error("portal sync failed", "portal", job.Portal, "product", job.Product, "err", err)
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func buildJobs(cfg config.Config, portals config.Portals, httpClient *http.Client, log *slog.Logger) ([]syncer.Job, error) {
	var jobs []syncer.Job

	if portals.Dahiti.Enabled {
		client := dahiti.New(cfg.DahitiAPIKey, httpClient, log)
		cache := catalog.New(
			filepath.Join(cfg.CacheDir, "dahiti_holdings.geojson"),
			catalog.DefaultTTL,
			func(ctx context.Context) ([]portal.Target, error) { return client.ListTargets(ctx, nil) },
			log,
		)
		for _, product := range portals.Dahiti.Products {
			jobs = append(jobs, syncer.Job{
				Portal:  "dahiti",
				Client:  client,
				Catalog: cache,
				Desc: store.ProductDescriptor{
					Portal:  "dahiti",
					Product: product,
					Table:   tableName("dahiti", product),
				},
				// the catalogue labels products as name:access; only
				// public data is downloadable
				Product: product + ":public",
				Policy:  syncer.RefCatalog,
				Force:   cfg.Force,
			})
		}
	}

	if portals.Hydrosat.Enabled {
		client, err := hydrosat.New(cfg.HydrosatUser, cfg.HydrosatPass, filepath.Join(cfg.CacheDir, "hydrosat"), httpClient, log)
		if err != nil {
			return nil, err
		}
		for _, product := range portals.Hydrosat.Products {
			jobs = append(jobs, syncer.Job{
				Portal:  "hydrosat",
				Client:  client,
				Catalog: client.Catalog(),
				Desc: store.ProductDescriptor{
					Portal:  "hydrosat",
					Product: product,
					Table:   tableName("hydrosat", product),
					Extra:   []store.Column{{Name: "source_id", SQLType: "INTEGER"}},
				},
				Product: product,
				Policy:  syncer.RefCatalog,
				Force:   cfg.Force,
				Extra:   hydrosatExtra,
			})
		}
	}

	if portals.Hydroweb.Enabled {
		for _, collection := range portals.Hydroweb.Collections {
			client, err := hydroweb.New(collection, cfg.HydrowebAPIKey, httpClient, log)
			if err != nil {
				return nil, err
			}
			cl := client
			cache := catalog.New(
				filepath.Join(cfg.CacheDir, "hydroweb_"+strings.ToLower(collection)+".geojson"),
				catalog.DefaultTTL,
				func(ctx context.Context) ([]portal.Target, error) { return cl.ListTargets(ctx, nil) },
				log,
			)
			jobs = append(jobs, syncer.Job{
				Portal:  "hydroweb",
				Client:  client,
				Catalog: cache,
				Desc: store.ProductDescriptor{
					Portal:  "hydroweb",
					Product: collection,
					Table:   tableName("hydroweb", collection),
				},
				Product: collection,
				Policy:  syncer.RefTargetEnd,
				Force:   cfg.Force,
			})
		}
	}

	return jobs, nil
}

func hydrosatExtra(t portal.Target) []any {
	sourceID, err := strconv.Atoi(t.Extra["source_id"])
	if err != nil {
		return []any{nil}
	}
	return []any{sourceID}
}

func tableName(portalName, product string) string {
	return store.TableName(portalName, product)
}
