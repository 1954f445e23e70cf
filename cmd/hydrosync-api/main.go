// Command hydrosync-api serves the synchronized holdings over REST.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ITC-Water-Resources/hydrosync/internal/api"
	"github.com/ITC-Water-Resources/hydrosync/internal/config"
	"github.com/ITC-Water-Resources/hydrosync/internal/store"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("db connection error", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	srv := api.New(cfg.ListenAddr(), st, log)
	log.Info("REST API listening", "addr", cfg.ListenAddr())

	if err := srv.Run(ctx); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
