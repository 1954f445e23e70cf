// Package api serves the mirrored holdings over REST: the portal pull
// states, the catalogue snapshots and the stored product records.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ITC-Water-Resources/hydrosync/internal/store"
)

// RecordStore is the slice of the record store the API reads from.
type RecordStore interface {
	Portals(ctx context.Context) ([]store.PortalState, error)
	ListTargets(ctx context.Context, portal string) ([]store.TargetRow, error)
	GetRecord(ctx context.Context, desc store.ProductDescriptor, key string) (store.RecordRow, bool, error)
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	addr   string
	store  RecordStore
	log    *slog.Logger
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(addr string, st RecordStore, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	server := &Server{addr: addr, store: st, log: log, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/portals", s.handleListPortals)
		v1.GET("/:portal/targets", s.handleListTargets)
		v1.GET("/:portal/:product/:key", s.handleGetRecord)
	}
}

// handleListPortals returns the portals that have been synced so far.
// GET /v1/portals
func (s *Server) handleListPortals(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	portals, err := s.store.Portals(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": portals,
		"meta": gin.H{"count": len(portals)},
	})
}

// handleListTargets returns a portal's mirrored catalogue snapshot.
// GET /v1/:portal/targets
func (s *Server) handleListTargets(c *gin.Context) {
	portal := c.Param("portal")
	if portal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "portal is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	targets, err := s.store.ListTargets(ctx, portal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": targets,
		"meta": gin.H{"count": len(targets)},
	})
}

// handleGetRecord returns one stored product record.
// GET /v1/:portal/:product/:key
func (s *Server) handleGetRecord(c *gin.Context) {
	portal := c.Param("portal")
	product := c.Param("product")
	key := c.Param("key")

	// No sanitizing here: path segments that are not already clean
	// identifiers cannot name a product table and are rejected.
	desc := store.ProductDescriptor{
		Portal:  portal,
		Product: product,
		Table:   strings.ToLower(portal + "_" + product),
	}
	if err := desc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown portal or product"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	record, ok, err := s.store.GetRecord(ctx, desc, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}
