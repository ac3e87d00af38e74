// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/chitose/kotae/internal/config"
	"github.com/chitose/kotae/internal/ingest"
	"github.com/chitose/kotae/internal/qa"
	"github.com/chitose/kotae/internal/storage"
	"github.com/chitose/kotae/internal/vectorindex"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	engine   *qa.Engine
	pipeline *ingest.Pipeline
	catalog  *storage.Catalog
	index    vectorindex.Index
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *qa.Engine,
	pipeline *ingest.Pipeline,
	catalog *storage.Catalog,
	index vectorindex.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		pipeline: pipeline,
		catalog:  catalog,
		index:    index,
		config:   cfg,
		logger:   logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout()))
	r.Use(middleware.Compress(5))

	r.Post("/ask", s.handleAsk)
	r.Get("/health", s.handleHealth)
	r.Post("/api/v1/ingest", s.handleIngest)
	// Document IDs contain slashes (corpus-relative paths), so the ID rides
	// in a query parameter rather than the URL path.
	r.Delete("/api/v1/documents", s.handleDeleteDocument)
	r.Get("/api/v1/status", s.handleStatus)

	return r
}

// requestTimeout leaves room for a full generation cycle including the retry,
// so a slow model produces a clean 503 from the handler instead of a cut
// connection from the middleware.
func (s *Server) requestTimeout() time.Duration {
	seconds := s.config.Generation.TimeoutSeconds*s.config.Retry.MaxAttempts + 30
	return time.Duration(seconds) * time.Second
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
