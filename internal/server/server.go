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

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/rag"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	rag     *rag.Service
	indexer *indexer.Service
	config  *config.Config
	version string
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(ragSvc *rag.Service, idx *indexer.Service, cfg *config.Config, version string, logger *zap.Logger) *Server {
	return &Server{
		rag:     ragSvc,
		indexer: idx,
		config:  cfg,
		version: version,
		logger:  logger,
	}
}

// Handler builds the route tree. The query route streams NDJSON and stays
// outside the timeout and compression middleware: a timeout would cut long
// generations short, and compression would buffer frames that must flush
// line by line.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))
		r.Get("/", s.handleRoot)
		r.Post("/api/upload", s.handleUpload)
		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents/{id}", s.handleDeleteDocument)
		r.Get("/api/health", s.handleHealth)
	})
	r.Post("/api/query", s.handleQuery)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
