// Package server provides the HTTP API for kioku.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kioku/internal/collection"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/vector"
	"go.uber.org/zap"
)

// Server is the HTTP server for the vector API.
type Server struct {
	manager *collection.Manager
	store   *vector.Store
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	manager *collection.Manager,
	store *vector.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		manager: manager,
		store:   store,
		config:  cfg,
		logger:  logger,
	}
}

// Router returns the HTTP handler with every route and middleware installed.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Route("/api/vector", func(r chi.Router) {
		r.Post("/insert", s.handleInsert)
		r.Post("/list", s.handleList)
		r.Post("/delete", s.handleDelete)
		r.Post("/query", s.handleQuery)
		r.Post("/query-multi", s.handleQueryMulti)
		r.Post("/purge", s.handlePurge)
		r.Post("/purge-all", s.handlePurgeAll)
		r.Get("/scopes-enabled", s.handleScopesEnabled)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
