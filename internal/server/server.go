// Package server provides the HTTP API for Ruiji.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/search"
)

// Server is the HTTP server for the Ruiji API.
type Server struct {
	engine    *search.Engine
	config    *config.ServerConfig
	logger    *zap.Logger
	diskPaths []string
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithDiskPaths reports the combined size of paths in /status. Used for the embedded backends.
func WithDiskPaths(paths ...string) Option {
	return func(s *Server) { s.diskPaths = append(s.diskPaths, paths...) }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *search.Engine, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/ping", s.handlePing)
	r.Post("/index-text", s.handleIndexText)
	r.Post("/index-image", s.handleIndexImage)
	r.Post("/search", s.handleSearch)
	r.Post("/search-image", s.handleSearchImage)
	r.Get("/products/{id}", s.handleGetProduct)
	r.Get("/status", s.handleStatus)
	return r
}

// Start starts the HTTP server and blocks until it stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
