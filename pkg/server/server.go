// Package server provides the admin HTTP API for the admission controller.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/history"
)

// Server is the admin HTTP server exposing admission checks, limit
// management, analytics, and telemetry endpoints.
type Server struct {
	config   *config.ServerConfig
	limiter  Limiter
	histBack history.Backend
	registry *prometheus.Registry
	metrics  *config.MetricsConfig
	logger   *slog.Logger

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Options contains the dependencies for the admin server.
type Options struct {
	// Config is the server configuration. Required.
	Config *config.ServerConfig

	// Limiter is the admission core. Required.
	Limiter Limiter

	// History is the decision archive backend for the query endpoint.
	// Optional; the endpoint returns 404 when nil.
	History history.Backend

	// Registry is the Prometheus registry to expose. Optional.
	Registry *prometheus.Registry

	// Metrics configures the metrics endpoint. Optional.
	Metrics *config.MetricsConfig

	// Logger is the structured logger. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewServer creates a new admin server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:       opts.Config,
		limiter:      opts.Limiter,
		histBack:     opts.History,
		registry:     opts.Registry,
		metrics:      opts.Metrics,
		logger:       logger,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start starts the HTTP server and blocks until the context is cancelled,
// Shutdown is called, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server", "address", s.config.ListenAddress)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("admin server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/check", s.handleCheck)
	mux.HandleFunc("POST /v1/refill", s.handleRefill)
	mux.HandleFunc("POST /v1/reset", s.handleReset)
	mux.HandleFunc("PUT /v1/config/{identity}", s.handleConfigure)
	mux.HandleFunc("GET /v1/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /v1/history", s.handleHistory)

	if s.registry != nil && s.metrics != nil && s.metrics.Enabled {
		mux.Handle("GET "+s.metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			Registry: s.registry,
		}))
	}

	var handler http.Handler = mux
	handler = requestIDMiddleware(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)

	return handler
}
