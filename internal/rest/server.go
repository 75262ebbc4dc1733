// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-fido2-server.
//
// go-fido2-server is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-fido2-server/internal/metrics"
	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
	"github.com/jeremyhahn/go-fido2-server/pkg/logging"
)

// Server represents the REST API server.
type Server struct {
	server   *http.Server
	handlers *HandlerContext
	addr     string
	certFile string
	keyFile  string
	logger   logging.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Host is the listen address (default: all interfaces)
	Host string

	// Port is the HTTP port to listen on (default: 8443)
	Port int

	// Service is the ceremony service (required)
	Service *fido2.Service

	// Logger is the logging adapter (optional, defaults to stderr text)
	Logger logging.Logger

	// CertFile and KeyFile enable TLS when both are set
	CertFile string
	KeyFile  string

	// CORSAllowedOrigins lists origins allowed to call the API. Empty
	// disables the CORS middleware.
	CORSAllowedOrigins []string

	// MetricsEnabled exposes the Prometheus endpoint
	MetricsEnabled bool

	// MetricsPath is the metrics endpoint path (default: /metrics)
	MetricsPath string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("ceremony service is required")
	}

	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	server := &Server{
		handlers: NewHandlerContext(cfg.Service, log),
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		certFile: cfg.CertFile,
		keyFile:  cfg.KeyFile,
		logger:   log,
	}

	router := server.setupRouter(cfg)

	server.server = &http.Server{
		Addr:         server.addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(cfg *Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware()) // Add correlation ID before logging
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(CORSMiddleware(cfg.CORSAllowedOrigins))
	}

	// Legacy health endpoint (load balancer compatibility)
	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)

	// Kubernetes-style health probes
	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)

	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	// Ceremony endpoints
	r.Post("/makeCredentialOptions", s.handlers.BeginRegistrationHandler)
	r.Post("/makeCredential", s.handlers.FinishRegistrationHandler)
	r.Post("/assertionOptions", s.handlers.BeginAuthenticationHandler)
	r.Post("/makeAssertion", s.handlers.FinishAuthenticationHandler)

	// Credential management
	r.Get("/passkeys", s.handlers.ListCredentialsHandler)
	r.Delete("/passkeys/{id}", s.handlers.DeleteCredentialHandler)

	return r
}

// Start starts the REST API server and blocks until shutdown.
func (s *Server) Start() error {
	if s.certFile != "" && s.keyFile != "" {
		s.logger.Info("Starting HTTPS server", logging.String("addr", s.addr))
		if err := s.server.ListenAndServeTLS(s.certFile, s.keyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	}

	s.logger.Info("Starting HTTP server", logging.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logging.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the configured router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
