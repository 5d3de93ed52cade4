package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"memorialqr/internal/auth"
	"memorialqr/internal/config"
	"memorialqr/internal/database"
	"memorialqr/internal/metrics"
	"memorialqr/internal/session"

	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the long-lived collaborators the server is built from
type Deps struct {
	// DB is optional; when set, /health reports on it.
	DB       database.Service
	Sessions session.Store
	Accounts auth.AccountRepository
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Server holds the dependencies for the HTTP server
type Server struct {
	cfg *config.Config

	db       database.Service
	sessions session.Store
	accounts auth.AccountRepository
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New validates deps and registers the metrics collectors
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("server: session store is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("server: account repository is required")
	}

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:      cfg,
		db:       deps.DB,
		sessions: deps.Sessions,
		accounts: deps.Accounts,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}, nil
}

// HTTPServer wraps the router in an http.Server configured from cfg.Server
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.RegisterRoutes(),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func (s *Server) cookie() session.CookieOptions {
	return session.CookieOptions{
		Name:     s.cfg.Session.CookieName,
		Secure:   s.cfg.IsProduction(),
		Lifetime: s.cfg.Session.Lifetime,
	}
}
