// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	apihandler "github.com/newthinker/botdash/internal/api/handler/api"
	"github.com/newthinker/botdash/internal/api/handler/web"
	"github.com/newthinker/botdash/internal/dashboard"
	"github.com/newthinker/botdash/internal/metrics"
	"github.com/newthinker/botdash/internal/router"
	"github.com/newthinker/botdash/internal/storage/history"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for the dashboard
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     chi.Router
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	TemplatesDir   string
	Title          string
	BackendURL     string
	PollInterval   time.Duration
	MetricsEnabled bool
	MetricsPath    string
}

// Dependencies holds the components the server exposes.
type Dependencies struct {
	Dashboard *dashboard.Controller
	Metrics   *metrics.Registry
	History   history.Store
	Router    *router.Router
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Dashboard == nil {
		return nil, fmt.Errorf("dashboard controller is required")
	}

	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		router: r,
	}

	// Set up routes
	if err := s.setupRoutes(cfg, deps); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) error {
	s.router.Use(chimw.Recoverer)
	s.router.Use(metrics.LoggingMiddleware(s.logger))
	if deps.Metrics != nil {
		s.router.Use(metrics.HTTPMiddleware(deps.Metrics))
	}

	// Web UI routes
	webHandler, err := web.NewHandler(deps.Dashboard, web.PageOptions{
		Title:        cfg.Title,
		PollInterval: cfg.PollInterval,
		BackendURL:   cfg.BackendURL,
	}, cfg.TemplatesDir, s.logger)
	if err != nil {
		return fmt.Errorf("creating web handler: %w", err)
	}

	s.router.Get("/", webHandler.Dashboard)
	s.router.Get("/fragments/{region}", webHandler.Fragment)
	s.router.Post("/control/start", webHandler.Start)
	s.router.Post("/control/stop", webHandler.Stop)
	s.router.Post("/notifications/{id}/dismiss", webHandler.Dismiss)

	// JSON API routes
	viewHandler := apihandler.NewViewHandler(deps.Dashboard)
	controlHandler := apihandler.NewControlHandler(deps.Dashboard)

	s.router.Route("/api", func(r chi.Router) {
		var stats apihandler.StatsSource
		if deps.Router != nil {
			stats = deps.Router
		}
		r.Get("/health", apihandler.Health(deps.Dashboard, stats))
		r.Get("/view", viewHandler.Get)
		r.Post("/control/start", controlHandler.Start)
		r.Post("/control/stop", controlHandler.Stop)

		if deps.History != nil {
			historyHandler := apihandler.NewHistoryHandler(deps.History)
			r.Get("/signals/history", historyHandler.List)
			r.Get("/signals/history/{key}", historyHandler.Get)
		}
	})

	if cfg.MetricsEnabled && deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	return nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
