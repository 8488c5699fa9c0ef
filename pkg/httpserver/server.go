package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mselser95/mempool-engine/pkg/healthprobe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for metrics, health checks and the engine API.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration. API routes are mounted only for the
// collaborators provided.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Fees          FeeSource
	Positions     PositionSource
	Events        EventSource
	KillSwitch    KillSwitch
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           newRouter(cfg, logger),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger:        logger,
		healthChecker: cfg.HealthChecker,
	}
}

func newRouter(cfg *Config, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Routes
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	api := &APIHandler{
		fees:       cfg.Fees,
		positions:  cfg.Positions,
		events:     cfg.Events,
		killSwitch: cfg.KillSwitch,
		logger:     logger,
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.Fees != nil {
			r.Get("/fees", api.HandleFees)
		}
		if cfg.Positions != nil {
			r.Get("/positions", api.HandlePositions)
		}
		if cfg.Events != nil {
			r.Get("/events", api.HandleEvents)
		}
		if cfg.KillSwitch != nil {
			r.Get("/kill-switch", api.HandleKillSwitchStatus)
			r.Post("/kill-switch", api.HandleKillSwitch)
		}
	})

	return r
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
