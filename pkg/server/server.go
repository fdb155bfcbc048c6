// Package server provides the remedyd HTTP API.
//
// The server exposes proposal intake, metric observation intake, the
// approval workflow, record inspection, feedback, and learning
// insights over an Echo router with
// standard middleware, plus /health and Prometheus /metrics, with
// context-aware graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/services"
)

// Config holds HTTP server configuration.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	ServiceName     string
}

// DefaultConfig returns server defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            8484,
		ShutdownTimeout: 10 * time.Second,
		ServiceName:     "remedyd",
	}
}

// Server represents the HTTP server.
type Server struct {
	cfg      *Config
	registry services.Registry
	logger   *zap.Logger
	echo     *echo.Echo
}

// HealthResponse is the JSON response for the /health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(cfg *Config, registry services.Registry, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if registry == nil {
		return nil, fmt.Errorf("service registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		echo:     e,
	}
	s.registerRoutes()

	return s, nil
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/proposals", s.handleSubmitProposal)
	v1.POST("/observations", s.handleSubmitObservation)
	v1.GET("/approvals", s.handleListApprovals)
	v1.GET("/records", s.handleListRecords)
	v1.GET("/records/:id", s.handleGetRecord)
	v1.POST("/records/:id/approve", s.handleApprove)
	v1.POST("/records/:id/reject", s.handleReject)
	v1.POST("/records/:id/cancel", s.handleCancel)
	v1.POST("/records/:id/feedback", s.handleFeedback)
	v1.GET("/insights", s.handleInsights)
	v1.GET("/patterns", s.handleListPatterns)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: s.cfg.ServiceName,
	})
}

// Start starts the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully. Returns http.ErrServerClosed
// on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering additional
// routes or for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
