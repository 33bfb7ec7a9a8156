// Package server exposes a small read-mostly HTTP API over the running seller
// sessions: health, per-source load state, tariff coverage and on-demand
// profit reports.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port int
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Sellers *handler.SellerHandler
}

// Server is the status API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// Routes registers every endpoint and wraps them in the middleware chain.
func Routes(h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.Health)
	mux.HandleFunc("GET /api/ready", h.Health.Ready)

	mux.HandleFunc("GET /api/sellers", h.Sellers.List)
	mux.HandleFunc("GET /api/sellers/{seller}/status", h.Sellers.Status)
	mux.HandleFunc("GET /api/sellers/{seller}/tariffs", h.Sellers.Tariffs)
	mux.HandleFunc("GET /api/sellers/{seller}/report", h.Sellers.Report)
	mux.HandleFunc("POST /api/sellers/{seller}/refetch", h.Sellers.Refetch)

	var out http.Handler = mux
	out = middleware.Logging(logger)(out)
	out = middleware.RequestID(out)
	return out
}

// NewServer creates a Server listening on cfg.Port.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           Routes(h, logger),
			ReadHeaderTimeout: 5 * time.Second,
			// Reports are computed on demand and may take a while.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
