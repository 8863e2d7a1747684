// Package server exposes the tracked market over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/alanyoungcy/coinwatch/internal/server/handler"
	"github.com/alanyoungcy/coinwatch/internal/server/middleware"
	"github.com/alanyoungcy/coinwatch/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	RateLimit       int // requests per window and client; 0 disables
	RateLimitWindow time.Duration
}

// Handlers groups the route handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Market  *handler.MarketHandler
	Status  *handler.StatusHandler
	Archive *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain. limiter
// and hub may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, hub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler returns the routed, wrapped handler without binding a port.
func NewHandler(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	if m := handlers.Market; m != nil {
		mux.HandleFunc("GET /api/market/bbo", m.GetBBO)
		mux.HandleFunc("GET /api/market/orderbook", m.GetOrderBook)
		mux.HandleFunc("GET /api/market/trades", m.ListTrades)
		mux.HandleFunc("GET /api/market/ticker", m.GetTicker)
		mux.HandleFunc("GET /api/market/transactions", m.ListTransactions)
		mux.HandleFunc("GET /api/market/eurusd", m.GetConversionRate)
	}

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Archive != nil {
		mux.HandleFunc("POST /api/archive/run", handlers.Archive.TriggerArchive)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	mws := []middleware.Middleware{
		middleware.CORS(cfg.CORSOrigins),
		middleware.Logging(logger),
	}
	if limiter != nil && cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger))
	}
	mws = append(mws, middleware.Auth(cfg.APIKey, "/api/health"))

	return middleware.Chain(mux, mws...)
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
