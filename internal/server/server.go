// Package server exposes the betting engine over HTTP and websocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/server/handler"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/server/middleware"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RequestsPerSecond rate-limits each client IP when a limiter is wired.
	RequestsPerSecond int
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Rounds *handler.RoundHandler
	State  *handler.StateHandler
}

// Server is the HTTP + websocket API over the settlement engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. wsHub and
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market state and admin.
	mux.HandleFunc("GET /api/state", handlers.State.GetState)
	mux.HandleFunc("PUT /api/config", handlers.State.UpdateConfig)
	mux.HandleFunc("POST /api/house/withdrawals", handlers.State.Withdraw)
	mux.HandleFunc("POST /api/treasury/deposits", handlers.State.Deposit)
	mux.HandleFunc("DELETE /api/round-records", handlers.State.ResetRecords)

	// Round lifecycle.
	mux.HandleFunc("POST /api/rounds", handlers.Rounds.OpenRound)
	mux.HandleFunc("GET /api/rounds/{id}", handlers.Rounds.GetRound)
	mux.HandleFunc("POST /api/rounds/{id}/bets", handlers.Rounds.PlaceBet)
	mux.HandleFunc("POST /api/rounds/{id}/anticipation", handlers.Rounds.StartAnticipation)
	mux.HandleFunc("POST /api/rounds/{id}/resolution", handlers.Rounds.ResolveRound)
	mux.HandleFunc("POST /api/rounds/{id}/claims", handlers.Rounds.ClaimWin)
	mux.HandleFunc("DELETE /api/rounds/{id}", handlers.Rounds.CloseRound)

	// Websocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RequestsPerSecond > 0 {
		h = middleware.RateLimit(limiter, cfg.RequestsPerSecond, time.Second)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
