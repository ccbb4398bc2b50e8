// Package server exposes the quoter over a small JSON HTTP API: book and
// decision lookups per market, the fee calculator, and read access to
// archived scans and recorded decisions.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/alanyoungcy/kalshimm/internal/server/handler"
	"github.com/alanyoungcy/kalshimm/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port               int
	CORSOrigins        []string
	APIKey             string // if empty, authentication is disabled
	RateLimitPerMinute int    // zero disables throttling
}

// Handlers aggregates the HTTP handlers to register. Markets and Reports
// are optional.
type Handlers struct {
	Health  *handler.HealthHandler
	Fees    *handler.FeeHandler
	Markets *handler.MarketHandler
	Reports *handler.ReportHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil,
// in which case no per-client throttling is applied.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Health.Status)

	// Fee calculator.
	mux.HandleFunc("GET /api/fees", handlers.Fees.Fee)
	mux.HandleFunc("GET /api/fees/roundtrip", handlers.Fees.RoundTrip)
	mux.HandleFunc("GET /api/fees/spread", handlers.Fees.Spread)
	mux.HandleFunc("GET /api/fees/decision", handlers.Fees.Decision)

	// Market endpoints.
	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
		mux.HandleFunc("GET /api/markets/{ticker}/book", handlers.Markets.GetBook)
		mux.HandleFunc("GET /api/markets/{ticker}/liquidity", handlers.Markets.GetLiquidity)
		mux.HandleFunc("GET /api/markets/{ticker}/evaluation", handlers.Markets.GetEvaluation)
		mux.HandleFunc("POST /api/markets/{ticker}/quote", handlers.Markets.PlaceQuote)
	}

	// Reports over stored runs.
	if r := handlers.Reports; r != nil {
		if r.HasScans() {
			mux.HandleFunc("GET /api/scans/latest", r.LatestScan)
		}
		if r.HasFeed() {
			mux.HandleFunc("GET /api/decisions", r.RecentDecisions)
		}
		if r.HasStores() {
			mux.HandleFunc("GET /api/markets/{ticker}/decisions", r.DecisionHistory)
			mux.HandleFunc("GET /api/audit", r.AuditLog)
		}
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
