// Package server hosts the browser-facing HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/OneAIgency/carbondesk/internal/server/handler"
	"github.com/OneAIgency/carbondesk/internal/server/middleware"
	"github.com/OneAIgency/carbondesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Market *handler.MarketHandler
	Orders *handler.OrderHandler
}

// Server is the HTTP + WebSocket front for the trading interface.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (CORS, logging, auth) applied. wsHub may be nil when streaming is
// disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Liveness.
	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)

	// Market data.
	mux.HandleFunc("GET /api/market/orderbook", handlers.Market.GetOrderBook)
	mux.HandleFunc("GET /api/market/trades", handlers.Market.ListTrades)
	mux.HandleFunc("GET /api/market/trades/history", handlers.Market.ListTradeHistory)
	mux.HandleFunc("GET /api/market/estimate", handlers.Market.EstimateFill)

	// Orders and balances.
	mux.HandleFunc("POST /api/orders/preview", handlers.Orders.PreviewOrder)
	mux.HandleFunc("POST /api/orders/market", handlers.Orders.PlaceMarketOrder)
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /api/balances", handlers.Orders.GetBalances)
	mux.HandleFunc("GET /api/executions", handlers.Orders.ListExecutions)

	// Event streaming.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
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

// Start begins listening for HTTP requests and blocks until the server
// errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
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
