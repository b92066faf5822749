package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OneAIgency/carbondesk/internal/depth"
	"github.com/OneAIgency/carbondesk/internal/domain"
)

// MarketData is the slice of the sync layer the market handler reads from.
// Implemented by feed.MarketDataSync.
type MarketData interface {
	OrderBook() (domain.OrderBookSnapshot, bool)
	Trades() []domain.Trade
}

// TradeHistory serves persisted trade prints beyond the in-memory tape.
// Implemented by postgres.TradeStore; nil when persistence is disabled.
type TradeHistory interface {
	ListByCertificate(ctx context.Context, ct domain.CertificateType, opts domain.ListOpts) ([]domain.Trade, error)
}

// MarketHandler serves order-book, trade, and fill-estimate endpoints.
type MarketHandler struct {
	market  MarketData
	history TradeHistory
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler over the given sync state.
// history may be nil.
func NewMarketHandler(market MarketData, history TradeHistory, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market:  market,
		history: history,
		logger:  logger,
	}
}

// orderBookResponse is the annotated snapshot served to the depth table:
// raw levels extended with running cumulative totals, plus the derived
// midpoint alongside the backend's own summary fields.
type orderBookResponse struct {
	CertificateType domain.CertificateType  `json:"certificate_type"`
	Bids            []domain.AnnotatedLevel `json:"bids"`
	Asks            []domain.AnnotatedLevel `json:"asks"`
	BestBid         decimal.NullDecimal     `json:"best_bid"`
	BestAsk         decimal.NullDecimal     `json:"best_ask"`
	Spread          decimal.NullDecimal     `json:"spread"`
	Midpoint        decimal.NullDecimal     `json:"midpoint"`
	LastPrice       decimal.NullDecimal     `json:"last_price"`
	CapturedAt      time.Time               `json:"captured_at"`
}

// GetOrderBook returns the latest snapshot with cumulative depth annotations.
// GET /api/market/orderbook
func (h *MarketHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.market.OrderBook()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "order book not yet synced")
		return
	}

	writeJSON(w, http.StatusOK, orderBookResponse{
		CertificateType: snap.CertificateType,
		Bids:            depth.Aggregate(snap.Bids),
		Asks:            depth.Aggregate(snap.Asks),
		BestBid:         snap.BestBid,
		BestAsk:         snap.BestAsk,
		Spread:          snap.Spread,
		Midpoint:        snap.Midpoint(),
		LastPrice:       snap.LastPrice,
		CapturedAt:      snap.CapturedAt,
	})
}

// listTradesResponse wraps the trade tape output.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns recent public trades. The aggressor side is not
// reported by the backend, so each print is labelled against the current
// bid/ask midpoint before serving.
// GET /api/market/trades?limit=50
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	var mid decimal.NullDecimal
	if snap, ok := h.market.OrderBook(); ok {
		mid = snap.Midpoint()
	}

	trades := h.market.Trades()
	if len(trades) > limit {
		trades = trades[:limit]
	}
	for i := range trades {
		trades[i].Side = trades[i].InferSide(mid)
	}

	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// ListTradeHistory returns persisted trade prints for one certificate,
// newest first. Unlike the live tape this survives restarts; it answers 404
// when the gateway runs without persistence.
// GET /api/market/trades/history?certificate_type=certificate_a&limit=100
func (h *MarketHandler) ListTradeHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "trade history is not enabled")
		return
	}

	ct := domain.CertificateType(r.URL.Query().Get("certificate_type"))
	if !ct.Valid() {
		writeError(w, http.StatusBadRequest, "unknown certificate type")
		return
	}

	trades, err := h.history.ListByCertificate(r.Context(), ct, domain.ListOpts{
		Limit: parseLimit(r, 100, 1000),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: trade history query failed",
			slog.String("certificate_type", string(ct)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load trade history")
		return
	}

	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// estimateResponse carries the local fill estimate. Estimate is null when
// the budget cannot buy a single unit at the best ask.
type estimateResponse struct {
	Estimate *domain.FillEstimate `json:"estimate"`
}

// EstimateFill walks the ask side against an EUR budget and returns the
// locally derived fill economics. Display-only; the backend preview remains
// the execution gate.
// GET /api/market/estimate?amount=1000
func (h *MarketHandler) EstimateFill(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("amount")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing amount parameter")
		return
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount parameter")
		return
	}
	if amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	snap, ok := h.market.OrderBook()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "order book not yet synced")
		return
	}

	writeJSON(w, http.StatusOK, estimateResponse{
		Estimate: depth.EstimateMarketBuy(snap.Asks, amount),
	})
}
