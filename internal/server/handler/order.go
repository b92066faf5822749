package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/OneAIgency/carbondesk/internal/depth"
	"github.com/OneAIgency/carbondesk/internal/domain"
	"github.com/OneAIgency/carbondesk/internal/preview"
)

// OrderService is the submission surface the order handler drives.
// Implemented by executor.Coordinator.
type OrderService interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.ExecutionResult, error)
	InFlight() bool
	SuccessVisible() bool
}

// PreviewService reconciles local estimates with backend previews.
// Implemented by preview.Reconciler.
type PreviewService interface {
	Refresh(ctx context.Context, req domain.OrderRequest) error
	State(local *domain.FillEstimate, availableBalance decimal.Decimal, submissionInFlight bool) preview.State
}

// AccountData is the slice of the sync layer the order handler reads from.
// Implemented by feed.MarketDataSync.
type AccountData interface {
	OrderBook() (domain.OrderBookSnapshot, bool)
	Orders() []domain.Order
	Balances() domain.Balances
}

// ExecutionHistory lists past submissions from the audit log.
// Implemented by postgres.ExecutionStore; nil when persistence is disabled.
type ExecutionHistory interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionRecord, error)
}

// OrderHandler serves preview, execution, order, and balance endpoints.
type OrderHandler struct {
	orders   OrderService
	previews PreviewService
	account  AccountData
	history  ExecutionHistory
	logger   *slog.Logger
}

// NewOrderHandler creates an OrderHandler wired to the coordinator, the
// preview reconciler, and the sync state. history may be nil.
func NewOrderHandler(orders OrderService, previews PreviewService, account AccountData, history ExecutionHistory, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		previews: previews,
		account:  account,
		history:  history,
		logger:   logger,
	}
}

// orderRequestBody is the browser's order payload for both preview and
// execution. ClientID is optional; the coordinator assigns one when absent.
type orderRequestBody struct {
	ClientID        string          `json:"client_id"`
	CertificateType string          `json:"certificate_type"`
	Side            string          `json:"side"`
	AmountEUR       decimal.Decimal `json:"amount_eur"`
}

// toDomain validates the payload and converts it to a market-order request.
func (b orderRequestBody) toDomain() (domain.OrderRequest, error) {
	ct := domain.CertificateType(b.CertificateType)
	if !ct.Valid() {
		return domain.OrderRequest{}, errors.New("unknown certificate type")
	}

	side := domain.OrderSide(b.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return domain.OrderRequest{}, errors.New("side must be buy or sell")
	}

	return domain.OrderRequest{
		ClientID:        b.ClientID,
		CertificateType: ct,
		Side:            side,
		AmountEUR:       b.AmountEUR,
		OrderType:       domain.OrderTypeMarket,
	}, nil
}

// PreviewOrder refreshes the backend preview for the order being composed
// and returns the merged confirmation state. A failed backend fetch still
// answers 200: the state carries the error and keeps the gate closed.
// POST /api/orders/preview
func (h *OrderHandler) PreviewOrder(w http.ResponseWriter, r *http.Request) {
	var body orderRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := body.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.previews.Refresh(r.Context(), req); err != nil {
		h.logger.WarnContext(r.Context(), "handler: preview refresh failed",
			slog.String("certificate_type", string(req.CertificateType)),
			slog.String("error", err.Error()),
		)
	}

	var local *domain.FillEstimate
	if snap, ok := h.account.OrderBook(); ok {
		local = depth.EstimateMarketBuy(snap.Asks, req.AmountEUR)
	}

	state := h.previews.State(local, h.account.Balances().EUR, h.orders.InFlight())
	writeJSON(w, http.StatusOK, state)
}

// PlaceMarketOrder submits a market order through the coordinator. A second
// submission while one is pending answers 409; a backend rejection answers
// 400 so the message renders inline next to the trigger.
// POST /api/orders/market
func (h *OrderHandler) PlaceMarketOrder(w http.ResponseWriter, r *http.Request) {
	var body orderRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := body.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AmountEUR.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	result, err := h.orders.Submit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSubmissionInFlight):
			writeError(w, http.StatusConflict, "a submission is already in flight")
		case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrExecutionBlocked):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: market order failed",
				slog.String("certificate_type", string(req.CertificateType)),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "order execution failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// listOrdersResponse wraps the user's open orders.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns the user's orders from the last sync tick.
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: h.account.Orders()})
}

// GetBalances returns the last synced balances together with the transient
// post-execution success flag the confirmation surface polls for.
// GET /api/balances
func (h *OrderHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"balances":        h.account.Balances(),
		"success_visible": h.orders.SuccessVisible(),
	})
}

// listExecutionsResponse wraps a page of audit-log entries.
type listExecutionsResponse struct {
	Executions []domain.ExecutionRecord `json:"executions"`
}

// ListExecutions returns the gateway's own submission history, newest first.
// Answers 404 when the gateway runs without persistence.
// GET /api/executions?limit=50
func (h *OrderHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "execution history is not enabled")
		return
	}

	records, err := h.history.ListRecent(r.Context(), domain.ListOpts{
		Limit: parseLimit(r, 50, 500),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: execution history query failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load execution history")
		return
	}

	writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: records})
}
