package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OneAIgency/carbondesk/internal/domain"
	"github.com/OneAIgency/carbondesk/internal/preview"
)

type fakeOrderService struct {
	result   domain.ExecutionResult
	err      error
	inFlight bool
	success  bool
	submits  []domain.OrderRequest
}

func (f *fakeOrderService) Submit(ctx context.Context, req domain.OrderRequest) (domain.ExecutionResult, error) {
	f.submits = append(f.submits, req)
	if f.err != nil {
		return domain.ExecutionResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeOrderService) InFlight() bool       { return f.inFlight }
func (f *fakeOrderService) SuccessVisible() bool { return f.success }

type fakePreviewService struct {
	refreshed  []domain.OrderRequest
	refreshErr error
	state      preview.State

	lastLocal    *domain.FillEstimate
	lastBalance  decimal.Decimal
	lastInFlight bool
}

func (f *fakePreviewService) Refresh(ctx context.Context, req domain.OrderRequest) error {
	f.refreshed = append(f.refreshed, req)
	return f.refreshErr
}

func (f *fakePreviewService) State(local *domain.FillEstimate, availableBalance decimal.Decimal, submissionInFlight bool) preview.State {
	f.lastLocal = local
	f.lastBalance = availableBalance
	f.lastInFlight = submissionInFlight
	return f.state
}

type fakeAccount struct {
	snap     domain.OrderBookSnapshot
	have     bool
	orders   []domain.Order
	balances domain.Balances
}

func (f *fakeAccount) OrderBook() (domain.OrderBookSnapshot, bool) { return f.snap, f.have }
func (f *fakeAccount) Orders() []domain.Order                     { return f.orders }
func (f *fakeAccount) Balances() domain.Balances                  { return f.balances }

func newOrderHandler(orders *fakeOrderService, previews *fakePreviewService, account *fakeAccount) *OrderHandler {
	return NewOrderHandler(orders, previews, account, nil, slog.New(slog.DiscardHandler))
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestOrderHandler_PreviewOrder(t *testing.T) {
	orders := &fakeOrderService{}
	previews := &fakePreviewService{
		state: preview.State{
			Backend:   &domain.OrderPreview{CanExecute: true},
			CanSubmit: true,
		},
	}
	account := &fakeAccount{
		snap:     testSnapshot(),
		have:     true,
		balances: domain.Balances{EUR: decimal.NewFromInt(5000)},
	}
	h := newOrderHandler(orders, previews, account)

	rec := httptest.NewRecorder()
	h.PreviewOrder(rec, postJSON("/api/orders/preview",
		`{"certificate_type":"certificate_a","side":"buy","amount_eur":"1000"}`))

	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, previews.refreshed, 1)
	assert.Equal(t, domain.OrderTypeMarket, previews.refreshed[0].OrderType)
	assert.Equal(t, domain.CertificateA, previews.refreshed[0].CertificateType)

	require.NotNil(t, previews.lastLocal, "local estimate computed from the synced book")
	assert.True(t, previews.lastLocal.FilledQuantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, previews.lastBalance.Equal(decimal.NewFromInt(5000)))

	var state preview.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.CanSubmit)
}

func TestOrderHandler_PreviewOrder_RefreshFailureStillAnswers(t *testing.T) {
	previews := &fakePreviewService{
		refreshErr: errors.New("backend down"),
		state:      preview.State{ErrorMessage: "preview unavailable"},
	}
	h := newOrderHandler(&fakeOrderService{}, previews, &fakeAccount{})

	rec := httptest.NewRecorder()
	h.PreviewOrder(rec, postJSON("/api/orders/preview",
		`{"certificate_type":"certificate_a","side":"buy","amount_eur":"1000"}`))

	require.Equal(t, http.StatusOK, rec.Code)

	var state preview.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.CanSubmit)
	assert.Equal(t, "preview unavailable", state.ErrorMessage)
}

func TestOrderHandler_PreviewOrder_BadPayload(t *testing.T) {
	h := newOrderHandler(&fakeOrderService{}, &fakePreviewService{}, &fakeAccount{})

	for name, body := range map[string]string{
		"not json":            `{`,
		"unknown certificate": `{"certificate_type":"certificate_z","side":"buy","amount_eur":"10"}`,
		"bad side":            `{"certificate_type":"certificate_a","side":"hold","amount_eur":"10"}`,
	} {
		rec := httptest.NewRecorder()
		h.PreviewOrder(rec, postJSON("/api/orders/preview", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestOrderHandler_PlaceMarketOrder(t *testing.T) {
	orders := &fakeOrderService{
		result: domain.ExecutionResult{
			Success:        true,
			OrderID:        "ord-1",
			FilledQuantity: decimal.NewFromInt(10),
		},
	}
	h := newOrderHandler(orders, &fakePreviewService{}, &fakeAccount{})

	rec := httptest.NewRecorder()
	h.PlaceMarketOrder(rec, postJSON("/api/orders/market",
		`{"client_id":"cid-7","certificate_type":"certificate_a","side":"buy","amount_eur":"1000"}`))

	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.ExecutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "ord-1", result.OrderID)

	require.Len(t, orders.submits, 1)
	assert.Equal(t, "cid-7", orders.submits[0].ClientID)
	assert.Equal(t, domain.OrderTypeMarket, orders.submits[0].OrderType)
}

func TestOrderHandler_PlaceMarketOrder_InFlightConflict(t *testing.T) {
	orders := &fakeOrderService{err: domain.ErrSubmissionInFlight}
	h := newOrderHandler(orders, &fakePreviewService{}, &fakeAccount{})

	rec := httptest.NewRecorder()
	h.PlaceMarketOrder(rec, postJSON("/api/orders/market",
		`{"certificate_type":"certificate_a","side":"buy","amount_eur":"1000"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrderHandler_PlaceMarketOrder_RejectionIsBadRequest(t *testing.T) {
	// The error chain a registry rejection produces: the client wraps the
	// sentinel with the registry's reason, the coordinator wraps once more.
	orders := &fakeOrderService{
		err: fmt.Errorf("executor: submit market order: %w",
			fmt.Errorf("registry: order rejected: %w: %s",
				domain.ErrExecutionBlocked, "insufficient balance for this order")),
	}
	h := newOrderHandler(orders, &fakePreviewService{}, &fakeAccount{})

	rec := httptest.NewRecorder()
	h.PlaceMarketOrder(rec, postJSON("/api/orders/market",
		`{"certificate_type":"certificate_a","side":"buy","amount_eur":"1000"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient balance for this order",
		"the registry's reason must reach the browser for inline display")
}

func TestOrderHandler_PlaceMarketOrder_InvalidParamsIsBadRequest(t *testing.T) {
	orders := &fakeOrderService{
		err: fmt.Errorf("executor: submit market order: %w", domain.ErrInvalidOrder),
	}
	h := newOrderHandler(orders, &fakePreviewService{}, &fakeAccount{})

	rec := httptest.NewRecorder()
	h.PlaceMarketOrder(rec, postJSON("/api/orders/market",
		`{"certificate_type":"certificate_a","side":"buy","amount_eur":"1000"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandler_PlaceMarketOrder_UpstreamFailure(t *testing.T) {
	orders := &fakeOrderService{err: errors.New("connection reset")}
	h := newOrderHandler(orders, &fakePreviewService{}, &fakeAccount{})

	rec := httptest.NewRecorder()
	h.PlaceMarketOrder(rec, postJSON("/api/orders/market",
		`{"certificate_type":"certificate_a","side":"buy","amount_eur":"1000"}`))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestOrderHandler_PlaceMarketOrder_NonPositiveAmount(t *testing.T) {
	orders := &fakeOrderService{}
	h := newOrderHandler(orders, &fakePreviewService{}, &fakeAccount{})

	rec := httptest.NewRecorder()
	h.PlaceMarketOrder(rec, postJSON("/api/orders/market",
		`{"certificate_type":"certificate_a","side":"buy","amount_eur":"0"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, orders.submits, "rejected before reaching the coordinator")
}

func TestOrderHandler_ListOrders(t *testing.T) {
	account := &fakeAccount{orders: []domain.Order{{ID: "o1"}, {ID: "o2"}}}
	h := newOrderHandler(&fakeOrderService{}, &fakePreviewService{}, account)

	rec := httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp listOrdersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Orders, 2)
}

func TestOrderHandler_GetBalances(t *testing.T) {
	account := &fakeAccount{balances: domain.Balances{EUR: decimal.NewFromInt(250)}}
	h := newOrderHandler(&fakeOrderService{success: true}, &fakePreviewService{}, account)

	rec := httptest.NewRecorder()
	h.GetBalances(rec, httptest.NewRequest(http.MethodGet, "/api/balances", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Balances       domain.Balances `json:"balances"`
		SuccessVisible bool            `json:"success_visible"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Balances.EUR.Equal(decimal.NewFromInt(250)))
	assert.True(t, resp.SuccessVisible)
}

type fakeExecutionHistory struct {
	records []domain.ExecutionRecord
	err     error
	lastOpt domain.ListOpts
}

func (f *fakeExecutionHistory) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionRecord, error) {
	f.lastOpt = opts
	return f.records, f.err
}

func TestOrderHandler_ListExecutions(t *testing.T) {
	history := &fakeExecutionHistory{
		records: []domain.ExecutionRecord{
			{ID: "e1", OrderID: "ord-1", Success: true},
			{ID: "e2", OrderID: "ord-2", Success: false},
		},
	}
	h := NewOrderHandler(&fakeOrderService{}, &fakePreviewService{}, &fakeAccount{}, history,
		slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.ListExecutions(rec, httptest.NewRequest(http.MethodGet, "/api/executions?limit=20", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp listExecutionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Executions, 2)
	assert.Equal(t, "ord-1", resp.Executions[0].OrderID)
	assert.Equal(t, 20, history.lastOpt.Limit)
}

func TestOrderHandler_ListExecutions_Disabled(t *testing.T) {
	h := newOrderHandler(&fakeOrderService{}, &fakePreviewService{}, &fakeAccount{})

	rec := httptest.NewRecorder()
	h.ListExecutions(rec, httptest.NewRequest(http.MethodGet, "/api/executions", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
