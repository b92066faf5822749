package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OneAIgency/carbondesk/internal/crypto"
	"github.com/OneAIgency/carbondesk/internal/domain"
)

func testAuth() *crypto.HMACAuth {
	return &crypto.HMACAuth{Key: "key-1", Secret: "c2VjcmV0", Passphrase: "phrase"}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL}, testAuth())
}

func TestClient_OrderBook(t *testing.T) {
	var gotPath string
	var gotHeaders http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotHeaders = r.Header.Clone()
		w.Write([]byte(`{
			"certificateType": "certificate_a",
			"bids": [{"price": "98.5", "quantity": "20"}],
			"asks": [{"price": "100", "quantity": "10"}],
			"bestBid": "98.5",
			"bestAsk": "100",
			"capturedAt": "2026-09-01T10:00:00Z"
		}`))
	})

	snap, err := c.OrderBook(context.Background(), domain.CertificateA)
	require.NoError(t, err)

	assert.Equal(t, "/api/orderbook?certificate_type=certificate_a", gotPath)
	assert.Equal(t, "key-1", gotHeaders.Get("CD-ACCESS-KEY"))
	assert.NotEmpty(t, gotHeaders.Get("CD-ACCESS-SIGN"))
	assert.NotEmpty(t, gotHeaders.Get("CD-ACCESS-TIMESTAMP"))

	assert.Equal(t, domain.CertificateA, snap.CertificateType)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Asks[0].Price.Equal(decimal.NewFromInt(100)))
	mid := snap.Midpoint()
	require.True(t, mid.Valid)
	assert.True(t, mid.Decimal.Equal(decimal.RequireFromString("99.25")))
}

func TestClient_RecentTrades(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			{"id": "t1", "certificateType": "certificate_a", "price": "99", "quantity": "5", "executedAt": 1700000000}
		]`))
	})

	trades, err := c.RecentTrades(context.Background(), domain.CertificateA, 50)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(99)))
}

func TestClient_PreviewOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "1000", req["amount_eur"])

		w.Write([]byte(`{
			"canExecute": true,
			"platformFeeRate": "0.005",
			"totalCostNet": "1005",
			"bestPrice": "100",
			"worstPrice": "101"
		}`))
	})

	preview, err := c.PreviewOrder(context.Background(), domain.OrderRequest{
		CertificateType: domain.CertificateA,
		Side:            domain.OrderSideBuy,
		AmountEUR:       decimal.NewFromInt(1000),
		OrderType:       domain.OrderTypeMarket,
	})
	require.NoError(t, err)
	assert.True(t, preview.CanExecute)
	assert.True(t, preview.TotalCostNet.Equal(decimal.NewFromInt(1005)))
}

func TestClient_ExecuteMarketOrder_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "insufficient balance"}`))
	})

	result, err := c.ExecuteMarketOrder(context.Background(), domain.OrderRequest{
		AmountEUR: decimal.NewFromInt(1000),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionBlocked)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.False(t, result.Success)
}

func TestClient_StatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusNotFound:            domain.ErrNotFound,
		http.StatusUnauthorized:        domain.ErrUnauthorized,
		http.StatusForbidden:           domain.ErrUnauthorized,
		http.StatusTooManyRequests:     domain.ErrRateLimited,
		http.StatusBadRequest:          domain.ErrInvalidOrder,
		http.StatusUnprocessableEntity: domain.ErrInvalidOrder,
	}

	for status, sentinel := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		_, err := c.Balances(context.Background())
		assert.ErrorIs(t, err, sentinel, "HTTP %d", status)
	}
}
