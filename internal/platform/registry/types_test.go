package registry

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

func TestCamelToSnake(t *testing.T) {
	cases := map[string]string{
		"bestBid":         "best_bid",
		"best_bid":        "best_bid",
		"amountEUR":       "amount_eur",
		"EUR":             "eur",
		"certificateA":    "certificate_a",
		"orderID":         "order_id",
		"capturedAt":      "captured_at",
		"price":           "price",
		"weightedAvgPrice": "weighted_avg_price",
	}
	for in, want := range cases {
		assert.Equal(t, want, camelToSnake(in), "input %q", in)
	}
}

func TestDecodeNormalized_CamelCaseOrderBook(t *testing.T) {
	raw := []byte(`{
		"certificateType": "certificate_a",
		"bids": [{"price": "98.5", "quantity": "20", "orderCount": 3}],
		"asks": [{"price": "100", "quantity": "10"}],
		"bestBid": "98.5",
		"bestAsk": "100",
		"lastPrice": null,
		"capturedAt": "2026-09-01T10:00:00Z"
	}`)

	var book apiOrderBook
	require.NoError(t, decodeNormalized(raw, &book))

	snap := book.toDomain()
	assert.Equal(t, domain.CertificateA, snap.CertificateType)
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Price.Equal(decimal.RequireFromString("98.5")))
	assert.Equal(t, 3, snap.Bids[0].OrderCount)
	require.True(t, snap.BestAsk.Valid)
	assert.True(t, snap.BestAsk.Decimal.Equal(decimal.NewFromInt(100)))
	assert.False(t, snap.LastPrice.Valid)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), snap.CapturedAt)
}

func TestDecodeNormalized_NullSummaryFields(t *testing.T) {
	// An empty book side arrives with null summary fields; they must survive
	// normalization as nulls, not empty objects.
	norm, err := normalizeKeys([]byte(`{"bestBid": null}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"best_bid": null}`, string(norm))

	raw := []byte(`{
		"certificateType": "certificate_a",
		"bids": [],
		"asks": [{"price": "100", "quantity": "10"}],
		"bestBid": null,
		"bestAsk": "100",
		"spread": null,
		"lastPrice": null,
		"capturedAt": "2026-09-01T10:00:00Z"
	}`)

	var book apiOrderBook
	require.NoError(t, decodeNormalized(raw, &book))

	assert.False(t, book.BestBid.Valid)
	assert.False(t, book.Spread.Valid)
	assert.False(t, book.LastPrice.Valid)
	require.True(t, book.BestAsk.Valid)
	assert.True(t, book.BestAsk.Decimal.Equal(decimal.NewFromInt(100)))
}

func TestDecodeNormalized_SnakeCasePassesThrough(t *testing.T) {
	raw := []byte(`{"best_bid": "98.5", "captured_at": 1700000000, "bids": [], "asks": []}`)

	var book apiOrderBook
	require.NoError(t, decodeNormalized(raw, &book))

	require.True(t, book.BestBid.Valid)
	assert.True(t, book.BestBid.Decimal.Equal(decimal.RequireFromString("98.5")))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), book.CapturedAt.Time())
}

func TestFlexTime_RejectsGarbage(t *testing.T) {
	var book apiOrderBook
	err := decodeNormalized([]byte(`{"captured_at": "yesterday"}`), &book)
	assert.Error(t, err)
}

func TestAPIOrder_StatusMapping(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"open":      domain.OrderStatusOpen,
		"live":      domain.OrderStatusOpen,
		"filled":    domain.OrderStatusFilled,
		"matched":   domain.OrderStatusFilled,
		"cancelled": domain.OrderStatusCancelled,
		"canceled":  domain.OrderStatusCancelled,
		"rejected":  domain.OrderStatusRejected,
		"anything":  domain.OrderStatusPending,
	}
	for in, want := range cases {
		o := apiOrder{Status: in}
		assert.Equal(t, want, o.toDomain().Status, "status %q", in)
	}
}

func TestAPIReferencePrices_ToDomain(t *testing.T) {
	raw := []byte(`{
		"prices": {"certificate_a": "30.25", "certificate_b": 28},
		"capturedAt": "2026-09-01T10:00:00Z"
	}`)

	var prices apiReferencePrices
	require.NoError(t, decodeNormalized(raw, &prices))

	out := prices.toDomain()
	a, ok := out.Price(domain.CertificateA)
	require.True(t, ok)
	assert.True(t, a.Equal(decimal.RequireFromString("30.25")))
	b, ok := out.Price(domain.CertificateB)
	require.True(t, ok)
	assert.True(t, b.Equal(decimal.NewFromInt(28)))
}
