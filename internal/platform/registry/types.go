package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// The registry has historically sent field names in both snake_case and
// camelCase depending on the endpoint revision. Every response body is
// normalized to snake_case keys before decoding so the DTOs below only need
// one set of tags.

// decodeNormalized unmarshals raw JSON into v after rewriting every object
// key to snake_case.
func decodeNormalized(raw []byte, v any) error {
	norm, err := normalizeKeys(raw)
	if err != nil {
		return fmt.Errorf("normalize keys: %w", err)
	}
	return json.Unmarshal(norm, v)
}

// normalizeKeys recursively rewrites object keys to snake_case. Values that
// are not objects or arrays pass through untouched.
func normalizeKeys(raw json.RawMessage) (json.RawMessage, error) {
	// A JSON null unmarshals into a map or slice without error, so it would
	// be re-encoded as {} and corrupt NullDecimal fields downstream.
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return raw, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		out := make(map[string]json.RawMessage, len(obj))
		for k, v := range obj {
			nv, err := normalizeKeys(v)
			if err != nil {
				return nil, err
			}
			out[camelToSnake(k)] = nv
		}
		return json.Marshal(out)
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		for i, v := range arr {
			nv, err := normalizeKeys(v)
			if err != nil {
				return nil, err
			}
			arr[i] = nv
		}
		return json.Marshal(arr)
	}

	return raw, nil
}

// camelToSnake converts camelCase to snake_case. Acronym runs collapse to a
// single word ("amountEUR" becomes "amount_eur"); keys already in snake_case
// pass through unchanged.
func camelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// flexTime unmarshals from an RFC 3339 string or a Unix epoch number.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = flexTime(time.Time{})
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		*f = flexTime(t)
		return nil
	}

	var epoch int64
	if err := json.Unmarshal(data, &epoch); err != nil {
		return fmt.Errorf("timestamp is neither RFC 3339 nor epoch: %s", string(data))
	}
	*f = flexTime(time.Unix(epoch, 0).UTC())
	return nil
}

func (f flexTime) Time() time.Time { return time.Time(f) }

// --------------------------------------------------------------------------
// Registry API DTOs
// --------------------------------------------------------------------------

type apiPriceLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderCount int             `json:"order_count"`
}

func (l apiPriceLevel) toDomain() domain.PriceLevel {
	return domain.PriceLevel{
		Price:      l.Price,
		Quantity:   l.Quantity,
		OrderCount: l.OrderCount,
	}
}

type apiOrderBook struct {
	CertificateType string              `json:"certificate_type"`
	Bids            []apiPriceLevel     `json:"bids"`
	Asks            []apiPriceLevel     `json:"asks"`
	BestBid         decimal.NullDecimal `json:"best_bid"`
	BestAsk         decimal.NullDecimal `json:"best_ask"`
	Spread          decimal.NullDecimal `json:"spread"`
	LastPrice       decimal.NullDecimal `json:"last_price"`
	CapturedAt      flexTime            `json:"captured_at"`
}

func (b *apiOrderBook) toDomain() domain.OrderBookSnapshot {
	snap := domain.OrderBookSnapshot{
		CertificateType: domain.CertificateType(b.CertificateType),
		Bids:            make([]domain.PriceLevel, 0, len(b.Bids)),
		Asks:            make([]domain.PriceLevel, 0, len(b.Asks)),
		BestBid:         b.BestBid,
		BestAsk:         b.BestAsk,
		Spread:          b.Spread,
		LastPrice:       b.LastPrice,
		CapturedAt:      b.CapturedAt.Time(),
	}
	for _, lvl := range b.Bids {
		snap.Bids = append(snap.Bids, lvl.toDomain())
	}
	for _, lvl := range b.Asks {
		snap.Asks = append(snap.Asks, lvl.toDomain())
	}
	return snap
}

type apiTrade struct {
	ID              string          `json:"id"`
	CertificateType string          `json:"certificate_type"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	Side            string          `json:"side"`
	ExecutedAt      flexTime        `json:"executed_at"`
}

func (t *apiTrade) toDomain() domain.Trade {
	return domain.Trade{
		ID:              t.ID,
		CertificateType: domain.CertificateType(t.CertificateType),
		Price:           t.Price,
		Quantity:        t.Quantity,
		Side:            domain.OrderSide(strings.ToLower(t.Side)),
		ExecutedAt:      t.ExecutedAt.Time(),
	}
}

type apiOrder struct {
	ID              string          `json:"id"`
	CertificateType string          `json:"certificate_type"`
	Side            string          `json:"side"`
	Type            string          `json:"type"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	FilledQuantity  decimal.Decimal `json:"filled_quantity"`
	Status          string          `json:"status"`
	CreatedAt       flexTime        `json:"created_at"`
}

func (o *apiOrder) toDomain() domain.Order {
	out := domain.Order{
		ID:              o.ID,
		CertificateType: domain.CertificateType(o.CertificateType),
		Side:            domain.OrderSide(strings.ToLower(o.Side)),
		Type:            domain.OrderType(strings.ToLower(o.Type)),
		Price:           o.Price,
		Quantity:        o.Quantity,
		FilledQuantity:  o.FilledQuantity,
		CreatedAt:       o.CreatedAt.Time(),
	}

	switch strings.ToLower(o.Status) {
	case "open", "live", "active":
		out.Status = domain.OrderStatusOpen
	case "filled", "matched":
		out.Status = domain.OrderStatusFilled
	case "cancelled", "canceled":
		out.Status = domain.OrderStatusCancelled
	case "rejected":
		out.Status = domain.OrderStatusRejected
	default:
		out.Status = domain.OrderStatusPending
	}

	return out
}

type apiBalances struct {
	EUR          decimal.Decimal `json:"eur"`
	CertificateA decimal.Decimal `json:"certificate_a"`
	CertificateB decimal.Decimal `json:"certificate_b"`
}

func (b *apiBalances) toDomain() domain.Balances {
	return domain.Balances{
		EUR:          b.EUR,
		CertificateA: b.CertificateA,
		CertificateB: b.CertificateB,
	}
}

type apiOrderPreview struct {
	CanExecute        bool            `json:"can_execute"`
	ExecutionMessage  string          `json:"execution_message"`
	PlatformFeeRate   decimal.Decimal `json:"platform_fee_rate"`
	PlatformFeeAmount decimal.Decimal `json:"platform_fee_amount"`
	TotalCostNet      decimal.Decimal `json:"total_cost_net"`
	RemainingBalance  decimal.Decimal `json:"remaining_balance"`
	BestPrice         decimal.Decimal `json:"best_price"`
	WorstPrice        decimal.Decimal `json:"worst_price"`
}

func (p *apiOrderPreview) toDomain() domain.OrderPreview {
	return domain.OrderPreview{
		CanExecute:        p.CanExecute,
		ExecutionMessage:  p.ExecutionMessage,
		PlatformFeeRate:   p.PlatformFeeRate,
		PlatformFeeAmount: p.PlatformFeeAmount,
		TotalCostNet:      p.TotalCostNet,
		RemainingBalance:  p.RemainingBalance,
		BestPrice:         p.BestPrice,
		WorstPrice:        p.WorstPrice,
	}
}

type apiExecutionResult struct {
	Success          bool            `json:"success"`
	OrderID          string          `json:"order_id"`
	FilledQuantity   decimal.Decimal `json:"filled_quantity"`
	WeightedAvgPrice decimal.Decimal `json:"weighted_avg_price"`
	TotalCostGross   decimal.Decimal `json:"total_cost_gross"`
	TotalCostNet     decimal.Decimal `json:"total_cost_net"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	UpdatedBalances  apiBalances     `json:"updated_balances"`
	Message          string          `json:"message"`
}

func (r *apiExecutionResult) toDomain() domain.ExecutionResult {
	return domain.ExecutionResult{
		Success:          r.Success,
		OrderID:          r.OrderID,
		FilledQuantity:   r.FilledQuantity,
		WeightedAvgPrice: r.WeightedAvgPrice,
		TotalCostGross:   r.TotalCostGross,
		TotalCostNet:     r.TotalCostNet,
		PlatformFee:      r.PlatformFee,
		UpdatedBalances:  r.UpdatedBalances.toDomain(),
		Message:          r.Message,
	}
}

// apiReferencePrices is both the REST /api/prices response and the payload of
// every /ws/prices frame; the socket sends whole snapshots, never deltas.
type apiReferencePrices struct {
	Prices     map[string]decimal.Decimal `json:"prices"`
	CapturedAt flexTime                   `json:"captured_at"`
}

func (p *apiReferencePrices) toDomain() domain.ReferencePrices {
	out := domain.ReferencePrices{
		Prices:     make(map[domain.CertificateType]decimal.Decimal, len(p.Prices)),
		CapturedAt: p.CapturedAt.Time(),
	}
	for k, v := range p.Prices {
		out.Prices[domain.CertificateType(k)] = v
	}
	return out
}
