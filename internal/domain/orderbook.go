package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CertificateType identifies a tradable carbon-certificate class.
type CertificateType string

const (
	CertificateA CertificateType = "certificate_a"
	CertificateB CertificateType = "certificate_b"
)

// Valid reports whether the certificate type is one of the known classes.
func (c CertificateType) Valid() bool {
	return c == CertificateA || c == CertificateB
}

// PriceLevel is a single aggregated entry on one side of the order book.
// Price is in EUR major units, Quantity in whole certificate units.
// Quantity is always > 0; the backend never reports empty levels.
type PriceLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderCount int             `json:"order_count"`
}

// Cost returns the notional value of consuming the whole level.
func (l PriceLevel) Cost() decimal.Decimal {
	return l.Price.Mul(l.Quantity)
}

// AnnotatedLevel is a PriceLevel extended with running depth totals.
// CumulativeQuantity and CumulativeValue are monotonically non-decreasing
// along a book side; the last level's CumulativeQuantity is the side's
// total depth and serves as the 100% reference for depth bars.
type AnnotatedLevel struct {
	PriceLevel
	CumulativeQuantity decimal.Decimal `json:"cumulative_quantity"`
	CumulativeValue    decimal.Decimal `json:"cumulative_value"`
}

// OrderBookSnapshot is a full, wholesale-replaced view of one certificate's
// order book. Bids are sorted descending, asks ascending by price. BestBid,
// BestAsk, Spread and LastPrice are unset (Valid == false) when the
// corresponding side or trade history is empty.
type OrderBookSnapshot struct {
	CertificateType CertificateType     `json:"certificate_type"`
	Bids            []PriceLevel        `json:"bids"`
	Asks            []PriceLevel        `json:"asks"`
	BestBid         decimal.NullDecimal `json:"best_bid"`
	BestAsk         decimal.NullDecimal `json:"best_ask"`
	Spread          decimal.NullDecimal `json:"spread"`
	LastPrice       decimal.NullDecimal `json:"last_price"`
	CapturedAt      time.Time           `json:"captured_at"`
}

// Midpoint returns the bid/ask midpoint, or an unset NullDecimal when either
// side of the book is empty.
func (s OrderBookSnapshot) Midpoint() decimal.NullDecimal {
	if !s.BestBid.Valid || !s.BestAsk.Valid {
		return decimal.NullDecimal{}
	}
	two := decimal.NewFromInt(2)
	return decimal.NewNullDecimal(s.BestBid.Decimal.Add(s.BestAsk.Decimal).Div(two))
}

// FillEstimate is the locally re-derived economics of a market buy walked
// against raw ask depth. It is ephemeral: recomputed on every budget or
// snapshot change and never persisted.
type FillEstimate struct {
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	LevelsTouched  int             `json:"levels_touched"`
}

// ReferencePrices is a whole-snapshot view of the current reference price
// per certificate class, as emitted by the price feed.
type ReferencePrices struct {
	Prices     map[CertificateType]decimal.Decimal `json:"prices"`
	CapturedAt time.Time                           `json:"captured_at"`
}

// Price returns the reference price for the given certificate type.
func (p ReferencePrices) Price(ct CertificateType) (decimal.Decimal, bool) {
	d, ok := p.Prices[ct]
	return d, ok
}
