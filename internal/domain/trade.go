package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a public trade print for a certificate class.
//
// The registry reports only one party per trade, so the aggressor side is
// not known at the boundary. InferSide reconstructs it from the trade price
// relative to the prevailing bid/ask midpoint. This is a known approximation
// kept for compatibility with the registry's reporting; do not treat the
// inferred side as authoritative.
type Trade struct {
	ID              string          `json:"id"`
	CertificateType CertificateType `json:"certificate_type"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	Side            OrderSide       `json:"side"` // inferred, see InferSide
	ExecutedAt      time.Time       `json:"executed_at"`
}

// InferSide labels the trade as a buy when its price is at or above the
// bid/ask midpoint and a sell otherwise. When the midpoint is unavailable
// (one-sided or empty book) it defaults to buy.
func (t Trade) InferSide(mid decimal.NullDecimal) OrderSide {
	if mid.Valid && t.Price.LessThan(mid.Decimal) {
		return OrderSideSell
	}
	return OrderSideBuy
}
