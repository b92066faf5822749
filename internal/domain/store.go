package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ExecutionRecord is one row of the append-only execution audit log. The
// gateway records every market order it submitted together with the
// registry's reported economics; nothing in the live data model depends on
// it, it exists for compliance and support.
type ExecutionRecord struct {
	ID               string          `json:"id"`
	ClientID         string          `json:"client_id"`
	OrderID          string          `json:"order_id"`
	CertificateType  CertificateType `json:"certificate_type"`
	Side             OrderSide       `json:"side"`
	AmountEUR        decimal.Decimal `json:"amount_eur"`
	FilledQuantity   decimal.Decimal `json:"filled_quantity"`
	WeightedAvgPrice decimal.Decimal `json:"weighted_avg_price"`
	TotalCostGross   decimal.Decimal `json:"total_cost_gross"`
	TotalCostNet     decimal.Decimal `json:"total_cost_net"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	Success          bool            `json:"success"`
	Message          string          `json:"message"`
	SubmittedAt      time.Time       `json:"submitted_at"`
}

// ExecutionStore persists the execution audit log.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
	ListRecent(ctx context.Context, opts ListOpts) ([]ExecutionRecord, error)
}

// TradeStore persists observed public trade prints for history views and
// archival. Inserts are idempotent on the registry trade ID.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByCertificate(ctx context.Context, ct CertificateType, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
}
