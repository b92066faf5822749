package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType indicates how an order interacts with the book.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus tracks the order lifecycle as reported by the registry.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order is one of the user's own orders as reported by the registry.
type Order struct {
	ID              string          `json:"id"`
	CertificateType CertificateType `json:"certificate_type"`
	Side            OrderSide       `json:"side"`
	Type            OrderType       `json:"type"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	FilledQuantity  decimal.Decimal `json:"filled_quantity"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OrderRequest is a market-order submission: spend AmountEUR against the
// opposite side's depth. ClientID is assigned by the gateway for idempotent
// resubmission after transport failures.
type OrderRequest struct {
	ClientID        string          `json:"client_id"`
	CertificateType CertificateType `json:"certificate_type"`
	Side            OrderSide       `json:"side"`
	AmountEUR       decimal.Decimal `json:"amount_eur"`
	OrderType       OrderType       `json:"order_type"`
}

// OrderPreview is the backend-authoritative computation of execution
// economics. CanExecute is the sole gate for enabling submission; the local
// FillEstimate is display-only.
type OrderPreview struct {
	CanExecute        bool            `json:"can_execute"`
	ExecutionMessage  string          `json:"execution_message"`
	PlatformFeeRate   decimal.Decimal `json:"platform_fee_rate"`
	PlatformFeeAmount decimal.Decimal `json:"platform_fee_amount"`
	TotalCostNet      decimal.Decimal `json:"total_cost_net"`
	RemainingBalance  decimal.Decimal `json:"remaining_balance"`
	BestPrice         decimal.Decimal `json:"best_price"`
	WorstPrice        decimal.Decimal `json:"worst_price"`
}

// ExecutionResult is the registry's report of a completed (or rejected)
// market order.
type ExecutionResult struct {
	Success          bool            `json:"success"`
	OrderID          string          `json:"order_id"`
	FilledQuantity   decimal.Decimal `json:"filled_quantity"`
	WeightedAvgPrice decimal.Decimal `json:"weighted_avg_price"`
	TotalCostGross   decimal.Decimal `json:"total_cost_gross"`
	TotalCostNet     decimal.Decimal `json:"total_cost_net"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	UpdatedBalances  Balances        `json:"updated_balances"`
	Message          string          `json:"message"`
}
