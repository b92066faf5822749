package domain

import "context"

// OrderBookCache mirrors the latest order-book snapshot per certificate so
// other gateway instances and the browser hub read a consistent view.
// Snapshots are replaced wholesale; there is no per-level update path.
type OrderBookCache interface {
	SetSnapshot(ctx context.Context, snap OrderBookSnapshot) error
	GetSnapshot(ctx context.Context, ct CertificateType) (OrderBookSnapshot, error)
}

// PriceCache holds the latest reference prices from the price feed.
type PriceCache interface {
	SetPrices(ctx context.Context, prices ReferencePrices) error
	GetPrices(ctx context.Context) (ReferencePrices, error)
}

// SignalBus provides pub/sub fan-out from the sync layer to the browser hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
