package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// bookTTL bounds staleness when the sync loop dies: a reader never sees a
// book older than two missed ticks plus slack.
const bookTTL = 30 * time.Second

// OrderBookCache implements domain.OrderBookCache by storing the whole
// serialized snapshot under one key per certificate type. The book is small
// (tens of levels) and always replaced wholesale by MarketDataSync, so a
// single JSON value is simpler and atomic by construction.
//
// Key schema:
//
//	carbondesk:book:{certificate_type}
type OrderBookCache struct {
	rdb *redis.Client
}

// NewOrderBookCache creates an OrderBookCache backed by the given Client.
func NewOrderBookCache(c *Client) *OrderBookCache {
	return &OrderBookCache{rdb: c.Underlying()}
}

func bookKey(ct domain.CertificateType) string {
	return "carbondesk:book:" + string(ct)
}

// SetSnapshot replaces the cached snapshot for the snapshot's certificate
// type.
func (oc *OrderBookCache) SetSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal order book %s: %w", snap.CertificateType, err)
	}
	if err := oc.rdb.Set(ctx, bookKey(snap.CertificateType), raw, bookTTL).Err(); err != nil {
		return fmt.Errorf("redis: set order book %s: %w", snap.CertificateType, err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot for a certificate type. It returns
// domain.ErrNotFound when no snapshot is cached or it has expired.
func (oc *OrderBookCache) GetSnapshot(ctx context.Context, ct domain.CertificateType) (domain.OrderBookSnapshot, error) {
	raw, err := oc.rdb.Get(ctx, bookKey(ct)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderBookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get order book %s: %w", ct, err)
	}

	var snap domain.OrderBookSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: decode order book %s: %w", ct, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.OrderBookCache = (*OrderBookCache)(nil)
