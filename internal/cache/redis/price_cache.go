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

// priceTTL is generous relative to the 30s poll cadence; reference prices
// move slowly and a slightly stale price beats no price.
const priceTTL = 5 * time.Minute

const pricesKey = "carbondesk:prices"

// PriceCache implements domain.PriceCache with a single JSON value holding
// the whole reference-price snapshot.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

// SetPrices replaces the cached reference prices.
func (pc *PriceCache) SetPrices(ctx context.Context, prices domain.ReferencePrices) error {
	raw, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("redis: marshal prices: %w", err)
	}
	if err := pc.rdb.Set(ctx, pricesKey, raw, priceTTL).Err(); err != nil {
		return fmt.Errorf("redis: set prices: %w", err)
	}
	return nil
}

// GetPrices returns the cached reference prices, or domain.ErrNotFound when
// none are cached.
func (pc *PriceCache) GetPrices(ctx context.Context) (domain.ReferencePrices, error) {
	raw, err := pc.rdb.Get(ctx, pricesKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ReferencePrices{}, domain.ErrNotFound
		}
		return domain.ReferencePrices{}, fmt.Errorf("redis: get prices: %w", err)
	}

	var prices domain.ReferencePrices
	if err := json.Unmarshal(raw, &prices); err != nil {
		return domain.ReferencePrices{}, fmt.Errorf("redis: decode prices: %w", err)
	}
	return prices, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
