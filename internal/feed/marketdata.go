// Package feed keeps the gateway's view of the market consistent with the
// authoritative registry backend. MarketDataSync polls order book, trades,
// own orders, and balances on a fixed cadence; PriceFeedSync maintains the
// reference-price feed over a WebSocket with a polling fallback. Both are
// torn down cooperatively: in-flight requests are never cancelled mid-air,
// their results are simply discarded once the owning scope is gone.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// Resource names the four independently synchronized market-data resources.
type Resource string

const (
	ResourceOrderBook Resource = "order_book"
	ResourceTrades    Resource = "trades"
	ResourceOrders    Resource = "orders"
	ResourceBalances  Resource = "balances"
)

// Channel names used on the signal bus.
const (
	ChannelBook       = "book"
	ChannelPrices     = "prices"
	ChannelExecutions = "executions"
)

// stopErr tags an ordered teardown so callers can tell it apart from an
// operational failure while the context cause stays inspectable.
func stopErr(ctx context.Context) error {
	return fmt.Errorf("%w: %w", domain.ErrSyncStopped, ctx.Err())
}

// MarketDataBackend is the registry surface MarketDataSync consumes.
type MarketDataBackend interface {
	OrderBook(ctx context.Context, ct domain.CertificateType) (domain.OrderBookSnapshot, error)
	RecentTrades(ctx context.Context, ct domain.CertificateType, limit int) ([]domain.Trade, error)
	OpenOrders(ctx context.Context, status string) ([]domain.Order, error)
	Balances(ctx context.Context) (domain.Balances, error)
}

// MarketDataConfig tunes a MarketDataSync instance.
type MarketDataConfig struct {
	CertificateType domain.CertificateType
	Interval        time.Duration // poll cadence, 5s in production
	TradeLimit      int
}

// MarketDataSync replaces each resource's state wholesale as its own fetch
// resolves; there is no cross-resource ordering. Failures keep the last-good
// state and raise a transient per-resource error flag. An order-book
// replacement is suppressed when the serialized snapshot is byte-identical
// to the previous one, so fast polling does not trigger redundant fan-out.
type MarketDataSync struct {
	backend MarketDataBackend
	cfg     MarketDataConfig
	cache   domain.OrderBookCache // optional
	bus     domain.SignalBus      // optional
	store   domain.TradeStore     // optional
	logger  *slog.Logger

	mu       sync.RWMutex
	book     domain.OrderBookSnapshot
	bookRaw  []byte // canonical encoding of the last applied snapshot
	haveBook bool
	trades   []domain.Trade
	orders   []domain.Order
	balances domain.Balances
	errs     map[Resource]string
}

// NewMarketDataSync creates a sync loop over the given backend. cache, bus,
// and store may be nil; mirroring and fan-out are skipped when they are.
func NewMarketDataSync(
	backend MarketDataBackend,
	cfg MarketDataConfig,
	cache domain.OrderBookCache,
	bus domain.SignalBus,
	store domain.TradeStore,
	logger *slog.Logger,
) *MarketDataSync {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = 50
	}
	return &MarketDataSync{
		backend: backend,
		cfg:     cfg,
		cache:   cache,
		bus:     bus,
		store:   store,
		logger:  logger.With(slog.String("component", "market_data_sync")),
		errs:    make(map[Resource]string),
	}
}

// Run performs an immediate tick and then repeats on the configured interval
// until ctx is cancelled. ctx doubles as the liveness scope: results that
// resolve after cancellation are dropped without mutating state.
func (s *MarketDataSync) Run(ctx context.Context) error {
	s.logger.Info("market data sync started",
		slog.String("certificate_type", string(s.cfg.CertificateType)),
		slog.Duration("interval", s.cfg.Interval),
	)
	defer s.logger.Info("market data sync stopped")

	s.loadCached(ctx)
	s.Refresh(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return stopErr(ctx)
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// loadCached seeds the book from the snapshot cache so a restarted gateway
// serves depth before its first registry round-trip completes. A cache miss
// is not an error; the first sync fills the gap.
func (s *MarketDataSync) loadCached(ctx context.Context) {
	if s.cache == nil {
		return
	}
	snap, err := s.cache.GetSnapshot(ctx, s.cfg.CertificateType)
	if err != nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}

	s.mu.Lock()
	if !s.haveBook {
		s.book = snap
		s.bookRaw = raw
		s.haveBook = true
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "serving cached order book until first sync",
		slog.Time("captured_at", snap.CapturedAt),
	)
}

// Refresh runs one sync tick: the four resources are fetched concurrently
// and each applies its own result as it resolves. Used by Run and invoked
// directly by the execution coordinator after a fill.
func (s *MarketDataSync) Refresh(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { s.syncOrderBook(gctx); return nil })
	g.Go(func() error { s.syncTrades(gctx); return nil })
	g.Go(func() error { s.syncOrders(gctx); return nil })
	g.Go(func() error { s.syncBalances(gctx); return nil })

	_ = g.Wait()
}

func (s *MarketDataSync) syncOrderBook(ctx context.Context) {
	snap, err := s.backend.OrderBook(ctx, s.cfg.CertificateType)
	if !s.alive(ctx) {
		return
	}
	if err != nil {
		s.fail(ctx, ResourceOrderBook, err)
		return
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		s.fail(ctx, ResourceOrderBook, err)
		return
	}

	s.mu.Lock()
	identical := s.haveBook && string(raw) == string(s.bookRaw)
	if !identical {
		s.book = snap
		s.bookRaw = raw
		s.haveBook = true
	}
	delete(s.errs, ResourceOrderBook)
	s.mu.Unlock()

	if identical {
		return
	}

	if s.cache != nil {
		if err := s.cache.SetSnapshot(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "order book cache write failed",
				slog.String("error", err.Error()))
		}
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, ChannelBook, raw); err != nil {
			s.logger.WarnContext(ctx, "order book publish failed",
				slog.String("error", err.Error()))
		}
	}
}

func (s *MarketDataSync) syncTrades(ctx context.Context) {
	trades, err := s.backend.RecentTrades(ctx, s.cfg.CertificateType, s.cfg.TradeLimit)
	if !s.alive(ctx) {
		return
	}
	if err != nil {
		s.fail(ctx, ResourceTrades, err)
		return
	}

	s.mu.Lock()
	s.trades = trades
	delete(s.errs, ResourceTrades)
	s.mu.Unlock()

	if s.store != nil && len(trades) > 0 {
		if err := s.store.InsertBatch(ctx, trades); err != nil {
			s.logger.WarnContext(ctx, "trade history write failed",
				slog.String("error", err.Error()))
		}
	}
}

func (s *MarketDataSync) syncOrders(ctx context.Context) {
	orders, err := s.backend.OpenOrders(ctx, "")
	if !s.alive(ctx) {
		return
	}
	if err != nil {
		s.fail(ctx, ResourceOrders, err)
		return
	}

	s.mu.Lock()
	s.orders = orders
	delete(s.errs, ResourceOrders)
	s.mu.Unlock()
}

func (s *MarketDataSync) syncBalances(ctx context.Context) {
	balances, err := s.backend.Balances(ctx)
	if !s.alive(ctx) {
		return
	}
	if err != nil {
		s.fail(ctx, ResourceBalances, err)
		return
	}

	s.mu.Lock()
	s.balances = balances
	delete(s.errs, ResourceBalances)
	s.mu.Unlock()
}

// alive reports whether the sync scope is still active. Late results after
// teardown are dropped silently: no error flag, no mutation.
func (s *MarketDataSync) alive(ctx context.Context) bool {
	return ctx.Err() == nil
}

// fail records a transient error for one resource, keeping last-good state.
func (s *MarketDataSync) fail(ctx context.Context, res Resource, err error) {
	s.mu.Lock()
	s.errs[res] = err.Error()
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "resource sync failed",
		slog.String("resource", string(res)),
		slog.String("error", err.Error()),
	)
}

// OrderBook returns the last applied snapshot; ok is false before the first
// successful sync.
func (s *MarketDataSync) OrderBook() (snap domain.OrderBookSnapshot, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book, s.haveBook
}

// Trades returns the last applied trade prints.
func (s *MarketDataSync) Trades() []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Orders returns the user's last applied open orders.
func (s *MarketDataSync) Orders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Balances returns the last applied balances.
func (s *MarketDataSync) Balances() domain.Balances {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances
}

// ResourceError returns the transient error flag for a resource, if raised.
func (s *MarketDataSync) ResourceError(res Resource) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.errs[res]
	return msg, ok
}
