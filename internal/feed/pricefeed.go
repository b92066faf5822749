package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// PriceFeedState is the lifecycle position of a PriceFeedSync. The socket
// attempt is modelled as explicit states rather than booleans so the
// at-most-one-attempt rule is enforced by the transition table: nothing
// leads back to StatePolling, and StateAttemptingSocket is only reachable
// from it.
type PriceFeedState int

const (
	StateIdle PriceFeedState = iota
	StateFetchingInitial
	StatePolling
	StateAttemptingSocket
	StateSocketActive
	// StateSocketFailedPollingOnly is terminal with respect to the socket:
	// entered when the initial fetch fails, the dial fails, or an active
	// socket errors or closes. The polling loop keeps running.
	StateSocketFailedPollingOnly
)

// String returns the state name for logging.
func (s PriceFeedState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingInitial:
		return "fetching_initial"
	case StatePolling:
		return "polling"
	case StateAttemptingSocket:
		return "attempting_socket"
	case StateSocketActive:
		return "socket_active"
	case StateSocketFailedPollingOnly:
		return "socket_failed_polling_only"
	}
	return "unknown"
}

// validTransitions is the single source of truth for feed state changes.
var validTransitions = map[PriceFeedState][]PriceFeedState{
	StateIdle:            {StateFetchingInitial},
	StateFetchingInitial: {StatePolling, StateSocketFailedPollingOnly},
	StatePolling:         {StateAttemptingSocket, StateSocketFailedPollingOnly},
	StateAttemptingSocket: {
		StateSocketActive,
		StateSocketFailedPollingOnly,
	},
	StateSocketActive:            {StateSocketFailedPollingOnly},
	StateSocketFailedPollingOnly: {},
}

// PricePoller is the polling side of the reference-price feed.
type PricePoller interface {
	CurrentPrices(ctx context.Context) (domain.ReferencePrices, error)
}

// PriceStream is one established WebSocket price subscription. Messages
// carries whole-snapshot price updates; Errors carries at most one terminal
// error. Close detaches the stream; it is safe to call more than once.
type PriceStream interface {
	Messages() <-chan domain.ReferencePrices
	Errors() <-chan error
	Close() error
}

// StreamDialer opens a PriceStream. Implemented by the registry WS client.
type StreamDialer interface {
	Dial(ctx context.Context) (PriceStream, error)
}

// PriceFeedConfig tunes a PriceFeedSync instance.
type PriceFeedConfig struct {
	PollInterval      time.Duration // 30s in production
	SocketSettleDelay time.Duration // delay before the single socket attempt
}

// PriceFeedSync keeps reference prices current using a hybrid strategy: an
// unconditional polling loop, plus at most one WebSocket attempt per
// lifetime made after a settle delay once the initial fetch succeeds. A
// socket error or close drops the feed back to polling permanently; the
// polling loop is the durable fallback and runs regardless of socket state.
type PriceFeedSync struct {
	poller PricePoller
	dialer StreamDialer // nil disables the socket attempt entirely
	cache  domain.PriceCache
	bus    domain.SignalBus
	cfg    PriceFeedConfig
	logger *slog.Logger

	mu         sync.RWMutex
	state      PriceFeedState
	prices     domain.ReferencePrices
	havePrices bool
	dials      int
}

// NewPriceFeedSync creates a price feed over the given poller and dialer.
// cache and bus may be nil.
func NewPriceFeedSync(
	poller PricePoller,
	dialer StreamDialer,
	cache domain.PriceCache,
	bus domain.SignalBus,
	cfg PriceFeedConfig,
	logger *slog.Logger,
) *PriceFeedSync {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.SocketSettleDelay <= 0 {
		cfg.SocketSettleDelay = 2 * time.Second
	}
	return &PriceFeedSync{
		poller: poller,
		dialer: dialer,
		cache:  cache,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "price_feed_sync")),
		state:  StateIdle,
	}
}

// Run drives the feed until ctx is cancelled. Teardown is deterministic:
// the stream's channels are detached before it is closed, and the poll
// ticker is stopped, so no late event mutates state after return.
func (p *PriceFeedSync) Run(ctx context.Context) error {
	p.transition(StateFetchingInitial)
	p.loadCached(ctx)

	prices, err := p.poller.CurrentPrices(ctx)
	if ctx.Err() != nil {
		return stopErr(ctx)
	}

	var settleCh <-chan time.Time
	if err != nil {
		// Initial fetch failed: never attempt the socket, poll forever.
		p.logger.Warn("initial price fetch failed, polling only",
			slog.String("error", err.Error()))
		p.transition(StateSocketFailedPollingOnly)
	} else {
		p.apply(ctx, prices)
		p.transition(StatePolling)
		if p.dialer != nil {
			// Exactly one socket attempt per lifetime, after the backend
			// has had time to settle.
			settleCh = time.After(p.cfg.SocketSettleDelay)
		}
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var (
		stream      PriceStream
		msgCh       <-chan domain.ReferencePrices
		streamErrCh <-chan error
	)
	detach := func() {
		if stream == nil {
			return
		}
		// Detach before closing so a late event cannot race teardown.
		msgCh = nil
		streamErrCh = nil
		_ = stream.Close()
		stream = nil
	}
	defer detach()

	for {
		select {
		case <-ctx.Done():
			return stopErr(ctx)

		case <-ticker.C:
			// The polling loop is authoritative and unconditional.
			prices, err := p.poller.CurrentPrices(ctx)
			if ctx.Err() != nil {
				return stopErr(ctx)
			}
			if err != nil {
				p.logger.Warn("price poll failed, keeping last-good prices",
					slog.String("error", err.Error()))
				continue
			}
			p.apply(ctx, prices)

		case <-settleCh:
			settleCh = nil
			p.transition(StateAttemptingSocket)
			p.mu.Lock()
			p.dials++
			p.mu.Unlock()

			st, err := p.dialer.Dial(ctx)
			if ctx.Err() != nil {
				return stopErr(ctx)
			}
			if err != nil {
				p.logger.Warn("price socket dial failed, polling only",
					slog.String("error", err.Error()))
				p.transition(StateSocketFailedPollingOnly)
				continue
			}
			stream = st
			msgCh = st.Messages()
			streamErrCh = st.Errors()
			p.transition(StateSocketActive)

		case prices, ok := <-msgCh:
			if !ok {
				// Socket closed; no reconnection, polling carries on.
				detach()
				p.transition(StateSocketFailedPollingOnly)
				continue
			}
			p.apply(ctx, prices)

		case err := <-streamErrCh:
			if err != nil {
				p.logger.Warn("price socket error, polling only",
					slog.String("error", err.Error()))
			}
			detach()
			p.transition(StateSocketFailedPollingOnly)
		}
	}
}

// transition moves the feed to the next state if the transition table
// permits it. Illegal transitions are refused and logged; they indicate a
// programming error, not an operational condition.
func (p *PriceFeedSync) transition(to PriceFeedState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, allowed := range validTransitions[p.state] {
		if allowed == to {
			p.logger.Debug("price feed state change",
				slog.String("from", p.state.String()),
				slog.String("to", to.String()),
			)
			p.state = to
			return
		}
	}
	p.logger.Error("illegal price feed transition refused",
		slog.String("from", p.state.String()),
		slog.String("to", to.String()),
	)
}

// loadCached seeds prices from the cache so the UI has a reference price
// before the initial fetch resolves. Cached prices are not re-published; they
// were already fanned out when written.
func (p *PriceFeedSync) loadCached(ctx context.Context) {
	if p.cache == nil {
		return
	}
	prices, err := p.cache.GetPrices(ctx)
	if err != nil {
		return
	}

	p.mu.Lock()
	if !p.havePrices {
		p.prices = prices
		p.havePrices = true
	}
	p.mu.Unlock()
}

// apply stores a fresh price snapshot and fans it out to the cache and bus.
// Liveness is checked by callers via ctx before apply is reached.
func (p *PriceFeedSync) apply(ctx context.Context, prices domain.ReferencePrices) {
	p.mu.Lock()
	p.prices = prices
	p.havePrices = true
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.SetPrices(ctx, prices); err != nil {
			p.logger.WarnContext(ctx, "price cache write failed",
				slog.String("error", err.Error()))
		}
	}
	if p.bus != nil {
		if raw, err := json.Marshal(prices); err == nil {
			if err := p.bus.Publish(ctx, ChannelPrices, raw); err != nil {
				p.logger.WarnContext(ctx, "price publish failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// State returns the current feed state.
func (p *PriceFeedSync) State() PriceFeedState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Prices returns the last applied reference prices; ok is false before the
// first successful fetch.
func (p *PriceFeedSync) Prices() (prices domain.ReferencePrices, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prices, p.havePrices
}

// SocketAttempts reports how many socket dials have been made. It can never
// exceed one per lifetime.
func (p *PriceFeedSync) SocketAttempts() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dials
}
