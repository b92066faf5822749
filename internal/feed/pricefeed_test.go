package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

type fakePoller struct {
	mu     sync.Mutex
	prices domain.ReferencePrices
	err    error
	calls  int
}

func (f *fakePoller) CurrentPrices(ctx context.Context) (domain.ReferencePrices, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.prices, f.err
}

func (f *fakePoller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePoller) set(prices domain.ReferencePrices, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = prices
	f.err = err
}

type fakeStream struct {
	msgs      chan domain.ReferencePrices
	errs      chan error
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		msgs:   make(chan domain.ReferencePrices, 8),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeStream) Messages() <-chan domain.ReferencePrices { return f.msgs }
func (f *fakeStream) Errors() <-chan error                    { return f.errs }
func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type fakeDialer struct {
	mu     sync.Mutex
	stream *fakeStream
	err    error
	dials  int
}

func (f *fakeDialer) Dial(ctx context.Context) (PriceStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeDialer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func refPrices(a int64) domain.ReferencePrices {
	return domain.ReferencePrices{
		Prices: map[domain.CertificateType]decimal.Decimal{
			domain.CertificateA: decimal.NewFromInt(a),
		},
		CapturedAt: time.Unix(a, 0),
	}
}

func fastConfig() PriceFeedConfig {
	return PriceFeedConfig{
		PollInterval:      5 * time.Millisecond,
		SocketSettleDelay: 5 * time.Millisecond,
	}
}

func startFeed(t *testing.T, p *PriceFeedSync) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- p.Run(ctx)
		close(stopped)
	}()
	// The cleanup joins on stopped, not done, so a test body that already
	// consumed the Run error does not starve it.
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Error("price feed did not stop")
		}
	})
	return cancel, done
}

func TestPriceFeedSync_SocketActivates(t *testing.T) {
	poller := &fakePoller{prices: refPrices(30)}
	stream := newFakeStream()
	dialer := &fakeDialer{stream: stream}
	p := NewPriceFeedSync(poller, dialer, nil, nil, fastConfig(), slog.New(slog.DiscardHandler))

	startFeed(t, p)

	require.Eventually(t, func() bool { return p.State() == StateSocketActive },
		time.Second, time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())

	// Socket messages apply like poll results.
	stream.msgs <- refPrices(42)
	require.Eventually(t, func() bool {
		prices, ok := p.Prices()
		if !ok {
			return false
		}
		v, _ := prices.Price(domain.CertificateA)
		return v.Equal(decimal.NewFromInt(42))
	}, time.Second, time.Millisecond)
}

func TestPriceFeedSync_OneAttemptPerLifetime(t *testing.T) {
	poller := &fakePoller{prices: refPrices(30)}
	stream := newFakeStream()
	dialer := &fakeDialer{stream: stream}
	p := NewPriceFeedSync(poller, dialer, nil, nil, fastConfig(), slog.New(slog.DiscardHandler))

	startFeed(t, p)

	require.Eventually(t, func() bool { return p.State() == StateSocketActive },
		time.Second, time.Millisecond)

	// Socket dies. The feed must fall back to polling and never redial,
	// no matter how many poll ticks pass.
	stream.errs <- errors.New("connection reset")
	require.Eventually(t, func() bool { return p.State() == StateSocketFailedPollingOnly },
		time.Second, time.Millisecond)

	before := poller.count()
	require.Eventually(t, func() bool {
		return poller.count() > before+3
	}, time.Second, time.Millisecond, "polling must continue after socket failure")

	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, 1, p.SocketAttempts())
}

func TestPriceFeedSync_SocketCloseFallsBackWithoutRedial(t *testing.T) {
	poller := &fakePoller{prices: refPrices(30)}
	stream := newFakeStream()
	dialer := &fakeDialer{stream: stream}
	p := NewPriceFeedSync(poller, dialer, nil, nil, fastConfig(), slog.New(slog.DiscardHandler))

	startFeed(t, p)

	require.Eventually(t, func() bool { return p.State() == StateSocketActive },
		time.Second, time.Millisecond)

	close(stream.msgs)
	require.Eventually(t, func() bool { return p.State() == StateSocketFailedPollingOnly },
		time.Second, time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestPriceFeedSync_DialFailurePollingOnly(t *testing.T) {
	poller := &fakePoller{prices: refPrices(30)}
	dialer := &fakeDialer{err: errors.New("handshake failed")}
	p := NewPriceFeedSync(poller, dialer, nil, nil, fastConfig(), slog.New(slog.DiscardHandler))

	startFeed(t, p)

	require.Eventually(t, func() bool { return p.State() == StateSocketFailedPollingOnly },
		time.Second, time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())

	// Polling remains the durable source.
	poller.set(refPrices(55), nil)
	require.Eventually(t, func() bool {
		prices, ok := p.Prices()
		if !ok {
			return false
		}
		v, _ := prices.Price(domain.CertificateA)
		return v.Equal(decimal.NewFromInt(55))
	}, time.Second, time.Millisecond)
}

func TestPriceFeedSync_InitialFailureNeverDials(t *testing.T) {
	poller := &fakePoller{err: errors.New("registry down")}
	dialer := &fakeDialer{stream: newFakeStream()}
	p := NewPriceFeedSync(poller, dialer, nil, nil, fastConfig(), slog.New(slog.DiscardHandler))

	startFeed(t, p)

	require.Eventually(t, func() bool { return p.State() == StateSocketFailedPollingOnly },
		time.Second, time.Millisecond)

	// Later poll successes do not resurrect the socket.
	poller.set(refPrices(33), nil)
	require.Eventually(t, func() bool {
		_, ok := p.Prices()
		return ok
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, dialer.dialCount())
	assert.Equal(t, 0, p.SocketAttempts())
}

func TestPriceFeedSync_TeardownClosesStream(t *testing.T) {
	poller := &fakePoller{prices: refPrices(30)}
	stream := newFakeStream()
	dialer := &fakeDialer{stream: stream}
	p := NewPriceFeedSync(poller, dialer, nil, nil, fastConfig(), slog.New(slog.DiscardHandler))

	cancel, done := startFeed(t, p)

	require.Eventually(t, func() bool { return p.State() == StateSocketActive },
		time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrSyncStopped)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	select {
	case <-stream.closed:
	default:
		t.Fatal("stream was not closed on teardown")
	}
}

type seededPriceCache struct {
	prices domain.ReferencePrices
}

func (c *seededPriceCache) SetPrices(ctx context.Context, prices domain.ReferencePrices) error {
	return nil
}

func (c *seededPriceCache) GetPrices(ctx context.Context) (domain.ReferencePrices, error) {
	return c.prices, nil
}

func TestPriceFeedSync_ServesCachedPricesBeforeFirstFetch(t *testing.T) {
	poller := &fakePoller{err: errors.New("registry down")}
	cache := &seededPriceCache{prices: refPrices(77)}
	p := NewPriceFeedSync(poller, nil, cache, nil, fastConfig(), slog.New(slog.DiscardHandler))

	startFeed(t, p)

	require.Eventually(t, func() bool {
		prices, ok := p.Prices()
		if !ok {
			return false
		}
		v, _ := prices.Price(domain.CertificateA)
		return v.Equal(decimal.NewFromInt(77))
	}, time.Second, time.Millisecond)
}
