// Package executor coordinates market-order submission against the registry.
// Submission is single-flight: a second call while one is pending is
// rejected outright, never queued. Nothing is mutated optimistically: the
// user's balances and orders only change once the post-trade refresh lands.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// successTTL is how long the transient success flag stays visible.
const successTTL = 3 * time.Second

// OrderSubmitter places a market order with the registry. Implemented by the
// registry client.
type OrderSubmitter interface {
	ExecuteMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.ExecutionResult, error)
}

// Refresher re-syncs market data after a fill so balances and orders reflect
// the execution. Implemented by feed.MarketDataSync.
type Refresher interface {
	Refresh(ctx context.Context)
}

// PreviewClearer drops the cached order preview once it is stale.
// Implemented by preview.Reconciler.
type PreviewClearer interface {
	Clear()
}

// Coordinator owns the submission lifecycle for market orders.
type Coordinator struct {
	submitter OrderSubmitter
	refresher Refresher
	previews  PreviewClearer
	store     domain.ExecutionStore // optional audit log
	notifier  Notifier              // optional
	logger    *slog.Logger

	inFlight atomic.Bool

	mu           sync.Mutex
	successUntil time.Time
	now          func() time.Time // injected in tests
}

// Notifier receives a human-readable event after a successful execution.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// NewCoordinator creates a Coordinator. store and notifier may be nil.
func NewCoordinator(
	submitter OrderSubmitter,
	refresher Refresher,
	previews PreviewClearer,
	store domain.ExecutionStore,
	notifier Notifier,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		submitter: submitter,
		refresher: refresher,
		previews:  previews,
		store:     store,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "execution_coordinator")),
		now:       time.Now,
	}
}

// Submit places one market order. While a submission is pending any further
// call returns domain.ErrSubmissionInFlight. On success the cached preview
// is cleared, a transient success flag is raised, and a market-data refresh
// runs unconditionally. On failure the error propagates to the caller for
// inline display; the request is left intact for a user-driven retry.
func (c *Coordinator) Submit(ctx context.Context, req domain.OrderRequest) (domain.ExecutionResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return domain.ExecutionResult{}, domain.ErrSubmissionInFlight
	}
	defer c.inFlight.Store(false)

	if req.ClientID == "" {
		req.ClientID = uuid.New().String()
	}

	log := c.logger.With(
		slog.String("client_id", req.ClientID),
		slog.String("certificate_type", string(req.CertificateType)),
		slog.String("side", string(req.Side)),
		slog.String("amount_eur", req.AmountEUR.String()),
	)

	result, err := c.submitter.ExecuteMarketOrder(ctx, req)
	if err != nil {
		log.ErrorContext(ctx, "market order failed",
			slog.String("error", err.Error()),
		)
		return domain.ExecutionResult{}, fmt.Errorf("executor: submit market order: %w", err)
	}

	log.InfoContext(ctx, "market order executed",
		slog.String("order_id", result.OrderID),
		slog.String("filled_quantity", result.FilledQuantity.String()),
		slog.String("weighted_avg_price", result.WeightedAvgPrice.String()),
	)

	if c.previews != nil {
		c.previews.Clear()
	}
	c.markSuccess()
	c.record(ctx, req, result)
	c.announce(ctx, req, result)

	// Always refresh so balances and orders reflect the fill, even if the
	// audit or notification paths degraded.
	c.refresher.Refresh(ctx)

	return result, nil
}

// InFlight reports whether a submission is currently pending. Used by the
// preview gate to disable the trigger.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// SuccessVisible reports whether the transient success flag is still up; it
// clears itself after three seconds.
func (c *Coordinator) SuccessVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.successUntil)
}

func (c *Coordinator) markSuccess() {
	c.mu.Lock()
	c.successUntil = c.now().Add(successTTL)
	c.mu.Unlock()
}

// record writes the audit row; failures are logged, never surfaced, since
// the trade itself already happened.
func (c *Coordinator) record(ctx context.Context, req domain.OrderRequest, result domain.ExecutionResult) {
	if c.store == nil {
		return
	}
	rec := domain.ExecutionRecord{
		ID:               uuid.New().String(),
		ClientID:         req.ClientID,
		OrderID:          result.OrderID,
		CertificateType:  req.CertificateType,
		Side:             req.Side,
		AmountEUR:        req.AmountEUR,
		FilledQuantity:   result.FilledQuantity,
		WeightedAvgPrice: result.WeightedAvgPrice,
		TotalCostGross:   result.TotalCostGross,
		TotalCostNet:     result.TotalCostNet,
		PlatformFee:      result.PlatformFee,
		Success:          result.Success,
		Message:          result.Message,
		SubmittedAt:      c.now().UTC(),
	}
	if err := c.store.Create(ctx, rec); err != nil {
		c.logger.WarnContext(ctx, "execution audit write failed",
			slog.String("order_id", result.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) announce(ctx context.Context, req domain.OrderRequest, result domain.ExecutionResult) {
	if c.notifier == nil {
		return
	}
	title := "Market order filled"
	msg := fmt.Sprintf("%s %s for %s EUR: %s units at avg %s",
		req.Side, req.CertificateType, req.AmountEUR,
		result.FilledQuantity, result.WeightedAvgPrice,
	)
	if err := c.notifier.Notify(ctx, "order_filled", title, msg); err != nil {
		c.logger.WarnContext(ctx, "execution notification failed",
			slog.String("error", err.Error()),
		)
	}
}
