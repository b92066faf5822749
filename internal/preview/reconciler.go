// Package preview reconciles the instantaneous local fill estimate with the
// backend-authoritative order preview. The local estimate renders
// immediately; the backend preview, once resolved, is the sole gate for
// enabling submission. Every failure path is fail-closed: a preview that
// could not be fetched disables execution, never the reverse.
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// Fetcher obtains a backend-authoritative preview for an order request.
// Implemented by the registry client.
type Fetcher interface {
	PreviewOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderPreview, error)
}

// State is the merged view handed to the confirmation surface.
type State struct {
	Local        *domain.FillEstimate `json:"local"`
	Backend      *domain.OrderPreview `json:"backend"`
	ErrorMessage string               `json:"error_message,omitempty"`
	CanSubmit    bool                 `json:"can_submit"`
}

// Reconciler tracks the latest backend preview for the order the user is
// composing. Refresh is called on every change to the budget, the available
// balance, or the certificate selection; overlapping refreshes are resolved
// by a generation counter so only the newest response may write state.
type Reconciler struct {
	fetcher Fetcher
	logger  *slog.Logger

	gen atomic.Uint64

	mu      sync.Mutex
	backend *domain.OrderPreview
	errText string
}

// NewReconciler creates a Reconciler that fetches previews through fetcher.
func NewReconciler(fetcher Fetcher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "preview_reconciler")),
	}
}

// Refresh fetches a new backend preview for req. When req.AmountEUR <= 0 the
// fetch is skipped and any stale preview or error is cleared. A response
// superseded by a newer Refresh is discarded without touching state.
func (r *Reconciler) Refresh(ctx context.Context, req domain.OrderRequest) error {
	gen := r.gen.Add(1)

	if req.AmountEUR.Sign() <= 0 {
		r.mu.Lock()
		r.backend = nil
		r.errText = ""
		r.mu.Unlock()
		return nil
	}

	p, err := r.fetcher.PreviewOrder(ctx, req)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen.Load() != gen {
		// A newer refresh has been issued; this response is stale.
		return nil
	}

	if err != nil {
		r.backend = nil
		r.errText = "preview unavailable"
		r.logger.WarnContext(ctx, "preview fetch failed",
			slog.String("certificate_type", string(req.CertificateType)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("preview: fetch: %w", err)
	}

	r.backend = &p
	r.errText = ""
	return nil
}

// Clear discards the cached preview and error. Called after a successful
// execution, once balances are being refreshed.
func (r *Reconciler) Clear() {
	r.gen.Add(1)
	r.mu.Lock()
	r.backend = nil
	r.errText = ""
	r.mu.Unlock()
}

// State merges the synchronous local estimate with the latest backend
// preview. Submission is permitted only when the backend says CanExecute,
// the available balance is positive, no preview error is outstanding, and no
// submission is in flight.
func (r *Reconciler) State(local *domain.FillEstimate, availableBalance decimal.Decimal, submissionInFlight bool) State {
	r.mu.Lock()
	backend := r.backend
	errText := r.errText
	r.mu.Unlock()

	canSubmit := backend != nil &&
		backend.CanExecute &&
		errText == "" &&
		availableBalance.Sign() > 0 &&
		!submissionInFlight

	return State{
		Local:        local,
		Backend:      backend,
		ErrorMessage: errText,
		CanSubmit:    canSubmit,
	}
}
