// Package depth contains the pure order-book calculations behind the trading
// interface: cumulative depth annotation and market-fill estimation. Both are
// synchronous, reentrant, and cheap enough to run on every input change; no
// network or shared state is involved.
package depth

import (
	"github.com/shopspring/decimal"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// Aggregate annotates price levels with running cumulative quantity and
// value in a single forward pass. The input order is preserved, so bids must
// already be sorted descending and asks ascending. An empty input yields an
// empty (non-nil) slice.
func Aggregate(levels []domain.PriceLevel) []domain.AnnotatedLevel {
	out := make([]domain.AnnotatedLevel, 0, len(levels))

	cumQty := decimal.Zero
	cumVal := decimal.Zero
	for _, lvl := range levels {
		cumQty = cumQty.Add(lvl.Quantity)
		cumVal = cumVal.Add(lvl.Cost())
		out = append(out, domain.AnnotatedLevel{
			PriceLevel:         lvl,
			CumulativeQuantity: cumQty,
			CumulativeValue:    cumVal,
		})
	}
	return out
}

// TotalDepth returns the side's total quantity, i.e. the last cumulative
// quantity, or zero for an empty side.
func TotalDepth(levels []domain.AnnotatedLevel) decimal.Decimal {
	if len(levels) == 0 {
		return decimal.Zero
	}
	return levels[len(levels)-1].CumulativeQuantity
}
