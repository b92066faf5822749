package depth

import (
	"github.com/shopspring/decimal"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

// EstimateMarketBuy simulates a market buy of budget EUR against the given
// ask levels, best price first. Whole levels are consumed while the
// remaining budget covers their full cost; at the first level it cannot
// cover, floor(remaining/price) whole units are taken and the walk stops.
// Levels contribute to LevelsTouched only when at least one unit fills.
//
// It returns nil when the budget is non-positive, the ask side is empty, or
// the budget cannot afford a single unit at the best price. The result's
// TotalCost never exceeds budget.
//
// Asks must be sorted ascending by price, as delivered in an
// OrderBookSnapshot.
func EstimateMarketBuy(asks []domain.PriceLevel, budget decimal.Decimal) *domain.FillEstimate {
	if budget.Sign() <= 0 || len(asks) == 0 {
		return nil
	}

	remaining := budget
	filled := decimal.Zero
	cost := decimal.Zero
	touched := 0

	for _, lvl := range asks {
		levelCost := lvl.Cost()
		if remaining.GreaterThanOrEqual(levelCost) {
			filled = filled.Add(lvl.Quantity)
			cost = cost.Add(levelCost)
			remaining = remaining.Sub(levelCost)
			touched++
			continue
		}

		// Partial level: whole units only, then stop.
		units := remaining.Div(lvl.Price).Floor()
		if units.Sign() > 0 {
			partialCost := units.Mul(lvl.Price)
			filled = filled.Add(units)
			cost = cost.Add(partialCost)
			touched++
		}
		break
	}

	if filled.Sign() == 0 {
		return nil
	}

	return &domain.FillEstimate{
		FilledQuantity: filled,
		TotalCost:      cost,
		AveragePrice:   cost.Div(filled),
		LevelsTouched:  touched,
	}
}
