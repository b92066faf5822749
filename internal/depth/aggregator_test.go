package depth

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OneAIgency/carbondesk/internal/domain"
)

func level(price, qty int64) domain.PriceLevel {
	return domain.PriceLevel{
		Price:      decimal.NewFromInt(price),
		Quantity:   decimal.NewFromInt(qty),
		OrderCount: 1,
	}
}

func TestAggregate_Empty(t *testing.T) {
	out := Aggregate(nil)

	require.NotNil(t, out)
	assert.Len(t, out, 0)
	assert.True(t, TotalDepth(out).IsZero())
}

func TestAggregate_CumulativeTotals(t *testing.T) {
	levels := []domain.PriceLevel{
		level(100, 10),
		level(101, 5),
		level(103, 20),
	}

	out := Aggregate(levels)
	require.Len(t, out, 3)

	assert.True(t, out[0].CumulativeQuantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, out[1].CumulativeQuantity.Equal(decimal.NewFromInt(15)))
	assert.True(t, out[2].CumulativeQuantity.Equal(decimal.NewFromInt(35)))

	// 100*10 + 101*5 + 103*20
	assert.True(t, out[0].CumulativeValue.Equal(decimal.NewFromInt(1000)))
	assert.True(t, out[1].CumulativeValue.Equal(decimal.NewFromInt(1505)))
	assert.True(t, out[2].CumulativeValue.Equal(decimal.NewFromInt(3565)))

	// Last cumulative quantity is the side's total depth.
	assert.True(t, TotalDepth(out).Equal(decimal.NewFromInt(35)))
}

func TestAggregate_NonDecreasing(t *testing.T) {
	levels := []domain.PriceLevel{
		level(100, 3), level(100, 1), level(102, 7), level(110, 2),
	}

	out := Aggregate(levels)
	sum := decimal.Zero
	for i, al := range out {
		sum = sum.Add(levels[i].Quantity)
		if i > 0 {
			assert.True(t, al.CumulativeQuantity.GreaterThanOrEqual(out[i-1].CumulativeQuantity))
			assert.True(t, al.CumulativeValue.GreaterThanOrEqual(out[i-1].CumulativeValue))
		}
	}
	assert.True(t, TotalDepth(out).Equal(sum))
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	levels := []domain.PriceLevel{level(100, 10)}
	_ = Aggregate(levels)

	assert.True(t, levels[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, levels[0].Price.Equal(decimal.NewFromInt(100)))
}
