package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceDeviationRule(t *testing.T) {
	rule := NewPriceDeviationRule(0.05)

	t.Run("market orders always pass", func(t *testing.T) {
		result := rule.Validate(marketOrder(t, 10), Context{CtxMarketPrice: 1.0})
		assert.True(t, result.Valid)

		// Even with no market price at all.
		result = rule.Validate(marketOrder(t, 10), Context{})
		assert.True(t, result.Valid)
	})

	t.Run("within bound passes", func(t *testing.T) {
		// price=100, market=103 -> deviation ~2.91%
		result := rule.Validate(limitOrder(t, 100, 10), Context{CtxMarketPrice: 103.0})
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("beyond bound fails with deviation and bound in the error", func(t *testing.T) {
		// price=100, market=110 -> deviation ~9.09% > 5%
		result := rule.Validate(limitOrder(t, 100, 10), Context{CtxMarketPrice: 110.0})
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "9.09%")
		assert.Contains(t, result.Errors[0], "5.00%")
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		// price=105, market=100 -> deviation exactly 5%
		result := rule.Validate(limitOrder(t, 105, 10), Context{CtxMarketPrice: 100.0})
		assert.True(t, result.Valid)
	})

	t.Run("missing market price is a hard error", func(t *testing.T) {
		result := rule.Validate(limitOrder(t, 100, 10), Context{})
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "market price not available")
	})

	t.Run("missing limit price is a hard error", func(t *testing.T) {
		order := limitOrder(t, 100, 10)
		order.Price = nil
		result := rule.Validate(order, Context{CtxMarketPrice: 100.0})
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "price is required")
	})
}

func TestPositionLimitRule(t *testing.T) {
	rule := NewPositionLimitRule(10000)

	tests := []struct {
		name            string
		price           float64
		quantity        float64
		currentPosition float64
		valid           bool
	}{
		{"well under limit", 100, 10, 0, true},
		{"boundary value passes", 100, 10, 9000, true},
		{"just over limit fails", 100, 10, 9000.01, false},
		{"existing exposure pushes over", 100, 50, 6000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := Context{CtxCurrentPosition: tt.currentPosition}
			result := rule.Validate(limitOrder(t, tt.price, tt.quantity), ctx)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				require.Len(t, result.Errors, 1)
				assert.Contains(t, result.Errors[0], "position limit")
			}
		})
	}

	t.Run("market order falls back to market price", func(t *testing.T) {
		ctx := Context{CtxCurrentPosition: 9500.0, CtxMarketPrice: 100.0}
		result := rule.Validate(marketOrder(t, 10), ctx)
		assert.False(t, result.Valid)
	})

	t.Run("no price at all counts as zero notional", func(t *testing.T) {
		result := rule.Validate(marketOrder(t, 10), Context{CtxCurrentPosition: 9999.0})
		assert.True(t, result.Valid)
	})
}

func TestRulesInsideEngineScenario(t *testing.T) {
	engine := NewEngine()
	engine.AddRule(NewPriceDeviationRule(0.05))
	engine.AddRule(NewPositionLimitRule(1e9))

	order := limitOrder(t, 100, 10)

	result := engine.ValidateOrder(order, Context{CtxMarketPrice: 103.0})
	assert.True(t, result.Valid, fmt.Sprintf("errors: %v", result.Errors))

	result = engine.ValidateOrder(order, Context{CtxMarketPrice: 110.0})
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 1)
}
