package validation

import (
	"fmt"

	"github.com/quantfabric/omsflow/internal/model"
)

// PriceDeviationRule rejects limit-style orders whose price deviates from
// the supplied market price by more than a configured fraction. Market
// orders always pass; deviation exactly at the bound is accepted.
type PriceDeviationRule struct {
	MaxDeviation float64
}

// NewPriceDeviationRule creates the rule with the given maximum fractional
// deviation (e.g. 0.05 for 5%).
func NewPriceDeviationRule(maxDeviation float64) *PriceDeviationRule {
	return &PriceDeviationRule{MaxDeviation: maxDeviation}
}

// Name implements Rule.
func (r *PriceDeviationRule) Name() string { return "price_deviation" }

// Validate implements Rule.
func (r *PriceDeviationRule) Validate(order *model.Order, ctx Context) model.ValidationResult {
	if order.Type == model.OrderTypeMarket {
		return model.ValidationResult{Valid: true}
	}

	marketPrice, ok := ctx.Float(CtxMarketPrice)
	if !ok || marketPrice <= 0 {
		return model.ValidationResult{
			Errors: []string{"market price not available for validation"},
		}
	}

	if order.Price == nil {
		return model.ValidationResult{
			Errors: []string{"price is required for limit orders"},
		}
	}

	deviation := (*order.Price - marketPrice) / marketPrice
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > r.MaxDeviation {
		return model.ValidationResult{
			Errors: []string{fmt.Sprintf("price deviation %.2f%% exceeds maximum %.2f%%", deviation*100, r.MaxDeviation*100)},
		}
	}

	return model.ValidationResult{Valid: true}
}

// PositionLimitRule rejects orders whose notional, added to the current
// exposure, would exceed a configured ceiling. The boundary value itself
// passes.
type PositionLimitRule struct {
	MaxPositionValue float64
}

// NewPositionLimitRule creates the rule with the given exposure ceiling.
func NewPositionLimitRule(maxPositionValue float64) *PositionLimitRule {
	return &PositionLimitRule{MaxPositionValue: maxPositionValue}
}

// Name implements Rule.
func (r *PositionLimitRule) Name() string { return "position_limit" }

// Validate implements Rule.
func (r *PositionLimitRule) Validate(order *model.Order, ctx Context) model.ValidationResult {
	currentPosition, _ := ctx.Float(CtxCurrentPosition)

	// Effective price: limit price if present, else market price, else 0.
	var effectivePrice float64
	if order.Price != nil {
		effectivePrice = *order.Price
	} else if marketPrice, ok := ctx.Float(CtxMarketPrice); ok {
		effectivePrice = marketPrice
	}

	orderValue := order.Quantity * effectivePrice
	if currentPosition+orderValue > r.MaxPositionValue {
		return model.ValidationResult{
			Errors: []string{fmt.Sprintf("order value %.2f would exceed position limit %.2f", orderValue, r.MaxPositionValue)},
		}
	}

	return model.ValidationResult{Valid: true}
}
