package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/omsflow/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func limitOrder(t *testing.T, price float64, quantity float64) *model.Order {
	t.Helper()
	order, err := model.NewOrder("cl-1", "AAPL", model.SecurityTypeEquity, model.SideBuy, quantity, model.OrderTypeLimit, model.TimeInForceDay, floatPtr(price))
	require.NoError(t, err)
	return order
}

func marketOrder(t *testing.T, quantity float64) *model.Order {
	t.Helper()
	order, err := model.NewOrder("cl-2", "AAPL", model.SecurityTypeEquity, model.SideSell, quantity, model.OrderTypeMarket, model.TimeInForceDay, nil)
	require.NoError(t, err)
	return order
}

// stubRule returns a fixed result, recording invocation order.
type stubRule struct {
	name   string
	result model.ValidationResult
	calls  *[]string
}

func (r stubRule) Name() string { return r.name }

func (r stubRule) Validate(order *model.Order, ctx Context) model.ValidationResult {
	if r.calls != nil {
		*r.calls = append(*r.calls, r.name)
	}
	return r.result
}

type panickingRule struct{}

func (panickingRule) Name() string { return "panicking" }

func (panickingRule) Validate(order *model.Order, ctx Context) model.ValidationResult {
	panic("missing context key")
}

func TestEngineAggregatesAllRules(t *testing.T) {
	var calls []string
	engine := NewEngine()
	engine.AddRule(stubRule{name: "first", result: model.ValidationResult{Errors: []string{"err-a"}}, calls: &calls})
	engine.AddRule(stubRule{name: "second", result: model.ValidationResult{Valid: true, Warnings: []string{"warn-b"}}, calls: &calls})
	engine.AddRule(stubRule{name: "third", result: model.ValidationResult{Errors: []string{"err-c"}}, calls: &calls})

	result := engine.ValidateOrder(marketOrder(t, 1), nil)

	assert.False(t, result.Valid)
	// No short-circuit: every rule ran, in registration order.
	assert.Equal(t, []string{"first", "second", "third"}, calls)
	assert.Equal(t, []string{"err-a", "err-c"}, result.Errors)
	assert.Equal(t, []string{"warn-b"}, result.Warnings)
}

func TestEngineWarningsDoNotBlock(t *testing.T) {
	engine := NewEngine()
	engine.AddRule(stubRule{name: "warner", result: model.ValidationResult{Valid: true, Warnings: []string{"heads up"}}})

	result := engine.ValidateOrder(marketOrder(t, 1), nil)
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 1)
}

func TestEngineSurvivesPanickingRule(t *testing.T) {
	engine := NewEngine()
	engine.AddRule(panickingRule{})
	engine.AddRule(stubRule{name: "after", result: model.ValidationResult{Valid: true, Warnings: []string{"still ran"}}})

	result := engine.ValidateOrder(marketOrder(t, 1), nil)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "failed to evaluate")
	assert.Equal(t, []string{"still ran"}, result.Warnings)
}

func TestEngineWithNoRules(t *testing.T) {
	engine := NewEngine()
	result := engine.ValidateOrder(marketOrder(t, 1), Context{})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}
