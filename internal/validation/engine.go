// Package validation applies an ordered chain of pluggable rules to
// candidate orders before they reach the execution venue.
package validation

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/model"
)

// Context carries the reference data a rule may need: market prices,
// current exposure, venue reference data. Rules must not mutate it.
type Context map[string]interface{}

// Float reads a numeric context value. The second return is false when the
// key is absent or not a number.
func (c Context) Float(key string) (float64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Well-known context keys.
const (
	CtxMarketPrice     = "market_price"
	CtxCurrentPosition = "current_position"
	CtxVenueRefData    = "venue_refdata"
)

// Rule validates a single order against one concern. Implementations must
// be pure with respect to the order and context and must report evaluation
// problems as errors in the result rather than failing.
type Rule interface {
	Name() string
	Validate(order *model.Order, ctx Context) model.ValidationResult
}

// Engine runs every registered rule against an order and aggregates the
// results. Registration order is evaluation order.
type Engine struct {
	rules []Rule
}

// NewEngine creates an empty validation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// AddRule registers a rule. Rules run in registration order.
func (e *Engine) AddRule(rule Rule) {
	e.rules = append(e.rules, rule)
	log.Debug().Str("rule", rule.Name()).Msg("Validation rule registered")
}

// ValidateOrder runs all rules against the order and concatenates their
// errors and warnings. There is no short-circuit: a later rule still
// contributes warnings even when an earlier rule failed. A panicking rule
// is converted into an error entry; the engine always returns a result.
func (e *Engine) ValidateOrder(order *model.Order, ctx Context) model.ValidationResult {
	if ctx == nil {
		ctx = Context{}
	}

	var errs, warnings []string
	for _, rule := range e.rules {
		result := e.runRule(rule, order, ctx)
		errs = append(errs, result.Errors...)
		warnings = append(warnings, result.Warnings...)
	}

	return model.ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// runRule isolates a single rule invocation so a misbehaving rule cannot
// propagate past the engine boundary.
func (e *Engine) runRule(rule Rule, order *model.Order, ctx Context) (result model.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("rule", rule.Name()).
				Str("order_id", order.ID()).
				Interface("panic", r).
				Msg("Validation rule panicked")
			result = model.ValidationResult{
				Errors: []string{fmt.Sprintf("rule %s failed to evaluate: %v", rule.Name(), r)},
			}
		}
	}()
	return rule.Validate(order, ctx)
}
