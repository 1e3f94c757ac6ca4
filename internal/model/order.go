// Package model defines the canonical order data model shared by the order
// sources, the validation engine, the execution clients and the lifecycle
// manager.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Side represents buy or sell
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType represents the execution style of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeTWAP   OrderType = "TWAP"
	OrderTypeVWAP   OrderType = "VWAP"
)

// IsAlgo reports whether the order type is a time-sliced parent order.
// Venues penalize frequent status polling of these, so the lifecycle
// manager uses a longer poll interval for them.
func (t OrderType) IsAlgo() bool {
	return t == OrderTypeTWAP || t == OrderTypeVWAP
}

// SecurityType represents the instrument class
type SecurityType string

const (
	SecurityTypeEquity SecurityType = "EQUITY"
	SecurityTypeFuture SecurityType = "FUTURE"
	SecurityTypeOption SecurityType = "OPTION"
	SecurityTypeForex  SecurityType = "FOREX"
)

// TimeInForce represents how long an order remains working
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusValidated       OrderStatus = "VALIDATED"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusError           OrderStatus = "ERROR"
)

// IsTerminal reports whether no further transition can occur from this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusError:
		return true
	}
	return false
}

// statusRank orders the non-terminal statuses for the forward-only check.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:         0,
	OrderStatusValidated:       1,
	OrderStatusSubmitted:       2,
	OrderStatusPartiallyFilled: 3,
}

// CanTransition reports whether moving from s to next is a valid forward
// transition. Terminal statuses accept nothing; fills are monotonic, so
// PARTIALLY_FILLED never falls back to SUBMITTED.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// Order represents a financial order flowing through the system.
type Order struct {
	OrderID       uuid.UUID              `json:"order_id"`
	ClientOrderID string                 `json:"client_order_id"`
	Symbol        string                 `json:"symbol"`
	SecurityType  SecurityType           `json:"security_type"`
	Side          Side                   `json:"side"`
	Quantity      float64                `json:"quantity"`
	Type          OrderType              `json:"order_type"`
	TimeInForce   TimeInForce            `json:"time_in_force"`
	Price         *float64               `json:"price,omitempty"`
	Status        OrderStatus            `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrder builds an order with a generated order ID and PENDING status,
// enforcing the model invariants: side is BUY or SELL, quantity is positive,
// and limit orders carry a price.
func NewOrder(clientOrderID, symbol string, secType SecurityType, side Side, quantity float64, orderType OrderType, tif TimeInForce, price *float64) (*Order, error) {
	side = Side(strings.ToUpper(string(side)))
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("side must be either %q or %q", SideBuy, SideSell)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %f", quantity)
	}
	if orderType == OrderTypeLimit && price == nil {
		return nil, fmt.Errorf("limit orders must have a price")
	}
	now := time.Now().UTC()
	return &Order{
		OrderID:       uuid.New(),
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		SecurityType:  secType,
		Side:          side,
		Quantity:      quantity,
		Type:          orderType,
		TimeInForce:   tif,
		Price:         price,
		Status:        OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata:      make(map[string]interface{}),
	}, nil
}

// ID returns the string form of the order identifier, the key used by the
// active-order set.
func (o *Order) ID() string {
	return o.OrderID.String()
}

// Clone returns a deep copy of the order. Snapshots handed outside the
// active-order set must not share the price pointer or the metadata map
// with the tracked order.
func (o *Order) Clone() *Order {
	dup := *o
	if o.Price != nil {
		price := *o.Price
		dup.Price = &price
	}
	if o.Metadata != nil {
		dup.Metadata = make(map[string]interface{}, len(o.Metadata))
		for k, v := range o.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}

// ValidationResult aggregates the outcome of running validation rules
// against one order. An order is valid iff Errors is empty; warnings never
// block submission.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ExecutionResult is the uniform response for submit, cancel, replace and
// status-query commands against the execution venue.
type ExecutionResult struct {
	Success      bool        `json:"success"`
	OrderID      string      `json:"order_id"`
	VenueOrderID string      `json:"venue_order_id,omitempty"`
	ExecutionID  string      `json:"execution_id,omitempty"`
	Status       OrderStatus `json:"status,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// FailedResult builds a failed ExecutionResult for the given order ID.
func FailedResult(orderID, errMsg string) *ExecutionResult {
	return &ExecutionResult{
		Success:      false,
		OrderID:      orderID,
		ErrorMessage: errMsg,
		Timestamp:    time.Now().UTC(),
	}
}
