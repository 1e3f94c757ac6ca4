package model

import "fmt"

// StatusTable maps venue-specific status strings to canonical order
// statuses. Tables are resolved once at configuration time; lookups at
// runtime are plain map reads.
type StatusTable map[string]OrderStatus

// PhoenixStatusTable is the status table for the Phoenix venue.
var PhoenixStatusTable = StatusTable{
	"PendingNew":     OrderStatusSubmitted,
	"Accepted":       OrderStatusSubmitted,
	"Calculated":     OrderStatusSubmitted,
	"Partial":        OrderStatusPartiallyFilled,
	"Filled":         OrderStatusFilled,
	"DoneForDay":     OrderStatusFilled,
	"Canceled":       OrderStatusCancelled,
	"PendingCancel":  OrderStatusSubmitted,
	"PendingReplace": OrderStatusSubmitted,
	"Replaced":       OrderStatusSubmitted,
	"Expired":        OrderStatusCancelled,
	"Rejected":       OrderStatusRejected,
	"Stopped":        OrderStatusError,
	"Suspended":      OrderStatusError,
}

// Canonical resolves a venue status code to the canonical status. Unknown
// codes map to ERROR together with a descriptive error so callers can
// surface the gap instead of guessing.
func (t StatusTable) Canonical(venueStatus string) (OrderStatus, error) {
	if status, ok := t[venueStatus]; ok {
		return status, nil
	}
	return OrderStatusError, fmt.Errorf("unknown venue status %q", venueStatus)
}
