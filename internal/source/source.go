// Package source provides order source adapters: backends that deliver
// candidate orders into the orchestrator and support acknowledgment.
package source

import (
	"context"

	"github.com/quantfabric/omsflow/internal/model"
)

// OrderSource delivers candidate orders from an upstream backend.
//
// Stream returns a lazy, possibly unbounded sequence of orders; the channel
// is closed when the backend is exhausted or the context is cancelled, and
// each element is delivered at most once per delivery attempt. Orders that
// are never acknowledged may be redelivered by the backend according to its
// own redelivery policy.
//
// Implementations must be safe for use by multiple goroutines: the
// ingestion loop consumes Stream while other callers invoke Acknowledge and
// GetOrder.
type OrderSource interface {
	// Connect establishes the connection to the backend.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Safe to call after a failed
	// Connect and safe to call twice.
	Disconnect(ctx context.Context) error

	// GetOrder retrieves a single order by its ID, or nil when unknown.
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)

	// Stream starts delivery of candidate orders. It may be called once
	// per connection.
	Stream(ctx context.Context) (<-chan *model.Order, error)

	// Acknowledge marks an order as successfully processed so the backend
	// will not redeliver it. Returns false when the order is unknown.
	Acknowledge(ctx context.Context, orderID string) (bool, error)
}
