// Package execution contains the venue adapters that carry orders from the
// orchestrator to an execution venue and report their fate back as
// ExecutionResults.
package execution

import (
	"context"

	"github.com/quantfabric/omsflow/internal/model"
)

// ExecutionClient is the venue-facing side of the orchestrator. A returned
// error means the venue could not be reached or gave an unusable reply;
// business-level rejections come back as a result with Success=false.
type ExecutionClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	SubmitOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error)
	CancelOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error)

	// ReplaceOrder modifies the working order at the venue. Nil overrides
	// keep the original price or quantity.
	ReplaceOrder(ctx context.Context, order *model.Order, newPrice, newQty *float64) (*model.ExecutionResult, error)

	GetOrderStatus(ctx context.Context, order *model.Order) (*model.ExecutionResult, error)
}
