package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfabric/omsflow/internal/model"
)

// MockClient is an in-memory venue for tests and paper trading. Submitted
// orders are accepted immediately and report FILLED after FillAfterPolls
// status checks. Error fields, when set, are returned by the matching
// operation to simulate venue outages.
type MockClient struct {
	// FillAfterPolls is how many GetOrderStatus calls an order survives
	// before it fills. Zero fills on the first poll.
	FillAfterPolls int

	ConnectErr error
	SubmitErr  error
	CancelErr  error
	ReplaceErr error
	StatusErr  error

	mu        sync.Mutex
	connected bool
	orders    map[string]*mockOrder
}

type mockOrder struct {
	status model.OrderStatus
	polls  int
}

// NewMockClient creates a mock venue that fills after two status polls.
func NewMockClient() *MockClient {
	return &MockClient{
		FillAfterPolls: 2,
		orders:         make(map[string]*mockOrder),
	}
}

func (m *MockClient) Connect(ctx context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *MockClient) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

func (m *MockClient) SubmitOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}

	m.mu.Lock()
	m.orders[order.ID()] = &mockOrder{status: model.OrderStatusSubmitted}
	m.mu.Unlock()

	return &model.ExecutionResult{
		Success:      true,
		OrderID:      order.ID(),
		VenueOrderID: "MOCK-" + uuid.New().String()[:8],
		Status:       model.OrderStatusSubmitted,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.orders[order.ID()]
	if !ok {
		return model.FailedResult(order.ID(), fmt.Sprintf("order %s not known to venue", order.ID())), nil
	}
	entry.status = model.OrderStatusCancelled

	return &model.ExecutionResult{
		Success:   true,
		OrderID:   order.ID(),
		Status:    model.OrderStatusCancelled,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (m *MockClient) ReplaceOrder(ctx context.Context, order *model.Order, newPrice, newQty *float64) (*model.ExecutionResult, error) {
	if m.ReplaceErr != nil {
		return nil, m.ReplaceErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.orders[order.ID()]
	if !ok {
		return model.FailedResult(order.ID(), fmt.Sprintf("order %s not known to venue", order.ID())), nil
	}
	entry.polls = 0 // replaced order starts its life over

	return &model.ExecutionResult{
		Success:   true,
		OrderID:   order.ID(),
		Status:    entry.status,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (m *MockClient) GetOrderStatus(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	if m.StatusErr != nil {
		return nil, m.StatusErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.orders[order.ID()]
	if !ok {
		return model.FailedResult(order.ID(), fmt.Sprintf("order %s not known to venue", order.ID())), nil
	}

	result := &model.ExecutionResult{
		Success:   true,
		OrderID:   order.ID(),
		Status:    entry.status,
		Timestamp: time.Now().UTC(),
	}

	if entry.status == model.OrderStatusSubmitted || entry.status == model.OrderStatusPartiallyFilled {
		entry.polls++
		if entry.polls > m.FillAfterPolls {
			entry.status = model.OrderStatusFilled
			result.Status = model.OrderStatusFilled
			result.ExecutionID = "EXEC-" + uuid.New().String()[:8]
		}
	}
	return result, nil
}
