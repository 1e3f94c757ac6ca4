package execution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/omsflow/internal/model"
)

// flakyClient fails every call until healed.
type flakyClient struct {
	MockClient
	failing bool
	calls   int
}

func (f *flakyClient) GetOrderStatus(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	f.calls++
	if f.failing {
		return nil, fmt.Errorf("venue unreachable")
	}
	return &model.ExecutionResult{Success: true, OrderID: order.ID(), Status: model.OrderStatusSubmitted}, nil
}

func testBreakerConfig() BreakerConfig {
	cfg := DefaultBreakerConfig("test-venue")
	cfg.ConsecutiveFailures = 3
	cfg.Timeout = 50 * time.Millisecond
	cfg.RequestsPerSecond = 10000
	cfg.Burst = 10000
	return cfg
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := &flakyClient{failing: true}
	client := NewBreakerClient(inner, testBreakerConfig())
	order := limitOrder(t, "brk-1", 10)

	for i := 0; i < 3; i++ {
		_, err := client.GetOrderStatus(ctx, order)
		require.Error(t, err)
	}

	// breaker is now open; the inner client must not be called
	before := inner.calls
	_, err := client.GetOrderStatus(ctx, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
	assert.Equal(t, before, inner.calls)
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	ctx := context.Background()
	inner := &flakyClient{failing: true}
	client := NewBreakerClient(inner, testBreakerConfig())
	order := limitOrder(t, "brk-2", 10)

	for i := 0; i < 3; i++ {
		_, _ = client.GetOrderStatus(ctx, order)
	}

	inner.failing = false
	time.Sleep(100 * time.Millisecond)

	result, err := client.GetOrderStatus(ctx, order)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestBreakerPassesThroughResults(t *testing.T) {
	ctx := context.Background()
	inner := NewMockClient()
	client := NewBreakerClient(inner, testBreakerConfig())
	require.NoError(t, client.Connect(ctx))

	order := limitOrder(t, "brk-3", 10)
	result, err := client.SubmitOrder(ctx, order)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, order.ID(), result.OrderID)
}

func TestBreakerRespectsContextCancellation(t *testing.T) {
	inner := NewMockClient()
	cfg := testBreakerConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	client := NewBreakerClient(inner, cfg)
	require.NoError(t, client.Connect(context.Background()))

	order := limitOrder(t, "brk-4", 10)
	_, err := client.SubmitOrder(context.Background(), order) // consume the burst token
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.SubmitOrder(ctx, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
