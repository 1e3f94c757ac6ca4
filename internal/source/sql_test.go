package source

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/omsflow/internal/model"
)

func newSQLSourceWithMock(t *testing.T, cfg SQLSourceConfig) (*SQLSource, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewSQLSource(mock, cfg), mock
}

func pendingRows(ids ...uuid.UUID) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"order_id", "client_order_id", "symbol", "security_type", "side",
		"quantity", "order_type", "time_in_force", "price", "created_at",
	})
	price := 101.5
	for i, id := range ids {
		rows.AddRow(
			id.String(), "cl-"+id.String()[:8], "AAPL", model.SecurityTypeEquity, model.SideBuy,
			float64(10+i), model.OrderTypeLimit, model.TimeInForceDay, &price, time.Now().UTC(),
		)
	}
	return rows
}

func TestSQLSourceConnect(t *testing.T) {
	src, mock := newSQLSourceWithMock(t, DefaultSQLSourceConfig())
	mock.ExpectPing()

	require.NoError(t, src.Connect(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSourceStreamDeliversPendingRows(t *testing.T) {
	cfg := DefaultSQLSourceConfig()
	cfg.PollInterval = time.Hour // single poll for the test
	src, mock := newSQLSourceWithMock(t, cfg)

	id1, id2 := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM pending_orders WHERE acknowledged = false").
		WithArgs(cfg.BatchSize).
		WillReturnRows(pendingRows(id1, id2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders, err := src.Stream(ctx)
	require.NoError(t, err)

	first := <-orders
	second := <-orders
	assert.Equal(t, id1.String(), first.ID())
	assert.Equal(t, id2.String(), second.ID())
	assert.Equal(t, model.OrderStatusPending, first.Status)
	require.NotNil(t, first.Price)
	assert.Equal(t, 101.5, *first.Price)

	cancel()
	_, open := <-orders
	assert.False(t, open, "stream should close on cancellation")
}

func TestSQLSourceDoesNotRedeliverInflightOrders(t *testing.T) {
	cfg := DefaultSQLSourceConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.RedeliverAfter = time.Hour
	src, mock := newSQLSourceWithMock(t, cfg)

	id := uuid.New()
	// The same unacknowledged row is returned by every poll, but must be
	// delivered only once inside the redelivery window.
	for i := 0; i < 5; i++ {
		mock.ExpectQuery("SELECT (.+) FROM pending_orders WHERE acknowledged = false").
			WithArgs(cfg.BatchSize).
			WillReturnRows(pendingRows(id))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders, err := src.Stream(ctx)
	require.NoError(t, err)

	first := <-orders
	assert.Equal(t, id.String(), first.ID())

	select {
	case order := <-orders:
		t.Fatalf("unexpected redelivery of order %s", order.ID())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSQLSourceAcknowledge(t *testing.T) {
	src, mock := newSQLSourceWithMock(t, DefaultSQLSourceConfig())
	id := uuid.New()

	mock.ExpectExec("UPDATE pending_orders SET acknowledged = true").
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE pending_orders SET acknowledged = true").
		WithArgs("unknown").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := src.Acknowledge(context.Background(), id.String())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = src.Acknowledge(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSourceGetOrder(t *testing.T) {
	src, mock := newSQLSourceWithMock(t, DefaultSQLSourceConfig())
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM pending_orders WHERE order_id").
		WithArgs(id.String()).
		WillReturnRows(pendingRows(id))

	order, err := src.GetOrder(context.Background(), id.String())
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, id.String(), order.ID())
	assert.Equal(t, "AAPL", order.Symbol)
}
