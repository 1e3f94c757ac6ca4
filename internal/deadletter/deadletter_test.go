package deadletter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/omsflow/internal/model"
)

func TestNATSSinkPublishesEnvelope(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second))
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	received := make(chan *nats.Msg, 1)
	_, err = nc.ChanSubscribe("orders.deadletter", received)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	sink, err := NewNATSSink(srv.ClientURL(), "orders.deadletter")
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	price := 101.5
	order, err := model.NewOrder("dl-1", "AAPL", model.SecurityTypeEquity, model.SideBuy,
		100, model.OrderTypeLimit, model.TimeInForceDay, &price)
	require.NoError(t, err)

	reasons := []string{"price deviation 9.09% exceeds maximum 5.00%"}
	require.NoError(t, sink.Publish(context.Background(), order, reasons))

	select {
	case msg := <-received:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg.Data, &env))
		assert.Equal(t, order.ID(), env.Order.ID())
		assert.Equal(t, reasons, env.Reasons)
		assert.WithinDuration(t, time.Now(), env.RejectedAt, 5*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dead letter")
	}
}

func TestLogSinkNeverFails(t *testing.T) {
	sink := NewLogSink()
	price := 10.0
	order, err := model.NewOrder("dl-2", "MSFT", model.SecurityTypeEquity, model.SideSell,
		5, model.OrderTypeLimit, model.TimeInForceGTC, &price)
	require.NoError(t, err)

	assert.NoError(t, sink.Publish(context.Background(), order, []string{"bad order"}))
	assert.NoError(t, sink.Close())
}
