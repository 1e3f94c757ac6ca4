package fix

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/omsflow/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func testOrder(t *testing.T) *model.Order {
	t.Helper()
	order, err := model.NewOrder("CL-100", "EURUSD", model.SecurityTypeForex, model.SideBuy, 1000000, model.OrderTypeLimit, model.TimeInForceGTC, floatPtr(1.0875))
	require.NoError(t, err)
	return order
}

func TestNewOrderSingle(t *testing.T) {
	gen := NewGenerator("OMSFLOW", "PHOENIX")
	order := testOrder(t)

	msg, err := gen.NewOrderSingle(order, "ACC-1", map[string]string{"5847": "ALGO-X", "note": "ignored"})
	require.NoError(t, err)

	assert.Equal(t, MsgTypeNewOrderSingle, msg.MsgType)
	assert.Equal(t, "CL-100", msg.Get(11))
	assert.Equal(t, "EURUSD", msg.Get(55))
	assert.Equal(t, "1", msg.Get(54))   // buy
	assert.Equal(t, "2", msg.Get(40))   // limit
	assert.Equal(t, "1", msg.Get(59))   // GTC
	assert.Equal(t, "CURR", msg.Get(167))
	assert.Equal(t, "1.0875", msg.Get(44))
	assert.Equal(t, "ACC-1", msg.Get(1))
	// Numeric refdata keys pass through; non-numeric keys are dropped.
	assert.Equal(t, "ALGO-X", msg.Get(5847))
}

func TestNewOrderSingleOrderTypeCodes(t *testing.T) {
	gen := NewGenerator("OMSFLOW", "PHOENIX")
	tests := []struct {
		orderType model.OrderType
		code      string
	}{
		{model.OrderTypeMarket, "1"},
		{model.OrderTypeLimit, "2"},
		{model.OrderTypeTWAP, "U"},
		{model.OrderTypeVWAP, "V"},
	}
	for _, tt := range tests {
		order := testOrder(t)
		order.Type = tt.orderType
		msg, err := gen.NewOrderSingle(order, "ACC-1", nil)
		require.NoError(t, err)
		assert.Equal(t, tt.code, msg.Get(40), string(tt.orderType))
	}
}

func TestCancelRequest(t *testing.T) {
	gen := NewGenerator("OMSFLOW", "PHOENIX")
	order := testOrder(t)

	msg := gen.CancelRequest(order, "CL-99", "ACC-1")
	assert.Equal(t, MsgTypeCancelRequest, msg.MsgType)
	assert.Equal(t, "CL-100", msg.Get(11))
	assert.Equal(t, "CL-99", msg.Get(41))
	assert.Equal(t, "ACC-1", msg.Get(1))
}

func TestCancelReplaceOverrides(t *testing.T) {
	gen := NewGenerator("OMSFLOW", "PHOENIX")

	t.Run("no overrides keeps original price and quantity", func(t *testing.T) {
		order := testOrder(t)
		msg := gen.CancelReplace(order, "CL-100", "ACC-1", nil, nil)
		assert.Equal(t, "1000000", msg.Get(38))
		assert.Equal(t, "1.0875", msg.Get(44))
	})

	t.Run("price and quantity overrides are applied", func(t *testing.T) {
		order := testOrder(t)
		msg := gen.CancelReplace(order, "CL-100", "ACC-1", floatPtr(1.09), floatPtr(500000))
		assert.Equal(t, "500000", msg.Get(38))
		assert.Equal(t, "1.09", msg.Get(44))
	})
}

func TestOrderStatusRequest(t *testing.T) {
	gen := NewGenerator("OMSFLOW", "PHOENIX")
	msg := gen.OrderStatusRequest("CL-100", "ACC-1")
	assert.Equal(t, MsgTypeOrderStatusRequest, msg.MsgType)
	assert.Equal(t, "CL-100", msg.Get(11))
}

func TestEncodeFraming(t *testing.T) {
	gen := NewGenerator("OMSFLOW", "PHOENIX")
	gen.now = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }

	raw := string(gen.Encode(gen.OrderStatusRequest("CL-1", "ACC-1")))

	assert.True(t, strings.HasPrefix(raw, "8=FIX.4.4\x019="))
	assert.Contains(t, raw, "35=H\x01")
	assert.Contains(t, raw, "49=OMSFLOW\x01")
	assert.Contains(t, raw, "56=PHOENIX\x01")
	assert.Contains(t, raw, "52=20250314-09:30:00.000\x01")

	// Trailer is 10=NNN<SOH> with a three digit checksum.
	require.True(t, strings.HasSuffix(raw, "\x01"))
	idx := strings.LastIndex(raw, "10=")
	require.Greater(t, idx, 0)
	check := raw[idx+3 : len(raw)-1]
	assert.Len(t, check, 3)

	// Checksum is the byte sum of everything before the trailer, mod 256.
	var sum int
	for i := 0; i < idx; i++ {
		sum += int(raw[i])
	}
	assert.Equal(t, sum%256, atoi(t, check))
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		require.True(t, c >= '0' && c <= '9')
		n = n*10 + int(c-'0')
	}
	return n
}
