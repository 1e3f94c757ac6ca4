package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/omsflow/internal/model"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{ErrorValidation, ErrorValidation},
		{ErrorStatusCheck, ErrorStatusCheck},
		{"order validation blew up", ErrorValidation},
		{"could not submit", ErrorSubmission},
		{"status request timed out", ErrorStatusCheck},
		{"order not found", ErrorNotFound},
		{"something else entirely", ErrorOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeError(tt.in), tt.in)
	}
}

func TestPromRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPromRecorder(reg)

	rec.RecordStatusTransition(model.OrderStatusSubmitted)
	rec.RecordStatusTransition(model.OrderStatusSubmitted)
	rec.RecordStatusTransition(model.OrderStatusFilled)
	rec.RecordError(ErrorStatusCheck)
	rec.RecordProcessingTime(model.OrderTypeLimit, model.OrderStatusSubmitted, 50*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(rec.ordersByStatus.WithLabelValues("SUBMITTED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.ordersByStatus.WithLabelValues("FILLED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.errorsTotal.WithLabelValues(ErrorStatusCheck)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["omsflow_orders_by_status_total"])
	assert.True(t, names["omsflow_order_processing_seconds"])
	assert.True(t, names["omsflow_order_errors_total"])
}

func TestNopRecorderDoesNotPanic(t *testing.T) {
	var rec Recorder = NopRecorder{}
	rec.RecordStatusTransition(model.OrderStatusFilled)
	rec.RecordProcessingTime(model.OrderTypeTWAP, model.OrderStatusSubmitted, time.Second)
	rec.RecordError("anything")
}
