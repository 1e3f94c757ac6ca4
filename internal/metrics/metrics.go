// Package metrics provides the observability collaborator injected into the
// orchestrator and lifecycle manager, implemented on Prometheus.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantfabric/omsflow/internal/model"
)

// Bounded cardinality constants for the error_type label. Free-form error
// strings would blow up the label space.
const (
	ErrorValidation  = "validation_failed"
	ErrorSubmission  = "submission_failed"
	ErrorStatusCheck = "status_check_failed"
	ErrorMonitor     = "monitoring_error"
	ErrorNotFound    = "order_not_found"
	ErrorIngest      = "ingest_error"
	ErrorSourceAck   = "source_ack_failed"
	ErrorVenueStatus = "unknown_venue_status"
	ErrorOther       = "other"
)

// NormalizeError maps an arbitrary error category to the bounded set.
func NormalizeError(category string) string {
	switch category {
	case ErrorValidation, ErrorSubmission, ErrorStatusCheck, ErrorMonitor,
		ErrorNotFound, ErrorIngest, ErrorSourceAck, ErrorVenueStatus:
		return category
	}
	lower := strings.ToLower(category)
	switch {
	case strings.Contains(lower, "valid"):
		return ErrorValidation
	case strings.Contains(lower, "submit"):
		return ErrorSubmission
	case strings.Contains(lower, "status"):
		return ErrorStatusCheck
	case strings.Contains(lower, "monitor"):
		return ErrorMonitor
	case strings.Contains(lower, "found"):
		return ErrorNotFound
	default:
		return ErrorOther
	}
}

// Recorder is the observability interface the core components report into.
// It is injected by the orchestrator rather than accessed as ambient global
// state.
type Recorder interface {
	// RecordStatusTransition counts an order arriving in a status.
	RecordStatusTransition(status model.OrderStatus)
	// RecordProcessingTime observes time spent between monitor checks,
	// keyed by order type and status.
	RecordProcessingTime(orderType model.OrderType, status model.OrderStatus, d time.Duration)
	// RecordError counts an error by bounded category.
	RecordError(category string)
}

// PromRecorder implements Recorder on Prometheus collectors.
type PromRecorder struct {
	ordersByStatus *prometheus.CounterVec
	processingTime *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
}

// NewPromRecorder creates a recorder registered on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a private
// registry to avoid duplicate-registration panics.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	factory := promauto.With(reg)
	return &PromRecorder{
		ordersByStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "omsflow_orders_by_status_total",
			Help: "Number of order status transitions by resulting status",
		}, []string{"status"}),
		processingTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omsflow_order_processing_seconds",
			Help:    "Time between monitor checks by order type and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"order_type", "status"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "omsflow_order_errors_total",
			Help: "Number of order processing errors by category",
		}, []string{"error_type"}),
	}
}

// RecordStatusTransition implements Recorder.
func (r *PromRecorder) RecordStatusTransition(status model.OrderStatus) {
	r.ordersByStatus.WithLabelValues(string(status)).Inc()
}

// RecordProcessingTime implements Recorder.
func (r *PromRecorder) RecordProcessingTime(orderType model.OrderType, status model.OrderStatus, d time.Duration) {
	r.processingTime.WithLabelValues(string(orderType), string(status)).Observe(d.Seconds())
}

// RecordError implements Recorder.
func (r *PromRecorder) RecordError(category string) {
	r.errorsTotal.WithLabelValues(NormalizeError(category)).Inc()
}

// NopRecorder discards all observations. Useful default for tests and for
// components constructed without monitoring.
type NopRecorder struct{}

// RecordStatusTransition implements Recorder.
func (NopRecorder) RecordStatusTransition(model.OrderStatus) {}

// RecordProcessingTime implements Recorder.
func (NopRecorder) RecordProcessingTime(model.OrderType, model.OrderStatus, time.Duration) {}

// RecordError implements Recorder.
func (NopRecorder) RecordError(string) {}
