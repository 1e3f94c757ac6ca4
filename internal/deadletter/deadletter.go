// Package deadletter routes orders that failed validation out of the main
// flow so they can be inspected and replayed.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/model"
)

// Sink receives orders rejected by the validation pipeline.
type Sink interface {
	Publish(ctx context.Context, order *model.Order, reasons []string) error
	Close() error
}

// Envelope is the wire form of a dead-lettered order.
type Envelope struct {
	Order      *model.Order `json:"order"`
	Reasons    []string     `json:"reasons"`
	RejectedAt time.Time    `json:"rejected_at"`
}

// NATSSink publishes dead-lettered orders to a NATS subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

// NewNATSSink connects to NATS and returns a sink for the given subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS dead letter sink: %w", err)
	}
	return &NATSSink{
		conn:    conn,
		subject: subject,
		log:     log.With().Str("component", "deadletter").Str("subject", subject).Logger(),
	}, nil
}

// Publish sends the rejected order with its validation errors.
func (s *NATSSink) Publish(ctx context.Context, order *model.Order, reasons []string) error {
	payload, err := json.Marshal(Envelope{
		Order:      order,
		Reasons:    reasons,
		RejectedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode dead letter for %s: %w", order.ID(), err)
	}

	if err := s.conn.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("failed to publish dead letter for %s: %w", order.ID(), err)
	}
	s.log.Info().Str("order_id", order.ID()).Strs("reasons", reasons).Msg("Order dead-lettered")
	return nil
}

// Close flushes and closes the connection.
func (s *NATSSink) Close() error {
	if s.conn != nil {
		if err := s.conn.Flush(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to flush dead letter connection")
		}
		s.conn.Close()
		s.conn = nil
	}
	return nil
}

// LogSink records dead-lettered orders in the service log only. Used when no
// broker is configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a log-only dead letter sink.
func NewLogSink() *LogSink {
	return &LogSink{log: log.With().Str("component", "deadletter").Logger()}
}

func (s *LogSink) Publish(ctx context.Context, order *model.Order, reasons []string) error {
	s.log.Warn().
		Str("order_id", order.ID()).
		Str("client_order_id", order.ClientOrderID).
		Str("symbol", order.Symbol).
		Strs("reasons", reasons).
		Msg("Order rejected by validation")
	return nil
}

func (s *LogSink) Close() error { return nil }
