package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/model"
)

// NATSSourceConfig configures the JetStream order source.
type NATSSourceConfig struct {
	URL       string
	Subject   string
	Durable   string        // durable consumer name
	AckWait   time.Duration // redelivery window for unacknowledged orders
	FetchWait time.Duration // max wait per pull
	BatchSize int
}

// DefaultNATSSourceConfig returns the default consumer configuration.
func DefaultNATSSourceConfig(url, subject string) NATSSourceConfig {
	return NATSSourceConfig{
		URL:       url,
		Subject:   subject,
		Durable:   "omsflow",
		AckWait:   30 * time.Second,
		FetchWait: time.Second,
		BatchSize: 32,
	}
}

// NATSSource consumes candidate orders from a JetStream subject through a
// durable pull consumer with manual acknowledgments. JetStream redelivers
// anything not acked within AckWait, which is exactly the redelivery
// contract the ingestion loop relies on for failed submissions.
type NATSSource struct {
	cfg  NATSSourceConfig
	conn *nats.Conn
	sub  *nats.Subscription
	log  zerolog.Logger

	mu      sync.Mutex
	pending map[string]natsEntry // order ID -> undelivered ack
}

type natsEntry struct {
	msg   *nats.Msg
	order *model.Order
}

// NewNATSSource creates a JetStream order source.
func NewNATSSource(cfg NATSSourceConfig) *NATSSource {
	if cfg.Durable == "" {
		cfg.Durable = "omsflow"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &NATSSource{
		cfg:     cfg,
		log:     log.With().Str("component", "nats_source").Str("subject", cfg.Subject).Logger(),
		pending: make(map[string]natsEntry),
	}
}

// Connect dials the server and binds the durable pull consumer.
func (s *NATSSource) Connect(ctx context.Context) error {
	conn, err := nats.Connect(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	sub, err := js.PullSubscribe(s.cfg.Subject, s.cfg.Durable, nats.AckWait(s.cfg.AckWait))
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.Subject, err)
	}

	s.conn = conn
	s.sub = sub
	s.log.Info().Str("url", s.cfg.URL).Str("durable", s.cfg.Durable).Msg("Connected to NATS order source")
	return nil
}

// Disconnect drains the subscription and closes the connection.
func (s *NATSSource) Disconnect(ctx context.Context) error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil && err != nats.ErrBadSubscription {
			s.log.Warn().Err(err).Msg("Failed to unsubscribe")
		}
		s.sub = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.log.Info().Msg("Disconnected from NATS order source")
	}
	return nil
}

// GetOrder returns an in-flight (delivered, unacknowledged) order, or nil.
func (s *NATSSource) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[orderID]; ok {
		return entry.order, nil
	}
	return nil, nil
}

// Stream pulls batches from the durable consumer and delivers them.
func (s *NATSSource) Stream(ctx context.Context) (<-chan *model.Order, error) {
	if s.sub == nil {
		return nil, fmt.Errorf("nats source is not connected")
	}

	out := make(chan *model.Order)

	go func() {
		defer close(out)

		for {
			if ctx.Err() != nil {
				return
			}

			msgs, err := s.sub.Fetch(s.cfg.BatchSize, nats.MaxWait(s.cfg.FetchWait))
			if err != nil {
				if err == nats.ErrTimeout || ctx.Err() != nil {
					continue
				}
				if err == nats.ErrConnectionClosed || err == nats.ErrBadSubscription {
					return
				}
				s.log.Error().Err(err).Msg("JetStream fetch failed")
				select {
				case <-time.After(s.cfg.FetchWait):
					continue
				case <-ctx.Done():
					return
				}
			}

			for _, msg := range msgs {
				order := s.decodeMessage(msg)
				if order == nil {
					continue
				}
				select {
				case out <- order:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// decodeMessage turns a JetStream message into an order and tracks it for
// acknowledgment. Malformed messages are terminated so they are not
// redelivered forever.
func (s *NATSSource) decodeMessage(msg *nats.Msg) *model.Order {
	order, err := DecodeOrder(msg.Data)
	if err != nil {
		s.log.Warn().Err(err).Msg("Undecodable order message, terminating delivery")
		if termErr := msg.Term(); termErr != nil {
			s.log.Warn().Err(termErr).Msg("Failed to terminate message")
		}
		return nil
	}

	s.mu.Lock()
	s.pending[order.ID()] = natsEntry{msg: msg, order: order}
	s.mu.Unlock()
	return order
}

// Acknowledge acks the underlying JetStream message.
func (s *NATSSource) Acknowledge(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	entry, ok := s.pending[orderID]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := entry.msg.Ack(); err != nil {
		return false, fmt.Errorf("failed to ack order %s: %w", orderID, err)
	}

	s.mu.Lock()
	delete(s.pending, orderID)
	s.mu.Unlock()
	return true, nil
}
