package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/model"
)

// RedisSourceConfig configures the Redis Streams order source.
type RedisSourceConfig struct {
	Addr      string
	Password  string
	DB        int
	StreamKey string
	Group     string
	Consumer  string
	BlockTime time.Duration // XREADGROUP block duration
	BatchSize int
}

// DefaultRedisSourceConfig returns the default stream configuration.
func DefaultRedisSourceConfig(addr, streamKey string) RedisSourceConfig {
	return RedisSourceConfig{
		Addr:      addr,
		StreamKey: streamKey,
		Group:     "omsflow",
		Consumer:  "oms-1",
		BlockTime: time.Second,
		BatchSize: 32,
	}
}

// payloadField is the stream entry field carrying the JSON order.
const payloadField = "order"

// RedisSource consumes candidate orders from a Redis stream through a
// consumer group. Acknowledge maps to XACK; unacknowledged entries remain
// in the pending entries list and are re-read on reconnect.
type RedisSource struct {
	cfg    RedisSourceConfig
	client *redis.Client
	log    zerolog.Logger

	mu      sync.Mutex
	pending map[string]pendingEntry // order ID -> stream entry
}

type pendingEntry struct {
	messageID string
	order     *model.Order
}

// NewRedisSource creates a Redis stream source.
func NewRedisSource(cfg RedisSourceConfig) *RedisSource {
	if cfg.Group == "" {
		cfg.Group = "omsflow"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "oms-1"
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &RedisSource{
		cfg:     cfg,
		log:     log.With().Str("component", "redis_source").Str("stream", cfg.StreamKey).Logger(),
		pending: make(map[string]pendingEntry),
	}
}

// Connect creates the client and ensures the consumer group exists.
func (s *RedisSource) Connect(ctx context.Context) error {
	s.client = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Addr,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	// Create the consumer group at the start of the stream; BUSYGROUP
	// means it already exists.
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.StreamKey, s.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.log.Info().Str("group", s.cfg.Group).Msg("Connected to Redis order source")
	return nil
}

// Disconnect closes the client.
func (s *RedisSource) Disconnect(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	s.client = nil
	s.log.Info().Msg("Disconnected from Redis order source")
	return nil
}

// GetOrder returns an in-flight (delivered, unacknowledged) order, or nil.
func (s *RedisSource) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[orderID]; ok {
		return entry.order, nil
	}
	return nil, nil
}

// Stream reads entries from the consumer group: first this consumer's
// pending entries from a previous run, then new arrivals.
func (s *RedisSource) Stream(ctx context.Context) (<-chan *model.Order, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis source is not connected")
	}

	out := make(chan *model.Order)

	go func() {
		defer close(out)

		// "0" replays our pending entries list, then ">" blocks on new
		// entries.
		cursor := "0"
		for {
			streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    s.cfg.Group,
				Consumer: s.cfg.Consumer,
				Streams:  []string{s.cfg.StreamKey, cursor},
				Count:    int64(s.cfg.BatchSize),
				Block:    s.cfg.BlockTime,
			}).Result()

			if ctx.Err() != nil {
				return
			}
			if err == redis.Nil {
				cursor = ">"
				continue
			}
			if err != nil {
				s.log.Error().Err(err).Msg("XREADGROUP failed")
				select {
				case <-time.After(s.cfg.BlockTime):
					continue
				case <-ctx.Done():
					return
				}
			}

			delivered := 0
			for _, stream := range streams {
				for _, msg := range stream.Messages {
					order := s.decodeMessage(msg)
					if order == nil {
						continue
					}
					delivered++
					select {
					case out <- order:
					case <-ctx.Done():
						return
					}
				}
			}

			// An empty replay means the backlog is drained.
			if cursor == "0" && delivered == 0 {
				cursor = ">"
			}
		}
	}()

	return out, nil
}

// decodeMessage turns a stream entry into an order and tracks it for
// acknowledgment. Malformed entries are acked immediately so they do not
// clog the pending list.
func (s *RedisSource) decodeMessage(msg redis.XMessage) *model.Order {
	payload, ok := msg.Values[payloadField].(string)
	if !ok {
		s.log.Warn().Str("message_id", msg.ID).Msg("Stream entry missing order payload, discarding")
		s.client.XAck(context.Background(), s.cfg.StreamKey, s.cfg.Group, msg.ID)
		return nil
	}

	order, err := DecodeOrder([]byte(payload))
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Undecodable stream entry, discarding")
		s.client.XAck(context.Background(), s.cfg.StreamKey, s.cfg.Group, msg.ID)
		return nil
	}

	s.mu.Lock()
	s.pending[order.ID()] = pendingEntry{messageID: msg.ID, order: order}
	s.mu.Unlock()
	return order
}

// Acknowledge XACKs the underlying stream entry.
func (s *RedisSource) Acknowledge(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	entry, ok := s.pending[orderID]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := s.client.XAck(ctx, s.cfg.StreamKey, s.cfg.Group, entry.messageID).Err(); err != nil {
		return false, fmt.Errorf("failed to ack order %s: %w", orderID, err)
	}

	s.mu.Lock()
	delete(s.pending, orderID)
	s.mu.Unlock()
	return true, nil
}
