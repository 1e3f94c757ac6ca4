package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/quantfabric/omsflow/internal/model"
)

// BreakerConfig tunes the circuit breaker and rate limiter in front of a
// venue client.
type BreakerConfig struct {
	Name                string        `mapstructure:"name"`
	MaxRequests         uint32        `mapstructure:"max_requests"`         // probes allowed while half-open
	Interval            time.Duration `mapstructure:"interval"`             // closed-state counter reset
	Timeout             time.Duration `mapstructure:"timeout"`              // open -> half-open delay
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"` // trip threshold
	RequestsPerSecond   float64       `mapstructure:"requests_per_second"`
	Burst               int           `mapstructure:"burst"`
}

// DefaultBreakerConfig returns conservative venue-protection settings.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		RequestsPerSecond:   50,
		Burst:               10,
	}
}

// BreakerClient wraps an ExecutionClient with a circuit breaker and a token
// bucket rate limiter. Transport errors from the inner client count against
// the breaker; business rejections (Success=false results) do not.
type BreakerClient struct {
	inner   ExecutionClient
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewBreakerClient wraps client with the given protection settings.
func NewBreakerClient(client ExecutionClient, cfg BreakerConfig) *BreakerClient {
	logger := log.With().Str("component", "execution_breaker").Str("venue", cfg.Name).Logger()

	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Venue circuit breaker state changed")
		},
	})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	return &BreakerClient{
		inner:   client,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger,
	}
}

// Connect passes through to the wrapped client; session setup is not
// subject to the breaker.
func (b *BreakerClient) Connect(ctx context.Context) error {
	return b.inner.Connect(ctx)
}

func (b *BreakerClient) Disconnect(ctx context.Context) error {
	return b.inner.Disconnect(ctx)
}

func (b *BreakerClient) SubmitOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	return b.do(ctx, func() (*model.ExecutionResult, error) {
		return b.inner.SubmitOrder(ctx, order)
	})
}

func (b *BreakerClient) CancelOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	return b.do(ctx, func() (*model.ExecutionResult, error) {
		return b.inner.CancelOrder(ctx, order)
	})
}

func (b *BreakerClient) ReplaceOrder(ctx context.Context, order *model.Order, newPrice, newQty *float64) (*model.ExecutionResult, error) {
	return b.do(ctx, func() (*model.ExecutionResult, error) {
		return b.inner.ReplaceOrder(ctx, order, newPrice, newQty)
	})
}

func (b *BreakerClient) GetOrderStatus(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	return b.do(ctx, func() (*model.ExecutionResult, error) {
		return b.inner.GetOrderStatus(ctx, order)
	})
}

func (b *BreakerClient) do(ctx context.Context, fn func() (*model.ExecutionResult, error)) (*model.ExecutionResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("venue circuit breaker rejected request: %w", err)
		}
		return nil, err
	}
	return res.(*model.ExecutionResult), nil
}
