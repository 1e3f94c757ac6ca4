// Package lifecycle tracks working orders and polls the venue for their
// state until they reach a terminal status.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/execution"
	"github.com/quantfabric/omsflow/internal/metrics"
	"github.com/quantfabric/omsflow/internal/model"
)

// Config tunes the per-order monitors.
type Config struct {
	// PollInterval is used for plain market and limit orders.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// AlgoPollInterval is used for TWAP and VWAP orders, which work over
	// much longer horizons.
	AlgoPollInterval time.Duration `mapstructure:"algo_poll_interval"`
	// MaxRetries bounds consecutive failed status checks before the
	// monitor gives up on polling. The order stays active.
	MaxRetries int `mapstructure:"max_retries"`
}

// DefaultConfig returns the standard monitoring cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval:     5 * time.Second,
		AlgoPollInterval: 300 * time.Second,
		MaxRetries:       3,
	}
}

// Manager owns the active-order map and one monitor goroutine per working
// order. All methods are safe for concurrent use.
type Manager struct {
	cfg     Config
	client  execution.ExecutionClient
	metrics metrics.Recorder
	log     zerolog.Logger

	mu       sync.Mutex
	active   map[string]*model.Order
	monitors map[string]context.CancelFunc
	wg       sync.WaitGroup

	giveUp func(order *model.Order, err error)
}

// NewManager creates a lifecycle manager polling through the given venue
// client. A nil recorder disables metrics.
func NewManager(client execution.ExecutionClient, rec metrics.Recorder, cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.AlgoPollInterval <= 0 {
		cfg.AlgoPollInterval = 300 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &Manager{
		cfg:      cfg,
		client:   client,
		metrics:  rec,
		log:      log.With().Str("component", "lifecycle").Logger(),
		active:   make(map[string]*model.Order),
		monitors: make(map[string]context.CancelFunc),
	}
}

// OnMonitorFailure registers a callback invoked when a monitor exhausts its
// retries and gives up on an order. Set it before StartMonitoring.
func (m *Manager) OnMonitorFailure(fn func(order *model.Order, err error)) {
	m.giveUp = fn
}

// AddOrder registers an order in the active map.
func (m *Manager) AddOrder(order *model.Order) {
	m.mu.Lock()
	m.active[order.ID()] = order
	m.mu.Unlock()
	m.log.Debug().Str("order_id", order.ID()).Str("status", string(order.Status)).Msg("Order added to active set")
}

// RemoveOrder stops the order's monitor and drops it from the active map.
func (m *Manager) RemoveOrder(orderID string) {
	m.StopMonitoring(orderID)
	m.mu.Lock()
	delete(m.active, orderID)
	m.mu.Unlock()
}

// GetOrder returns a copy of the active order with the given ID, or nil.
// Copies never share mutable state with the tracked order, so callers can
// read them without holding the manager's lock.
func (m *Manager) GetOrder(orderID string) *model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.active[orderID]
	if !ok {
		return nil
	}
	return order.Clone()
}

// ActiveOrders returns a snapshot of the active set as copies.
func (m *Manager) ActiveOrders() []*model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]*model.Order, 0, len(m.active))
	for _, order := range m.active {
		orders = append(orders, order.Clone())
	}
	return orders
}

// UpdateOrderStatus moves an active order forward through its lifecycle,
// recording the execution identifier when the venue reported one. Untracked
// orders and same-status updates are no-ops; backward transitions are
// rejected. The read-check-write runs under the manager's lock so
// concurrent updates to the same order serialize.
func (m *Manager) UpdateOrderStatus(orderID string, status model.OrderStatus, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.active[orderID]
	if !ok {
		m.log.Debug().Str("order_id", orderID).Str("status", string(status)).Msg("Ignoring status update for untracked order")
		return nil
	}

	if executionID != "" {
		if order.Metadata == nil {
			order.Metadata = make(map[string]interface{})
		}
		order.Metadata["execution_id"] = executionID
	}

	if order.Status == status {
		return nil
	}
	if !order.Status.CanTransition(status) {
		return fmt.Errorf("invalid status transition %s -> %s for order %s", order.Status, status, orderID)
	}

	previous := order.Status
	order.Status = status
	order.UpdatedAt = time.Now().UTC()

	m.metrics.RecordStatusTransition(status)
	m.log.Info().
		Str("order_id", orderID).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("Order status updated")
	return nil
}

// ApplyReplace updates the tracked order's price and quantity after the
// venue accepts a cancel/replace. Nil overrides keep the original values.
func (m *Manager) ApplyReplace(orderID string, newPrice, newQty *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.active[orderID]
	if !ok {
		return fmt.Errorf("order %s is not active", orderID)
	}
	if newPrice != nil {
		price := *newPrice
		order.Price = &price
	}
	if newQty != nil {
		order.Quantity = *newQty
	}
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// StartMonitoring launches the polling goroutine for an active order. A
// second call for the same order is a no-op while the first monitor runs.
func (m *Manager) StartMonitoring(ctx context.Context, order *model.Order) {
	m.mu.Lock()
	if _, running := m.monitors[order.ID()]; running {
		m.mu.Unlock()
		return
	}
	monitorCtx, cancel := context.WithCancel(ctx)
	m.monitors[order.ID()] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.monitor(monitorCtx, order)
}

// ResumeMonitoring re-arms a monitor for every active order still working
// at the venue. Called on startup so orders retained across a restart pick
// up polling again. Returns how many monitors were armed.
func (m *Manager) ResumeMonitoring(ctx context.Context) int {
	m.mu.Lock()
	resume := make([]*model.Order, 0, len(m.active))
	for _, order := range m.active {
		if order.Status == model.OrderStatusSubmitted || order.Status == model.OrderStatusPartiallyFilled {
			resume = append(resume, order)
		}
	}
	m.mu.Unlock()

	for _, order := range resume {
		m.StartMonitoring(ctx, order)
	}
	if len(resume) > 0 {
		m.log.Info().Int("orders", len(resume)).Msg("Resumed monitoring for active orders")
	}
	return len(resume)
}

// StopMonitoring cancels the order's monitor goroutine if one is running.
func (m *Manager) StopMonitoring(orderID string) {
	m.mu.Lock()
	cancel, ok := m.monitors[orderID]
	if ok {
		delete(m.monitors, orderID)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Stop cancels every monitor and waits for them to exit. Active orders are
// retained so a restart can resume polling.
func (m *Manager) Stop() {
	m.mu.Lock()
	for id, cancel := range m.monitors {
		cancel()
		delete(m.monitors, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) pollInterval(orderType model.OrderType) time.Duration {
	if orderType.IsAlgo() {
		return m.cfg.AlgoPollInterval
	}
	return m.cfg.PollInterval
}

// monitor polls the venue until the order reaches a terminal status, the
// context is cancelled, or MaxRetries consecutive status checks fail. On
// retry exhaustion the monitor exits but the order stays in the active map
// for operator intervention.
func (m *Manager) monitor(ctx context.Context, order *model.Order) {
	defer m.wg.Done()
	defer m.clearMonitor(order.ID())

	interval := m.pollInterval(order.Type)
	logger := m.log.With().Str("order_id", order.ID()).Str("order_type", string(order.Type)).Logger()
	logger.Info().Dur("interval", interval).Msg("Monitoring order")

	failures := 0
	lastCheck := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		result, err := m.client.GetOrderStatus(ctx, order)
		if err == nil && !result.Success {
			err = fmt.Errorf("status check failed: %s", result.ErrorMessage)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			m.metrics.RecordError(metrics.ErrorStatusCheck)
			logger.Warn().Err(err).Int("attempt", failures).Int("max_retries", m.cfg.MaxRetries).Msg("Order status check failed")
			if failures >= m.cfg.MaxRetries {
				m.metrics.RecordError(metrics.ErrorMonitor)
				logger.Error().Msg("Giving up on status polling, order remains active")
				if m.giveUp != nil {
					if snapshot := m.GetOrder(order.ID()); snapshot != nil {
						m.giveUp(snapshot, err)
					}
				}
				return
			}
			continue
		}
		failures = 0

		status := result.Status
		if result.ExecutionID != "" {
			status = model.OrderStatusFilled
		}
		m.metrics.RecordProcessingTime(order.Type, status, time.Since(lastCheck))
		lastCheck = time.Now()

		if err := m.UpdateOrderStatus(order.ID(), status, result.ExecutionID); err != nil {
			logger.Warn().Err(err).Msg("Ignoring venue status update")
			continue
		}

		if status.IsTerminal() {
			logger.Info().Str("status", string(status)).Msg("Order reached terminal status")
			m.mu.Lock()
			delete(m.active, order.ID())
			m.mu.Unlock()
			return
		}
	}
}

func (m *Manager) clearMonitor(orderID string) {
	m.mu.Lock()
	if cancel, ok := m.monitors[orderID]; ok {
		delete(m.monitors, orderID)
		cancel()
	}
	m.mu.Unlock()
}
