package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the SQL source needs. pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// SQLSourceConfig configures the SQL-polling order source.
type SQLSourceConfig struct {
	Table          string        // pending-orders table name
	PollInterval   time.Duration // how often to poll for new rows
	BatchSize      int           // max rows per poll
	RedeliverAfter time.Duration // redeliver unacknowledged orders after this long
}

// DefaultSQLSourceConfig returns the default polling configuration.
func DefaultSQLSourceConfig() SQLSourceConfig {
	return SQLSourceConfig{
		Table:          "pending_orders",
		PollInterval:   2 * time.Second,
		BatchSize:      100,
		RedeliverAfter: time.Minute,
	}
}

// SQLSource polls a relational pending-orders table for candidate orders.
// Acknowledging an order marks its row so it is never delivered again;
// unacknowledged orders are redelivered after the configured window.
type SQLSource struct {
	pool PgxPool
	cfg  SQLSourceConfig
	log  zerolog.Logger

	mu       sync.Mutex
	inflight map[string]time.Time // order ID -> delivery time
}

// NewSQLSource creates a SQL-polling source over an existing pool.
func NewSQLSource(pool PgxPool, cfg SQLSourceConfig) *SQLSource {
	if cfg.Table == "" {
		cfg.Table = "pending_orders"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RedeliverAfter <= 0 {
		cfg.RedeliverAfter = time.Minute
	}
	return &SQLSource{
		pool:     pool,
		cfg:      cfg,
		log:      log.With().Str("component", "sql_source").Logger(),
		inflight: make(map[string]time.Time),
	}
}

// Connect verifies database connectivity.
func (s *SQLSource) Connect(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping order database: %w", err)
	}
	s.log.Info().Str("table", s.cfg.Table).Msg("Connected to SQL order source")
	return nil
}

// Disconnect closes the pool.
func (s *SQLSource) Disconnect(ctx context.Context) error {
	s.pool.Close()
	s.log.Info().Msg("Disconnected from SQL order source")
	return nil
}

const orderColumns = "order_id, client_order_id, symbol, security_type, side, quantity, order_type, time_in_force, price, created_at"

// GetOrder retrieves a single pending order by ID.
func (s *SQLSource) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE order_id = $1", orderColumns, s.cfg.Table)
	order, err := scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return order, nil
}

// Stream polls the pending-orders table and delivers unacknowledged rows.
func (s *SQLSource) Stream(ctx context.Context) (<-chan *model.Order, error) {
	out := make(chan *model.Order)

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()

		for {
			orders, err := s.poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Error().Err(err).Msg("Order poll failed")
			}

			for _, order := range orders {
				select {
				case out <- order:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// poll reads a batch of unacknowledged rows, skipping orders that are
// already in flight and not yet due for redelivery.
func (s *SQLSource) poll(ctx context.Context) ([]*model.Order, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE acknowledged = false ORDER BY created_at LIMIT $1",
		orderColumns, s.cfg.Table,
	)
	rows, err := s.pool.Query(ctx, query, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending orders: %w", err)
	}
	defer rows.Close()

	var fetched []*model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending order: %w", err)
		}
		fetched = append(fetched, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending orders: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	deliverable := fetched[:0]
	for _, order := range fetched {
		if deliveredAt, ok := s.inflight[order.ID()]; ok && now.Sub(deliveredAt) < s.cfg.RedeliverAfter {
			continue
		}
		s.inflight[order.ID()] = now
		deliverable = append(deliverable, order)
	}
	return deliverable, nil
}

// Acknowledge marks the row as processed.
func (s *SQLSource) Acknowledge(ctx context.Context, orderID string) (bool, error) {
	query := fmt.Sprintf("UPDATE %s SET acknowledged = true WHERE order_id = $1", s.cfg.Table)
	tag, err := s.pool.Exec(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge order %s: %w", orderID, err)
	}

	s.mu.Lock()
	delete(s.inflight, orderID)
	s.mu.Unlock()

	return tag.RowsAffected() > 0, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		order     model.Order
		orderID   string
		createdAt time.Time
	)
	err := row.Scan(
		&orderID,
		&order.ClientOrderID,
		&order.Symbol,
		&order.SecurityType,
		&order.Side,
		&order.Quantity,
		&order.Type,
		&order.TimeInForce,
		&order.Price,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	order.OrderID = parsed
	order.Status = model.OrderStatusPending
	order.CreatedAt = createdAt
	order.UpdatedAt = createdAt
	order.Metadata = make(map[string]interface{})
	return &order, nil
}
