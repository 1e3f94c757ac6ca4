package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/fix"
	"github.com/quantfabric/omsflow/internal/model"
)

// Session is the request/response transport under the Phoenix adapter. Send
// writes one outbound FIX message and blocks for the venue's reply.
type Session interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Send(ctx context.Context, msg []byte) ([]byte, error)
}

// RefDataProvider supplies per-symbol FIX reference-data fields (numeric
// tag -> value) attached to NewOrderSingle messages.
type RefDataProvider interface {
	FIXFields(symbol string) map[string]string
}

// PhoenixConfig identifies the FIX session with the Phoenix venue.
type PhoenixConfig struct {
	SenderCompID string `mapstructure:"sender_comp_id"`
	TargetCompID string `mapstructure:"target_comp_id"`
	Account      string `mapstructure:"account"`
}

// PhoenixClient speaks the Phoenix FIX 4.4 dialect. Phoenix reports order
// state as a symbolic status word in OrdStatus(39); those are translated to
// canonical statuses through a status table fixed at construction time.
type PhoenixClient struct {
	cfg      PhoenixConfig
	session  Session
	gen      *fix.Generator
	statuses model.StatusTable
	refdata  RefDataProvider
	log      zerolog.Logger
}

// NewPhoenixClient creates a Phoenix adapter over the given session. The
// refdata provider may be nil when no symbol enrichment is configured.
func NewPhoenixClient(cfg PhoenixConfig, session Session, refdata RefDataProvider) *PhoenixClient {
	return &PhoenixClient{
		cfg:      cfg,
		session:  session,
		gen:      fix.NewGenerator(cfg.SenderCompID, cfg.TargetCompID),
		statuses: model.PhoenixStatusTable,
		refdata:  refdata,
		log:      log.With().Str("component", "phoenix_client").Logger(),
	}
}

// Connect establishes the FIX session.
func (c *PhoenixClient) Connect(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect Phoenix session: %w", err)
	}
	c.log.Info().Str("sender", c.cfg.SenderCompID).Str("target", c.cfg.TargetCompID).Msg("Connected to Phoenix")
	return nil
}

// Disconnect tears down the FIX session.
func (c *PhoenixClient) Disconnect(ctx context.Context) error {
	if err := c.session.Close(ctx); err != nil {
		return fmt.Errorf("failed to close Phoenix session: %w", err)
	}
	c.log.Info().Msg("Disconnected from Phoenix")
	return nil
}

// SubmitOrder sends a NewOrderSingle and interprets the execution report.
func (c *PhoenixClient) SubmitOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	var refdata map[string]string
	if c.refdata != nil {
		refdata = c.refdata.FIXFields(order.Symbol)
	}

	msg, err := c.gen.NewOrderSingle(order, c.cfg.Account, refdata)
	if err != nil {
		return nil, fmt.Errorf("failed to build NewOrderSingle for %s: %w", order.ID(), err)
	}
	return c.roundTrip(ctx, order, msg)
}

// CancelOrder sends an OrderCancelRequest for the working order.
func (c *PhoenixClient) CancelOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	msg := c.gen.CancelRequest(order, order.ClientOrderID, c.cfg.Account)
	return c.roundTrip(ctx, order, msg)
}

// ReplaceOrder sends an OrderCancelReplaceRequest. Nil overrides keep the
// original values.
func (c *PhoenixClient) ReplaceOrder(ctx context.Context, order *model.Order, newPrice, newQty *float64) (*model.ExecutionResult, error) {
	msg := c.gen.CancelReplace(order, order.ClientOrderID, c.cfg.Account, newPrice, newQty)
	return c.roundTrip(ctx, order, msg)
}

// GetOrderStatus sends an OrderStatusRequest for the working order.
func (c *PhoenixClient) GetOrderStatus(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	msg := c.gen.OrderStatusRequest(order.ClientOrderID, c.cfg.Account)
	return c.roundTrip(ctx, order, msg)
}

func (c *PhoenixClient) roundTrip(ctx context.Context, order *model.Order, msg *fix.Message) (*model.ExecutionResult, error) {
	reply, err := c.session.Send(ctx, c.gen.Encode(msg))
	if err != nil {
		return nil, fmt.Errorf("phoenix session send failed for %s: %w", order.ID(), err)
	}

	report, err := fix.Parse(reply)
	if err != nil {
		return nil, fmt.Errorf("unparseable Phoenix reply for %s: %w", order.ID(), err)
	}
	return c.toResult(order, report), nil
}

// toResult maps an execution report onto an ExecutionResult. An unknown
// venue status word yields Status=ERROR with Success=false rather than a
// transport error, so the caller still sees the venue identifiers.
func (c *PhoenixClient) toResult(order *model.Order, report *fix.Message) *model.ExecutionResult {
	result := &model.ExecutionResult{
		OrderID:      order.ID(),
		VenueOrderID: report.Get(fix.TagOrderID),
		ExecutionID:  report.Get(fix.TagExecID),
		Timestamp:    time.Now().UTC(),
	}

	venueStatus := report.Get(fix.TagOrdStatus)
	status, err := c.statuses.Canonical(venueStatus)
	result.Status = status
	if err != nil {
		result.ErrorMessage = err.Error()
		c.log.Warn().Str("order_id", order.ID()).Str("venue_status", venueStatus).Msg("Unknown Phoenix order status")
		return result
	}

	switch status {
	case model.OrderStatusRejected, model.OrderStatusError:
		result.ErrorMessage = report.Get(fix.TagText)
		if result.ErrorMessage == "" {
			result.ErrorMessage = fmt.Sprintf("venue reported status %s", venueStatus)
		}
	default:
		result.Success = true
	}
	return result
}
