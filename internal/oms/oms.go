// Package oms wires the order source, validation pipeline, venue client and
// lifecycle manager into the order orchestration service.
package oms

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/omsflow/internal/deadletter"
	"github.com/quantfabric/omsflow/internal/execution"
	"github.com/quantfabric/omsflow/internal/lifecycle"
	"github.com/quantfabric/omsflow/internal/metrics"
	"github.com/quantfabric/omsflow/internal/model"
	"github.com/quantfabric/omsflow/internal/source"
	"github.com/quantfabric/omsflow/internal/validation"
)

// State is the orchestrator run state.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
)

// ValidationContextFunc supplies per-order market context (market price,
// current position) to the validation pipeline. A nil func means rules run
// without context and report missing inputs themselves.
type ValidationContextFunc func(ctx context.Context, order *model.Order) validation.Context

// Options carries the orchestrator's collaborators. Source, Client and
// Engine are required; the rest default to no-ops.
type Options struct {
	Source     source.OrderSource
	Client     execution.ExecutionClient
	Engine     *validation.Engine
	Lifecycle  *lifecycle.Manager
	DeadLetter deadletter.Sink
	Metrics    metrics.Recorder
	ContextFn  ValidationContextFunc
}

// Orchestrator runs the ingestion loop and serves imperative submit, cancel
// and replace requests.
type Orchestrator struct {
	src        source.OrderSource
	client     execution.ExecutionClient
	engine     *validation.Engine
	lifecycle  *lifecycle.Manager
	deadletter deadletter.Sink
	metrics    metrics.Recorder
	ctxFn      ValidationContextFunc
	log        zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	ingest sync.WaitGroup

	monMu   sync.Mutex
	monCtx  context.Context
	monStop context.CancelFunc
}

// New creates a stopped orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Source == nil || opts.Client == nil || opts.Engine == nil {
		return nil, fmt.Errorf("source, client and validation engine are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NopRecorder{}
	}
	if opts.DeadLetter == nil {
		opts.DeadLetter = deadletter.NewLogSink()
	}
	if opts.Lifecycle == nil {
		opts.Lifecycle = lifecycle.NewManager(opts.Client, opts.Metrics, lifecycle.DefaultConfig())
	}
	o := &Orchestrator{
		src:        opts.Source,
		client:     opts.Client,
		engine:     opts.Engine,
		lifecycle:  opts.Lifecycle,
		deadletter: opts.DeadLetter,
		metrics:    opts.Metrics,
		ctxFn:      opts.ContextFn,
		log:        log.With().Str("component", "oms").Logger(),
		state:      StateStopped,
	}

	// surface stuck orders on the dead-letter stream so operators see them
	o.lifecycle.OnMonitorFailure(func(order *model.Order, err error) {
		reason := fmt.Sprintf("status monitoring failed: %v", err)
		if pubErr := o.deadletter.Publish(context.Background(), order, []string{reason}); pubErr != nil {
			o.log.Error().Err(pubErr).Str("order_id", order.ID()).Msg("Failed to dead-letter monitor failure")
		}
	})
	return o, nil
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ActiveOrders returns the orders currently tracked by the lifecycle
// manager.
func (o *Orchestrator) ActiveOrders() []*model.Order {
	return o.lifecycle.ActiveOrders()
}

// Start connects the source and venue and launches the ingestion loop.
// Starting a running orchestrator is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		o.log.Warn().Msg("Orchestrator already running")
		return nil
	}

	if err := o.src.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect order source: %w", err)
	}
	if err := o.client.Connect(ctx); err != nil {
		if dErr := o.src.Disconnect(ctx); dErr != nil {
			o.log.Warn().Err(dErr).Msg("Failed to disconnect source after startup error")
		}
		return fmt.Errorf("failed to connect execution client: %w", err)
	}

	ingestCtx, ingestCancel := context.WithCancel(context.Background())
	monCtx, monStop := context.WithCancel(context.Background())
	o.cancel = ingestCancel
	o.monMu.Lock()
	o.monCtx = monCtx
	o.monStop = monStop
	o.monMu.Unlock()

	// orders retained across a restart resume polling before new ones arrive
	o.lifecycle.ResumeMonitoring(monCtx)

	orders, err := o.src.Stream(ingestCtx)
	if err != nil {
		ingestCancel()
		monStop()
		if dErr := o.src.Disconnect(ctx); dErr != nil {
			o.log.Warn().Err(dErr).Msg("Failed to disconnect source after startup error")
		}
		if dErr := o.client.Disconnect(ctx); dErr != nil {
			o.log.Warn().Err(dErr).Msg("Failed to disconnect execution client after startup error")
		}
		return fmt.Errorf("failed to open order stream: %w", err)
	}

	o.ingest.Add(1)
	go o.run(ingestCtx, orders)

	o.state = StateRunning
	o.log.Info().Msg("Orchestrator started")
	return nil
}

// Stop shuts down in order: ingestion first so no new orders arrive, then
// the per-order monitors, then the source and venue connections. Stopping a
// stopped orchestrator is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		o.log.Warn().Msg("Orchestrator already stopped")
		return nil
	}

	o.cancel()
	o.ingest.Wait()

	o.monMu.Lock()
	monStop := o.monStop
	o.monMu.Unlock()
	if monStop != nil {
		monStop()
	}
	o.lifecycle.Stop()

	if err := o.src.Disconnect(ctx); err != nil {
		o.log.Warn().Err(err).Msg("Failed to disconnect order source")
	}
	if err := o.client.Disconnect(ctx); err != nil {
		o.log.Warn().Err(err).Msg("Failed to disconnect execution client")
	}

	o.state = StateStopped
	o.log.Info().Msg("Orchestrator stopped")
	return nil
}

// run drains the source stream. A failure on one order never stops the
// loop.
func (o *Orchestrator) run(ctx context.Context, orders <-chan *model.Order) {
	defer o.ingest.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case order, ok := <-orders:
			if !ok {
				o.log.Info().Msg("Order stream closed")
				return
			}
			o.processIncoming(ctx, order)
		}
	}
}

// processIncoming runs one sourced order through validation and submission.
// Invalid orders are dead-lettered and acknowledged so they are not
// redelivered. Submission failures are not acknowledged; the source
// redelivers them later.
func (o *Orchestrator) processIncoming(ctx context.Context, order *model.Order) {
	logger := o.log.With().Str("order_id", order.ID()).Str("client_order_id", order.ClientOrderID).Logger()
	logger.Info().Str("symbol", order.Symbol).Str("side", string(order.Side)).Msg("Processing incoming order")

	result := o.validate(ctx, order)
	if !result.Valid {
		o.metrics.RecordError(metrics.ErrorValidation)
		if err := o.deadletter.Publish(ctx, order, result.Errors); err != nil {
			logger.Error().Err(err).Msg("Failed to dead-letter invalid order")
		}
		o.acknowledge(ctx, order, logger)
		return
	}

	if _, err := o.submitValidated(ctx, order); err != nil {
		o.metrics.RecordError(metrics.ErrorSubmission)
		logger.Error().Err(err).Msg("Order submission failed, leaving for redelivery")
		return
	}
	o.acknowledge(ctx, order, logger)
}

func (o *Orchestrator) acknowledge(ctx context.Context, order *model.Order, logger zerolog.Logger) {
	acked, err := o.src.Acknowledge(ctx, order.ID())
	if err != nil {
		o.metrics.RecordError(metrics.ErrorSourceAck)
		logger.Error().Err(err).Msg("Failed to acknowledge order at source")
		return
	}
	if !acked {
		logger.Warn().Msg("Source did not recognize order acknowledgment")
	}
}

// validate runs the pipeline, records warnings and the VALIDATED transition
// for passing orders.
func (o *Orchestrator) validate(ctx context.Context, order *model.Order) model.ValidationResult {
	var vctx validation.Context
	if o.ctxFn != nil {
		vctx = o.ctxFn(ctx, order)
	}

	result := o.engine.ValidateOrder(order, vctx)
	for _, warning := range result.Warnings {
		o.log.Warn().Str("order_id", order.ID()).Str("warning", warning).Msg("Validation warning")
	}
	if result.Valid && order.Status == model.OrderStatusPending {
		order.Status = model.OrderStatusValidated
		order.UpdatedAt = time.Now().UTC()
		o.metrics.RecordStatusTransition(model.OrderStatusValidated)
	}
	return result
}

// submitValidated sends the order to the venue and registers it for
// monitoring. The returned error covers transport failures and venue
// rejections alike.
func (o *Orchestrator) submitValidated(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	result, err := o.client.SubmitOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, fmt.Errorf("venue rejected order %s: %s", order.ID(), result.ErrorMessage)
	}

	order.Status = model.OrderStatusSubmitted
	order.UpdatedAt = time.Now().UTC()
	if result.VenueOrderID != "" {
		if order.Metadata == nil {
			order.Metadata = make(map[string]interface{})
		}
		order.Metadata["venue_order_id"] = result.VenueOrderID
	}
	o.metrics.RecordStatusTransition(model.OrderStatusSubmitted)

	o.lifecycle.AddOrder(order)
	o.lifecycle.StartMonitoring(o.monitorContext(), order)
	o.log.Info().Str("order_id", order.ID()).Str("venue_order_id", result.VenueOrderID).Msg("Order submitted")
	return result, nil
}

func (o *Orchestrator) monitorContext() context.Context {
	o.monMu.Lock()
	defer o.monMu.Unlock()
	if o.monCtx != nil {
		return o.monCtx
	}
	return context.Background()
}

// SubmitOrder validates and submits an order outside the ingestion loop.
// Validation failures come back as a failed result with the joined rule
// errors; the order is not sent to the venue.
func (o *Orchestrator) SubmitOrder(ctx context.Context, order *model.Order) (*model.ExecutionResult, error) {
	result := o.validate(ctx, order)
	if !result.Valid {
		o.metrics.RecordError(metrics.ErrorValidation)
		return model.FailedResult(order.ID(), "validation failed: "+strings.Join(result.Errors, "; ")), nil
	}

	execResult, err := o.submitValidated(ctx, order)
	if err != nil {
		o.metrics.RecordError(metrics.ErrorSubmission)
		if execResult != nil {
			return execResult, nil
		}
		return nil, err
	}
	return execResult, nil
}

// CancelOrder cancels an active order at the venue.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID string) (*model.ExecutionResult, error) {
	order := o.lifecycle.GetOrder(orderID)
	if order == nil {
		o.metrics.RecordError(metrics.ErrorNotFound)
		return model.FailedResult(orderID, fmt.Sprintf("order %s not found", orderID)), nil
	}

	result, err := o.client.CancelOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	if !result.Success {
		return result, nil
	}

	if err := o.lifecycle.UpdateOrderStatus(orderID, model.OrderStatusCancelled, ""); err != nil {
		o.log.Warn().Err(err).Str("order_id", orderID).Msg("Cancel accepted but status update rejected")
	}
	o.lifecycle.RemoveOrder(orderID)
	o.log.Info().Str("order_id", orderID).Msg("Order cancelled")
	return result, nil
}

// ReplaceOrder modifies the price and/or quantity of an active order. Nil
// overrides keep the original values. The tracked order is updated only
// after the venue accepts the replace.
func (o *Orchestrator) ReplaceOrder(ctx context.Context, orderID string, newPrice, newQty *float64) (*model.ExecutionResult, error) {
	order := o.lifecycle.GetOrder(orderID)
	if order == nil {
		o.metrics.RecordError(metrics.ErrorNotFound)
		return model.FailedResult(orderID, fmt.Sprintf("order %s not found", orderID)), nil
	}

	result, err := o.client.ReplaceOrder(ctx, order, newPrice, newQty)
	if err != nil {
		return nil, fmt.Errorf("failed to replace order %s: %w", orderID, err)
	}
	if !result.Success {
		return result, nil
	}

	if err := o.lifecycle.ApplyReplace(orderID, newPrice, newQty); err != nil {
		o.log.Warn().Err(err).Str("order_id", orderID).Msg("Replace accepted but order no longer tracked")
	}
	o.log.Info().Str("order_id", orderID).Msg("Order replaced")
	return result, nil
}

// GetOrderStatus queries the venue for an active order's current state.
func (o *Orchestrator) GetOrderStatus(ctx context.Context, orderID string) (*model.ExecutionResult, error) {
	order := o.lifecycle.GetOrder(orderID)
	if order == nil {
		o.metrics.RecordError(metrics.ErrorNotFound)
		return model.FailedResult(orderID, fmt.Sprintf("order %s not found", orderID)), nil
	}
	result, err := o.client.GetOrderStatus(ctx, order)
	if err != nil {
		o.metrics.RecordError(metrics.ErrorStatusCheck)
		return nil, fmt.Errorf("failed to query status for order %s: %w", orderID, err)
	}
	return result, nil
}
