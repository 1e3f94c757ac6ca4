package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantfabric/omsflow/internal/api"
	"github.com/quantfabric/omsflow/internal/config"
	"github.com/quantfabric/omsflow/internal/deadletter"
	"github.com/quantfabric/omsflow/internal/execution"
	"github.com/quantfabric/omsflow/internal/lifecycle"
	"github.com/quantfabric/omsflow/internal/metrics"
	"github.com/quantfabric/omsflow/internal/model"
	"github.com/quantfabric/omsflow/internal/oms"
	"github.com/quantfabric/omsflow/internal/refdata"
	"github.com/quantfabric/omsflow/internal/source"
	"github.com/quantfabric/omsflow/internal/validation"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	log.Info().
		Str("environment", cfg.App.Environment).
		Str("source", cfg.Source.Type).
		Str("venue", cfg.Venue.Type).
		Msg("Starting omsflow")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orderSource, cleanup, err := buildSource(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build order source")
	}
	defer cleanup()

	refStore, err := buildRefData(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load reference data")
	}

	client := buildVenue(cfg, refStore)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPromRecorder(registry)

	engine := validation.NewEngine()
	engine.AddRule(&validation.PriceDeviationRule{MaxDeviation: cfg.Validation.MaxPriceDeviation})
	engine.AddRule(&validation.PositionLimitRule{MaxPositionValue: cfg.Validation.MaxPositionValue})

	sink, err := buildDeadLetter(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build dead letter sink")
	}
	defer sink.Close()

	manager := lifecycle.NewManager(client, recorder, lifecycle.Config{
		PollInterval:     cfg.Monitor.PollInterval,
		AlgoPollInterval: cfg.Monitor.AlgoPollInterval,
		MaxRetries:       cfg.Monitor.MaxRetries,
	})

	orch, err := oms.New(oms.Options{
		Source:     orderSource,
		Client:     client,
		Engine:     engine,
		Lifecycle:  manager,
		DeadLetter: sink,
		Metrics:    recorder,
		ContextFn:  metadataContext,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	if err := orch.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start orchestrator")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics.Port, registry, log.Logger)
		g.Go(func() error {
			if err := metricsSrv.Start(); err != nil {
				return err
			}
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if cfg.API.Enabled {
		apiSrv := api.NewServer(api.Config{
			Port:           cfg.API.Port,
			AllowedOrigins: cfg.API.AllowedOrigins,
		}, orch)
		g.Go(func() error {
			errCh := make(chan error, 1)
			apiSrv.Start(errCh)
			select {
			case err := <-errCh:
				return err
			case <-gctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return apiSrv.Shutdown(shutdownCtx)
			}
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error, shutting down")
	} else {
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := orch.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during orchestrator shutdown")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

// metadataContext builds the validation context from the enrichment fields
// upstream systems attach to the order.
func metadataContext(ctx context.Context, order *model.Order) validation.Context {
	vctx := validation.Context{}
	if v, ok := order.Metadata["market_price"]; ok {
		vctx[validation.CtxMarketPrice] = v
	}
	if v, ok := order.Metadata["current_position"]; ok {
		vctx[validation.CtxCurrentPosition] = v
	}
	return vctx
}

func buildSource(ctx context.Context, cfg *config.Config) (source.OrderSource, func(), error) {
	switch cfg.Source.Type {
	case "sql":
		pool, err := pgxpool.New(ctx, cfg.Source.SQL.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		src := source.NewSQLSource(pool, source.SQLSourceConfig{
			Table:          cfg.Source.SQL.Table,
			PollInterval:   cfg.Source.SQL.PollInterval,
			BatchSize:      cfg.Source.SQL.BatchSize,
			RedeliverAfter: cfg.Source.SQL.RedeliverAfter,
		})
		return src, pool.Close, nil
	case "redis":
		src := source.NewRedisSource(source.RedisSourceConfig{
			Addr:      cfg.Source.Redis.Addr,
			Password:  cfg.Source.Redis.Password,
			DB:        cfg.Source.Redis.DB,
			StreamKey: cfg.Source.Redis.Stream,
			Group:     cfg.Source.Redis.Group,
			Consumer:  cfg.Source.Redis.Consumer,
		})
		return src, func() {}, nil
	case "nats":
		srcCfg := source.DefaultNATSSourceConfig(cfg.Source.NATS.URL, cfg.Source.NATS.Subject)
		srcCfg.Durable = cfg.Source.NATS.Durable
		if cfg.Source.NATS.AckWait > 0 {
			srcCfg.AckWait = cfg.Source.NATS.AckWait
		}
		return source.NewNATSSource(srcCfg), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

func buildRefData(cfg *config.Config) (*refdata.Store, error) {
	if cfg.RefData.Path == "" {
		return refdata.Empty(), nil
	}
	store, err := refdata.Load(cfg.RefData.Path)
	if err != nil {
		return nil, err
	}
	log.Info().Int("symbols", store.Symbols()).Str("path", cfg.RefData.Path).Msg("Reference data loaded")
	return store, nil
}

func buildVenue(cfg *config.Config, refStore *refdata.Store) execution.ExecutionClient {
	var client execution.ExecutionClient
	switch cfg.Venue.Type {
	case "phoenix":
		session := execution.NewTCPSession(cfg.Venue.Phoenix.Address, 10*time.Second)
		client = execution.NewPhoenixClient(execution.PhoenixConfig{
			SenderCompID: cfg.Venue.Phoenix.SenderCompID,
			TargetCompID: cfg.Venue.Phoenix.TargetCompID,
			Account:      cfg.Venue.Phoenix.Account,
		}, session, refStore)
	default:
		client = execution.NewMockClient()
	}

	if cfg.Venue.Breaker.Enabled {
		client = execution.NewBreakerClient(client, execution.BreakerConfig{
			Name:                cfg.Venue.Type,
			MaxRequests:         cfg.Venue.Breaker.MaxRequests,
			Interval:            cfg.Venue.Breaker.Interval,
			Timeout:             cfg.Venue.Breaker.Timeout,
			ConsecutiveFailures: cfg.Venue.Breaker.ConsecutiveFailures,
			RequestsPerSecond:   cfg.Venue.Breaker.RequestsPerSecond,
			Burst:               cfg.Venue.Breaker.Burst,
		})
	}
	return client
}

func buildDeadLetter(cfg *config.Config) (deadletter.Sink, error) {
	if cfg.DeadLetter.Type == "nats" {
		return deadletter.NewNATSSink(cfg.DeadLetter.URL, cfg.DeadLetter.Subject)
	}
	return deadletter.NewLogSink(), nil
}
