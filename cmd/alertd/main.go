package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tsunami-alert-service/internal/adapter/catalog"
	httpadapter "github.com/couchcryptid/tsunami-alert-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/tsunami-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/tsunami-alert-service/internal/adapter/memory"
	natsadapter "github.com/couchcryptid/tsunami-alert-service/internal/adapter/nats"
	"github.com/couchcryptid/tsunami-alert-service/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/tsunami-alert-service/internal/adapter/redis"
	"github.com/couchcryptid/tsunami-alert-service/internal/config"
	"github.com/couchcryptid/tsunami-alert-service/internal/dispatch"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
	"github.com/couchcryptid/tsunami-alert-service/internal/pipeline"
)

const catalogCacheTTL = 10 * time.Minute

// pinger is a dependency whose reachability gates readiness.
type pinger interface {
	Ping(ctx context.Context) error
}

// readiness reports ready once the pipeline has published a report and every
// configured backing service answers a ping.
type readiness struct {
	pipeline *pipeline.Pipeline
	deps     map[string]pinger
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.pipeline.CheckReadiness(ctx); err != nil {
		return err
	}
	for name, dep := range r.deps {
		if err := dep.Ping(ctx); err != nil {
			return fmt.Errorf("%s unreachable: %w", name, err)
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := map[string]pinger{}
	var closers []func() error

	// Alert store and contact directory: Postgres when DATABASE_URL is set.
	var (
		store    dispatch.Store
		contacts pipeline.ContactDirectory
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		closers = append(closers, db.Close)
		pg := postgres.NewStore(db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store, contacts = pg, pg
		deps["postgres"] = pg
		logger.Info("alert store: postgres")
	} else {
		store, contacts = memory.NewStore(), memory.NewContacts()
		logger.Warn("alert store: in-memory, alerts will not survive a restart")
	}

	// Vessel positions: Redis when REDIS_ADDR is set.
	var positions pipeline.PositionSource
	if cfg.RedisAddr != "" {
		client := redisadapter.NewClient(redisadapter.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, client.Close)
		rp := redisadapter.NewPositions(client, cfg.RedisPositionsKey, logger)
		positions = rp
		deps["redis"] = rp
		logger.Info("vessel positions: redis", "key", cfg.RedisPositionsKey)
	} else {
		positions = memory.NewPositions()
		logger.Warn("vessel positions: in-memory, no vessels tracked")
	}

	// Channel gateway: NATS when NATS_URL is set, otherwise every channel
	// reports not configured.
	var senders map[domain.Channel]dispatch.ChannelSender
	if cfg.NATSURL != "" {
		conn, err := natsadapter.Connect(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() error { return conn.Drain() })
		senders = natsadapter.NewSenders(conn, cfg.NATSSubjectPrefix)
		logger.Info("channel gateway: nats", "subject_prefix", cfg.NATSSubjectPrefix)
	} else {
		logger.Warn("channel gateway disabled, deliveries will fail as not configured")
	}

	// Historical aftershock catalog (feature-flagged via CATALOG_ENABLED).
	var aftershocks domain.AftershockCatalog
	if cfg.CatalogEnabled {
		client := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout, logger, metrics)
		aftershocks = catalog.NewCachedCatalog(client, cfg.CatalogCacheSize, catalogCacheTTL, clock, metrics)
		metrics.CatalogEnabled.Set(1)
		logger.Info("aftershock catalog enabled", "url", cfg.CatalogURL, "cache_size", cfg.CatalogCacheSize)
	} else {
		logger.Info("aftershock catalog disabled")
	}

	orch := dispatch.New(store, dispatch.Options{
		Senders:     senders,
		VoicePolicy: dispatch.MinSeverityVoicePolicy{Min: cfg.VoiceMinSeverity},
		SendTimeout: cfg.SendTimeout,
		AlertTTL:    cfg.AlertTTL,
		Clock:       clock,
	}, logger, metrics)

	evaluator := pipeline.NewEvaluator(positions, contacts, orch, pipeline.EvaluatorOptions{
		MinSeverity: cfg.AlertMinSeverity,
		AlertTTL:    cfg.AlertTTL,
		Concurrency: cfg.AssessConcurrency,
		Catalog:     aftershocks,
		Clock:       clock,
	}, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	p := pipeline.New(reader, evaluator, writer, logger, metrics, cfg.BatchSize, pipeline.WithClock(clock))

	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{pipeline: p, deps: deps}, httpadapter.Options{
		Alerts:  orch,
		Catalog: aftershocks,
		Clock:   clock,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go orch.RunExpirySweeper(ctx, cfg.ExpirySweepInterval)

	// Start alert pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("in-flight deliveries abandoned", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
