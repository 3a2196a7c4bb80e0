package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dhanbg/traditionalalley-sub002/internal/catalog"
	"github.com/dhanbg/traditionalalley-sub002/internal/config"
	"github.com/dhanbg/traditionalalley-sub002/internal/event"
	handler "github.com/dhanbg/traditionalalley-sub002/internal/handler/http"
	"github.com/dhanbg/traditionalalley-sub002/internal/remote"
	"github.com/dhanbg/traditionalalley-sub002/internal/session"
	"github.com/dhanbg/traditionalalley-sub002/internal/snapshot"
	"github.com/dhanbg/traditionalalley-sub002/pkg/health"
	"github.com/dhanbg/traditionalalley-sub002/pkg/httpclient"
	pkgkafka "github.com/dhanbg/traditionalalley-sub002/pkg/kafka"
	"github.com/dhanbg/traditionalalley-sub002/pkg/tracing"
)

// App wires together all dependencies and runs the cart sync service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	sessions       *session.Manager
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "cartsync",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize Redis client.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	// Initialize Kafka producer. Events are best effort; when Kafka is
	// disabled the event producer runs with a nil client and drops publishes.
	var producer *pkgkafka.Producer
	if cfg.KafkaEnabled {
		kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
		producer = pkgkafka.NewProducer(kafkaCfg, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// The line-item store client makes exactly one attempt per sync trigger.
	// A failed create is healed by the next mutation on the item, so client
	// retries would only multiply remote writes.
	remoteHTTP := httpclient.New(httpclient.SingleAttemptConfig())
	remoteClient := remote.NewClient(remoteHTTP, cfg.RemoteStoreURL, cfg.RemoteStoreToken, logger)

	// Catalog reads are idempotent, so they get retries and a breaker.
	catalogHTTP := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("catalog"),
		logger,
	)
	catalogClient := catalog.NewClient(catalogHTTP, cfg.CatalogURL, logger)

	// Build the dependency graph.
	snapshotTTL := time.Duration(cfg.SnapshotTTL) * time.Hour
	snapshots := snapshot.NewStore(rdb, snapshotTTL)
	eventProducer := event.NewProducer(producer, logger)
	sessions := session.NewManager(remoteClient, catalogClient, snapshots, eventProducer, cfg.SyncOpTimeout, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if producer != nil {
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return eventProducer.Ping(ctx)
		})
	}

	// HTTP router.
	cartHandler := handler.NewCartHandler(sessions, logger)
	router := handler.NewRouter(cartHandler, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		sessions:       sessions,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Let in-flight sync operations finish so no remote records are orphaned
	// by the shutdown itself.
	a.sessions.Drain()

	// Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	// Close Redis client.
	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	// Flush pending spans.
	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
