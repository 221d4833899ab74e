package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/statsimpact/internal/api"
	"example.com/statsimpact/internal/auth"
	"example.com/statsimpact/internal/cache"
	"example.com/statsimpact/internal/config"
	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/observability"
	"example.com/statsimpact/internal/outbox"
	"example.com/statsimpact/internal/participant"
	"example.com/statsimpact/internal/persistence/memory"
	"example.com/statsimpact/internal/persistence/postgres"
	"example.com/statsimpact/internal/stats"
	httptransport "example.com/statsimpact/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		repo       domain.Repository
		dispatcher *outbox.Dispatcher
	)
	switch cfg.Storage {
	case "memory":
		mem := memory.NewRepository()
		mem.Seed(time.Now().Year())
		repo = mem
		logger.Warn("using in-memory storage with sample data")
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.With("component", "outbox")),
			outbox.WithClaimTTL(cfg.OutboxClaimTTL),
		)
		go dispatcher.Start(ctx)
	}

	var invalidator cache.Invalidator = cache.NoopInvalidator{}
	if cfg.CacheInvalidationURL != "" {
		invalidator = cache.NewHTTPInvalidator(cfg.CacheInvalidationURL, cfg.CacheInvalidationToken, cfg.HTTPTimeout)
	}

	engine := stats.NewEngine(repo,
		stats.WithLogger(logger.With("component", "stats")),
		stats.WithTimeout(cfg.StatsTimeout),
		stats.WithUnderCapacityThreshold(cfg.OccupancyUnderThreshold),
	)
	editor := participant.NewService(repo, engine, invalidator, participant.WithLogger(logger.With("component", "participant")))

	authenticator := auth.NewAuthenticator(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, logger.With("component", "auth"))
	handler := api.NewHandler(engine, editor, logger.With("component", "http"))

	serverCfg := httptransport.DashboardServerConfig(cfg.HTTPAddress, cfg.StatsTimeout)
	server := httptransport.NewServer(serverCfg, handler.Router(authenticator.Wrap))

	logger.Info("statsimpact api listening", "address", cfg.HTTPAddress, "storage", cfg.Storage)
	if err := httptransport.Serve(ctx, server, serverCfg.ShutdownGrace); err != nil {
		logger.Error("server error", "error", err)
		cancel()
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
