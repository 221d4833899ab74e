package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"example.com/statsimpact/internal/config"
	"example.com/statsimpact/internal/consumer"
	"example.com/statsimpact/internal/observability"
	httptransport "example.com/statsimpact/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel).With("component", "participant-audit")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditLog := consumer.NewAuditLog(pool, logger)
	metricsCfg := httptransport.MetricsServerConfig(cfg.MetricsAddress)
	metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("metrics listening", "address", cfg.MetricsAddress)
		return httptransport.Serve(gctx, metricsSrv, metricsCfg.ShutdownGrace)
	})

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			GroupID:        cfg.ConsumerGroupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		})
		topicLogger := logger.With("topic", topic)
		proc := consumer.NewProcessor(reader, auditLog,
			consumer.WithLogger(topicLogger),
			consumer.WithRetry(cfg.ConsumerAttempts, cfg.ConsumerRetryDelay),
		)

		g.Go(func() error {
			defer reader.Close()
			topicLogger.Info("consuming", "group", cfg.ConsumerGroupID)
			if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("participant audit consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("participant audit consumer stopped")
}
