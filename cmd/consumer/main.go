package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/progression/internal/config"
	"example.com/progression/internal/consumer"
	"example.com/progression/internal/logging"
	"example.com/progression/internal/observability"
	httptransport "example.com/progression/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(logging.Params{
		Level:       cfg.LogLevel,
		FormatJSON:  cfg.LogFormatJSON,
		FileName:    cfg.LogFile,
		LogToStdout: true,
		Service:     "progression-consumer",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()
	if err := observability.RegisterPool(prometheus.DefaultRegisterer, pool, "consumer"); err != nil {
		logger.WithError(err).Warn("pool metrics not registered")
	}

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{
		Address:     cfg.MetricsAddress,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}, promhttp.Handler(), logger)
	go func() {
		logger.WithField("address", cfg.MetricsAddress).Info("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server error")
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.NotificationTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	log := logger.WithField("topic", cfg.NotificationTopic).WithField("group", cfg.ConsumerGroupID)
	proc := consumer.NewProcessor(reader, consumer.NewInboxHandler(pool), consumer.WithLogger(log))

	log.Info("consumer started")
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("consumer stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics server shutdown error")
	}
}
