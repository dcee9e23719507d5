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
	"github.com/sirupsen/logrus"

	"example.com/progression/internal/config"
	"example.com/progression/internal/logging"
	"example.com/progression/internal/observability"
	"example.com/progression/internal/outbox"
	httptransport "example.com/progression/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(logging.Params{
		Level:       cfg.LogLevel,
		FormatJSON:  cfg.LogFormatJSON,
		FileName:    cfg.LogFile,
		LogToStdout: true,
		Service:     "progression-dlqmanager",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()
	if err := observability.RegisterPool(prometheus.DefaultRegisterer, pool, "dlqmanager"); err != nil {
		logger.WithError(err).Warn("pool metrics not registered")
	}

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{
		Address:     cfg.MetricsAddress,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}, promhttp.Handler(), logger)
	go func() {
		logger.WithField("address", cfg.MetricsAddress).Info("dlq manager metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server error")
		}
	}()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, outbox.WithLogger(logger))
	logger.WithFields(logrus.Fields{
		"interval":    cfg.DLQPollInterval,
		"max_retries": cfg.DLQMaxRetries,
		"base_delay":  cfg.DLQBaseDelay,
	}).Info("dlq manager started")
	manager.Run(ctx, cfg.DLQPollInterval, cfg.DLQBatchSize)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics server shutdown error")
	}
}
