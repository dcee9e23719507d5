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
	"golang.org/x/sync/errgroup"

	"example.com/progression/internal/api"
	"example.com/progression/internal/auth"
	"example.com/progression/internal/catalog"
	"example.com/progression/internal/config"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/logging"
	"example.com/progression/internal/observability"
	"example.com/progression/internal/outbox"
	"example.com/progression/internal/persistence/memory"
	"example.com/progression/internal/persistence/postgres"
	httptransport "example.com/progression/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(logging.Params{
		Level:       cfg.LogLevel,
		FormatJSON:  cfg.LogFormatJSON,
		FileName:    cfg.LogFile,
		LogToStdout: true,
		Service:     "progression-api",
	})

	loc, err := cfg.Location()
	if err != nil {
		logger.WithError(err).Fatal("invalid timezone")
	}
	cat, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		logger.WithError(err).Fatal("failed to load catalog")
	}
	logger.WithFields(logrus.Fields{
		"exercises":    len(cat.Exercises()),
		"achievements": len(cat.Achievements()),
	}).Info("catalog loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store      domain.Store
		notifier   domain.Notifier
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; progression is lost on restart")
		store = memory.NewStore()
		notifier = domain.NewLogNotifier(logger)
	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		defer pool.Close()

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		if err := observability.RegisterPool(prometheus.DefaultRegisterer, pool, "api"); err != nil {
			logger.WithError(err).Warn("pool metrics not registered")
		}

		store = postgres.NewStore(pool)
		notifier = outbox.NewSink(pool, cfg.NotificationTopic)
		dispatcher = outbox.NewDispatcher(pool, producer, outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL),
			cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithLogger(logger.WithField("component", "outbox")))
	default:
		logger.WithField("driver", cfg.StoreDriver).Fatal("unknown store driver")
	}

	locker := domain.NewUserLocker()
	processor := domain.NewProcessor(store, cat, cat,
		domain.WithLogger(logger.WithField("component", "processor")),
		domain.WithLocation(loc),
		domain.WithNotifier(notifier),
		domain.WithLocker(locker),
	)
	handler := api.NewHandler(processor,
		domain.NewSessions(store, locker),
		domain.NewProfiles(store, locker),
		domain.NewGoals(store, cat, locker, loc),
		api.WithLogger(logger.WithField("component", "api")))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/", authMiddleware.Wrap(mux))
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.LogRequests(logger)(root), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("address", cfg.HTTPAddress).Info("progression api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if dispatcher != nil {
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("progression api stopped")
	}
}
