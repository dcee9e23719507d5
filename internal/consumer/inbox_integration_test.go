//go:build integration

package consumer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/outbox"
)

type fixedRegistry struct{}

func (fixedRegistry) EnsureSchema(context.Context, string, string) (int, error) { return 1, nil }

func TestNotificationsFlowFromOutboxToInbox(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pool := startPostgres(t, ctx)
	broker := startKafka(t, ctx, events.NotificationTopic)
	logger, _ := test.NewNullLogger()

	producer := outbox.NewKafkaProducer([]string{broker})
	defer producer.Close()
	dispatcher := outbox.NewDispatcher(pool, producer, fixedRegistry{}, 50*time.Millisecond, 10, outbox.WithLogger(logger))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "progression-inbox-integration",
		Topic:       events.NotificationTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go dispatcher.Start(runCtx)
	go func() {
		_ = NewProcessor(reader, NewInboxHandler(pool), WithLogger(logger)).Run(runCtx)
	}()

	require.NoError(t, outbox.NewSink(pool, events.NotificationTopic).Notify(ctx, []domain.NotificationEvent{{
		ID:        "evt-1",
		UserID:    "user-1",
		Type:      domain.NotificationAchievement,
		Title:     "New achievement!",
		Message:   "Unlocked: First Step",
		CreatedAt: time.Now().UTC(),
	}}))

	require.Eventually(t, func() bool {
		var count int
		err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE event_id = 'evt-1' AND user_id = 'user-1'`).Scan(&count)
		return err == nil && count == 1
	}, 90*time.Second, 500*time.Millisecond)

	stop()
	dispatcher.Wait()
}

func startKafka(t *testing.T, ctx context.Context, topic string) string {
	t.Helper()

	kafkaC, err := kafkacontainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	return brokers[0]
}

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("progression"),
		postgrescontainer.WithUsername("progression"),
		postgrescontainer.WithPassword("progression"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		p, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return false
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return false
		}
		pool = p
		return true
	}, 30*time.Second, time.Second)
	t.Cleanup(pool.Close)

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	migration, err := os.ReadFile(filepath.Join(filepath.Dir(file), "../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(migration))
	require.NoError(t, err)
	return pool
}
