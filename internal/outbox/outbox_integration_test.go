//go:build integration

package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
)

func TestSinkAndDispatcherPublishNotifications(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	sink := NewSink(pool, events.NotificationTopic)
	evts := []domain.NotificationEvent{
		{ID: "e1", UserID: "u1", Type: domain.NotificationLevelUp, Title: "Level up!", Message: "level 2", CreatedAt: time.Now().UTC()},
		{ID: "e2", UserID: "u1", Type: domain.NotificationAchievement, Title: "New achievement!", Message: "Unlocked: First Step", CreatedAt: time.Now().UTC()},
	}
	require.NoError(t, sink.Notify(ctx, evts))
	require.NoError(t, sink.Notify(ctx, evts[:1]), "re-sent events are ignored")

	var queued int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&queued))
	require.Equal(t, 2, queued)

	writer := &stubWriter{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, writer, registry, 10*time.Millisecond, 10)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, writer.messages[events.NotificationTopic], 2)
	require.Equal(t, 1, registry.calls)
	require.InDelta(t, beforeDelivered+2, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 2, published)
}

func TestFailedDeliveryIsRetriedThroughDLQ(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	require.NoError(t, NewSink(pool, events.NotificationTopic).Notify(ctx, []domain.NotificationEvent{
		{ID: "e1", UserID: "u1", Type: domain.NotificationGoalCompleted, Title: "Goal reached!", Message: "done", CreatedAt: time.Now().UTC()},
	}))

	failing := NewDispatcher(pool, &stubWriter{err: errors.New("kafka write failed")}, &stubRegistry{id: 7}, 10*time.Millisecond, 10)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(events.NotificationTopic))
	require.NoError(t, failing.processBatch(ctx))
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(events.NotificationTopic)), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	manager := NewDLQManager(pool, 5, time.Second)
	replayed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Zero(t, dlqCount)

	writer := &stubWriter{}
	require.NoError(t, NewDispatcher(pool, writer, &stubRegistry{id: 7}, 10*time.Millisecond, 10).processBatch(ctx))
	require.Len(t, writer.messages[events.NotificationTopic], 1)
}

func TestDLQManagerQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	_, err := pool.Exec(ctx, `INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
        VALUES (1, $1, $2, '{}', 'boom', $3, 'u1', $4, 'u1', 5, NOW())`,
		events.NotificationCreatedType, events.NotificationTopic, events.NotificationAggregateType, events.NotificationSchemaSubject)
	require.NoError(t, err)

	processed, err := NewDLQManager(pool, 5, time.Second).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
	require.Zero(t, testutil.ToFloat64(dlqBacklogGauge))
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	return metric.GetHistogram().GetSampleCount()
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("progression"),
		postgrescontainer.WithUsername("progression"),
		postgrescontainer.WithPassword("progression"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var pool *pgxpool.Pool
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err = pgxpool.New(ctx, connStr)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		require.True(t, time.Now().Before(deadline), "postgres not ready: %v", err)
		time.Sleep(time.Second)
	}
	t.Cleanup(pool.Close)

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	migration, err := os.ReadFile(filepath.Join(filepath.Dir(file), "../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(migration))
	require.NoError(t, err)
	return pool
}
