package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
)

// Sink implements domain.Notifier by writing notification events to the
// outbox table, where the Dispatcher picks them up.
type Sink struct {
	pool  *pgxpool.Pool
	topic string
}

var _ domain.Notifier = (*Sink)(nil)

// NewSink constructs a Sink that routes events to topic.
func NewSink(pool *pgxpool.Pool, topic string) *Sink {
	if topic == "" {
		topic = events.NotificationTopic
	}
	return &Sink{pool: pool, topic: topic}
}

// Notify writes all events in one transaction. Re-sending an event id is a
// no-op.
func (s *Sink) Notify(ctx context.Context, evts []domain.NotificationEvent) error {
	records, err := buildRecords(s.topic, evts)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
            ON CONFLICT (dedupe_key) DO NOTHING`,
			r.AggregateType, r.AggregateID, r.EventType, r.Topic, r.SchemaSubject, r.PartitionKey, r.Payload, r.DedupeKey,
		)
	}
	if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	}); err != nil {
		return fmt.Errorf("enqueue notifications: %w", err)
	}
	enqueuedCounter.Add(float64(len(records)))
	return nil
}

type outboxRecord struct {
	Message
	DedupeKey string
}

func buildRecords(topic string, evts []domain.NotificationEvent) ([]outboxRecord, error) {
	records := make([]outboxRecord, 0, len(evts))
	for _, evt := range evts {
		payload, err := json.Marshal(events.NotificationCreated{
			EventID:   evt.ID,
			UserID:    evt.UserID,
			Type:      string(evt.Type),
			Title:     evt.Title,
			Message:   evt.Message,
			CreatedAt: evt.CreatedAt.UTC(),
		})
		if err != nil {
			return nil, err
		}
		records = append(records, outboxRecord{
			Message: Message{
				AggregateType: events.NotificationAggregateType,
				AggregateID:   evt.UserID,
				EventType:     events.NotificationCreatedType,
				Topic:         topic,
				SchemaSubject: events.ValueSubject(topic),
				PartitionKey:  evt.UserID,
				Payload:       payload,
			},
			DedupeKey: fmt.Sprintf("%s:%s", evt.ID, events.NotificationCreatedType),
		})
	}
	return records, nil
}
