package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"example.com/progression/internal/events"
)

// ErrUnsupportedEvent is returned for event types the inbox does not store.
var ErrUnsupportedEvent = errors.New("unsupported event type")

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InboxHandler materializes notification.created events into the per-user
// notifications table. Redelivered events are ignored.
type InboxHandler struct {
	db execer
}

// NewInboxHandler accepts a *pgxpool.Pool or anything else that can Exec.
func NewInboxHandler(db execer) *InboxHandler {
	return &InboxHandler{db: db}
}

func (h *InboxHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.NotificationCreatedType {
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, msg.EventType)
	}

	var evt events.NotificationCreated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	if evt.EventID == "" || evt.UserID == "" {
		return fmt.Errorf("decode %s: missing event_id or user_id", msg.EventType)
	}

	_, err := h.db.Exec(ctx,
		`INSERT INTO notifications (event_id, user_id, event_type, title, message, created_at)
         VALUES ($1,$2,$3,$4,$5,$6)
         ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID,
		evt.UserID,
		evt.Type,
		evt.Title,
		evt.Message,
		evt.CreatedAt,
	)
	return err
}
