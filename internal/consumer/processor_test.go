package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func framed(schemaID uint32, payload []byte) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)
	return value
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"event_id":"e1","user_id":"u1"}`)
	msg := kafka.Message{
		Topic:  "progression_notifications",
		Offset: 10,
		Time:   time.Now().UTC(),
		Value:  framed(42, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("notification.created")},
			{Key: "user_id", Value: []byte("u1")},
			{Key: "schema_subject", Value: []byte("progression_notifications-value")},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}
	logger, _ := test.NewNullLogger()

	err := NewProcessor(reader, handler, WithLogger(logger)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "notification.created", handler.last.EventType)
	require.Equal(t, "u1", handler.last.UserID)
	require.Equal(t, "progression_notifications-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	msg := kafka.Message{
		Topic:   "progression_notifications",
		Value:   framed(7, []byte(`{}`)),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("notification.created")}},
	}

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: errors.New("boom")}
	logger, hook := test.NewNullLogger()

	err := NewProcessor(reader, handler, WithLogger(logger)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Zero(t, reader.commitCalls)
	require.Equal(t, "handler failed", hook.LastEntry().Message)
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	cases := map[string]kafka.Message{
		"short value":   {Value: []byte{0, 1}},
		"bad magic":     {Value: []byte{1, 0, 0, 0, 1, '{', '}'}, Headers: []kafka.Header{{Key: "event_type", Value: []byte("x")}}},
		"missing event": {Value: framed(1, []byte(`{}`))},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			reader := &stubReader{messages: []kafka.Message{msg}}
			handler := &stubHandler{}
			logger, _ := test.NewNullLogger()

			err := NewProcessor(reader, handler, WithLogger(logger)).Run(context.Background())
			require.ErrorIs(t, err, context.Canceled)
			require.Zero(t, handler.calls)
			require.Equal(t, 1, reader.commitCalls)
		})
	}
}

func TestProcessorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &stubReader{messages: []kafka.Message{{Value: framed(1, []byte(`{}`))}}}
	err := NewProcessor(reader, &stubHandler{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, reader.index)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
