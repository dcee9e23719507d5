// Package events defines the payloads the progression service publishes.
package events

import "time"

// NotificationCreated is emitted for every level-up, achievement unlock and
// goal completion once the workout that caused it has committed.
type NotificationCreated struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

const valueSubjectSuffix = "-value"

// Event type and routing constants for NotificationCreated.
const (
	NotificationCreatedType   = "notification.created"
	NotificationTopic         = "progression_notifications"
	NotificationSchemaSubject = NotificationTopic + valueSubjectSuffix
	NotificationAggregateType = "user_progression"
)

// ValueSubject returns the registry subject for values published to topic.
func ValueSubject(topic string) string {
	return topic + valueSubjectSuffix
}
