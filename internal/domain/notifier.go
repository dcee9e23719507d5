package domain

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes notification events to the log. It is the sink used when
// no delivery pipeline is configured.
type LogNotifier struct {
	logger logrus.FieldLogger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, events []NotificationEvent) error {
	for _, evt := range events {
		n.logger.WithFields(logrus.Fields{
			"user_id":    evt.UserID,
			"event_type": evt.Type,
			"event_id":   evt.ID,
		}).Infof("%s %s", evt.Title, evt.Message)
	}
	return nil
}
