package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/expiration"
)

// LogNotifier writes notifications to a logrus logger. Delivery by email or
// in-app messages belongs to other services; this notifier is the default
// sink of access-notifier.
type LogNotifier struct {
	logger logrus.FieldLogger
}

// NewLogNotifier creates a notifier logging through logger
func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs one notification
func (n *LogNotifier) Notify(_ context.Context, note expiration.Notification) error {
	fields := logrus.Fields{
		"user_id":    note.Membership.UserID,
		"project_id": note.Membership.ProjectID,
		"role":       note.Membership.Role,
		"kind":       note.Kind,
		"days_left":  note.DaysUntil,
	}
	if exp := note.Membership.ExpiresAt(); exp != nil {
		fields["expires_at"] = exp.UTC()
	}
	n.logger.WithFields(fields).Info("project access expiration notice")
	return nil
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n expiration.Notification) error

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, n expiration.Notification) error {
	return f(ctx, n)
}
