package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Severity classifies user-facing notifications.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one user-facing message produced by a lifecycle action.
type Notification struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id,omitempty"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers notifications. Delivery must not block the caller's
// action; failures are the notifier's problem, not the action's.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NewNotification stamps a message with an ID and timestamp.
func NewNotification(userID int, severity Severity, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// LogNotifier writes notifications to the structured log. It is the
// fallback sink and the test double.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) {
	n.logger.InfoContext(ctx, "notification",
		slog.String("id", notification.ID),
		slog.Int("user_id", notification.UserID),
		slog.String("severity", string(notification.Severity)),
		slog.String("message", notification.Message),
	)
}

// MultiNotifier fans one notification out to several sinks.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) {
	for _, sink := range m {
		sink.Notify(ctx, n)
	}
}
