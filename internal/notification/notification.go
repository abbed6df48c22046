// internal/notification/notification.go

// Package notification delivers reader-facing messages such as "your reserved
// book is waiting at the desk".
package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

var (
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is shut down")
)

// Message is one notification addressed to a reader.
type Message struct {
	AccountID uuid.UUID `json:"account_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
}

// Notifier delivers messages to readers.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes every message to a structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification sent",
		"account_id", msg.AccountID,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
