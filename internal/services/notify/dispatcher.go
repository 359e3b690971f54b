// Package notify formats engine events and delivers them to the user.
package notify

import (
	"context"

	"github.com/vadiminshakov/watchtower/internal/domain"
	"go.uber.org/zap"
)

// Dispatcher delivers a formatted message.
type Dispatcher interface {
	Send(ctx context.Context, msg domain.Message) error
}

// LogDispatcher writes messages to the log instead of a chat.
type LogDispatcher struct {
	l *zap.Logger
}

func NewLogDispatcher(l *zap.Logger) *LogDispatcher {
	return &LogDispatcher{l: l.With(zap.String("component", "notify-log"))}
}

func (d *LogDispatcher) Send(_ context.Context, msg domain.Message) error {
	fields := []zap.Field{zap.String("text", msg.Text)}
	if msg.PhotoURL != "" {
		fields = append(fields, zap.String("photo", msg.PhotoURL))
	}
	d.l.Info("notification", fields...)
	return nil
}
