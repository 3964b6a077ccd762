package mail

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of delivering them.
// It is used when no SMTP relay is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email not delivered, smtp disabled",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("html", msg.HTML),
	)
	return nil
}
