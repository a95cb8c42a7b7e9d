package mail

import (
	"context"
	"log/slog"
	"strings"
)

// NoopSender logs instead of sending. It is the default in development
// and in environments without SES credentials.
type NoopSender struct {
	logger *slog.Logger
}

// NewNoopSender builds a logging sender.
func NewNoopSender(logger *slog.Logger) *NoopSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopSender{logger: logger}
}

// Send logs the message head and drops the body.
func (s *NoopSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("mail: send skipped",
		slog.String("to", strings.Join(msg.To, ",")),
		slog.String("subject", msg.Subject),
	)
	return nil
}
