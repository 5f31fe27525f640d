package app

import (
	"context"
	"fmt"

	"github.com/dpfaria/triarb/internal/logger"
)

// Event icons prefixed to operator messages.
var eventIcons = map[string]string{
	"opportunity":         "\U0001F4C8",
	"diagnostic":          "\U0001F50D",
	"execution_success":   "✅",
	"execution_failure":   "❌",
	"unwind":              "↩",
	"manual_intervention": "\U0001F6A8",
	"engine_restart":      "♻",
	"stream_fatal":        "\U0001F50C",
}

// Notifier formats engine events and forwards them to the operator
// channel. Delivery failures are logged and swallowed so notification
// outages never stall the engine.
type Notifier struct {
	sender Sender
	logger logger.LoggerInterface
}

// NewNotifier creates a Notifier on top of the given sender.
func NewNotifier(sender Sender, log logger.LoggerInterface) *Notifier {
	return &Notifier{sender: sender, logger: log}
}

// Notify delivers one event. It always returns nil.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	text := fmt.Sprintf("%s %s\n\n%s", eventIcons[event], title, message)
	if err := n.sender.Send(ctx, text); err != nil {
		n.logger.Warn(ctx, "notification delivery failed",
			"event", event, "title", title, "error", err)
	}
	return nil
}

// LogSender writes operator messages to the application log. It stands in
// for Telegram when the channel is disabled.
type LogSender struct {
	logger logger.LoggerInterface
}

// NewLogSender creates a LogSender.
func NewLogSender(log logger.LoggerInterface) *LogSender {
	return &LogSender{logger: log}
}

// Send logs the message and never fails.
func (s *LogSender) Send(ctx context.Context, text string) error {
	s.logger.Info(ctx, "operator message", "text", text)
	return nil
}
