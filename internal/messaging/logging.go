package messaging

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// LoggingMessenger writes outbound messages to the log instead of a real
// chat transport. Sends are rate limited the same way a real channel
// adapter would be, so backpressure behavior stays realistic in dev.
type LoggingMessenger struct {
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewLoggingMessenger creates a logging messenger allowing perSecond
// messages per second with a small burst.
func NewLoggingMessenger(logger *slog.Logger, perSecond float64) *LoggingMessenger {
	if logger == nil {
		logger = slog.Default()
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	return &LoggingMessenger{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 5),
	}
}

// Send logs each message in order, honoring the rate limit.
func (m *LoggingMessenger) Send(ctx context.Context, msgs []Message) error {
	for _, msg := range msgs {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		m.logger.Info("outbound message",
			"to", msg.To,
			"kind", msg.Kind,
			"body", msg.Body)
	}
	return nil
}
