package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/stream"
)

// ConnectionFailedNotifier 连接进入 Failed 时发布 ConnectionFailedEvent
func ConnectionFailedNotifier(publisher domain.EventPublisher, topic string, timeout time.Duration, logger *slog.Logger) stream.StateListener {
	if topic == "" {
		topic = domain.TopicConnectionFailed
	}
	return func(change stream.StateChange) {
		if change.To != domain.Failed {
			return
		}
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		event := domain.ConnectionFailedEvent{
			Symbol:    change.Symbol.String(),
			Attempts:  change.Status.Attempts,
			LastError: change.Status.LastError,
			FailedAt:  change.Status.Since,
		}
		if err := publisher.Publish(ctx, topic, event.Symbol, event); err != nil {
			logger.Warn("failed to publish connection failed event", "symbol", event.Symbol, "error", err)
		}
	}
}
