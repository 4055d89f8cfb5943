package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/messaging"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/stream"
	"github.com/wyfcoding/tradestream/pkg/logger"
)

type capturePublisher struct {
	topic string
	key   string
	event any
	calls int
	err   error
}

func (p *capturePublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.calls++
	p.topic, p.key, p.event = topic, key, event
	return p.err
}

func TestConnectionFailedNotifier(t *testing.T) {
	pub := &capturePublisher{}
	notify := messaging.ConnectionFailedNotifier(pub, "", time.Second, logger.NewNop())

	notify(stream.StateChange{Symbol: "BTCUSDT", From: domain.Connecting, To: domain.Connected})
	if pub.calls != 0 {
		t.Fatalf("non-failure transitions must not publish")
	}

	failedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	notify(stream.StateChange{
		Symbol: "BTCUSDT",
		From:   domain.Connecting,
		To:     domain.Failed,
		Status: domain.ConnectionStatus{Attempts: 11, LastError: "connection failure: refused", Since: failedAt},
	})

	if pub.calls != 1 || pub.topic != domain.TopicConnectionFailed || pub.key != "BTCUSDT" {
		t.Fatalf("unexpected publish: %+v", pub)
	}
	ev, ok := pub.event.(domain.ConnectionFailedEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", pub.event)
	}
	if ev.Attempts != 11 || ev.LastError != "connection failure: refused" || !ev.FailedAt.Equal(failedAt) {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestConnectionFailedNotifier_PublishErrorIsLogged(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	notify := messaging.ConnectionFailedNotifier(pub, "custom.topic", 0, logger.NewNop())

	notify(stream.StateChange{Symbol: "ETHUSDT", To: domain.Failed})
	if pub.calls != 1 || pub.topic != "custom.topic" {
		t.Errorf("unexpected publish: %+v", pub)
	}
}

func TestLogPublisher(t *testing.T) {
	p := messaging.NewLogPublisher(logger.NewNop())
	if err := p.Publish(context.Background(), "t", "k", map[string]string{"a": "b"}); err != nil {
		t.Errorf("log publisher should never fail: %v", err)
	}
}
