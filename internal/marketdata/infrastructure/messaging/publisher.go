// Package messaging 领域事件发布：Kafka 或仅日志
package messaging

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/tradestream/pkg/mq"
)

// KafkaPublisher 通过 Kafka 发布领域事件
type KafkaPublisher struct {
	producer *mq.KafkaProducer
}

// NewKafkaPublisher 创建 Kafka 事件发布者
func NewKafkaPublisher(producer *mq.KafkaProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	return p.producer.SendMessage(ctx, topic, key, event)
}

// LogPublisher 未启用 Kafka 时只记录事件
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher 创建日志事件发布者
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "event_publisher")}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	p.logger.DebugContext(ctx, "domain event", "topic", topic, "key", key, "event", event)
	return nil
}
