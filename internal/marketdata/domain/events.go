package domain

import (
	"context"
	"time"
)

// SnapshotUpdatedEvent 快照更新事件
type SnapshotUpdatedEvent struct {
	Symbol        string    `json:"symbol"`
	Price         string    `json:"price"`
	PreviousPrice string    `json:"previous_price,omitempty"`
	BidPrice      string    `json:"bid_price"`
	AskPrice      string    `json:"ask_price"`
	PriceSource   string    `json:"price_source"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ConnectionFailedEvent 行情连接耗尽重试后进入 Failed 的事件
type ConnectionFailedEvent struct {
	Symbol    string    `json:"symbol"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}

// EventPublisher 领域事件发布者
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// 事件主题
const (
	TopicSnapshotUpdated  = "marketdata.snapshot.updated"
	TopicConnectionFailed = "marketdata.stream.failed"
)
