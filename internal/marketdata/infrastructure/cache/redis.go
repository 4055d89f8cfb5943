package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
)

// RedisBackend Redis 缓存后端，值为 JSON，过期交给 PX
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend 创建 Redis 后端
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

type redisEntry struct {
	Symbol     string          `json:"symbol"`
	BidPrice   decimal.Decimal `json:"bidPrice"`
	AskPrice   decimal.Decimal `json:"askPrice"`
	ObservedAt time.Time       `json:"observedAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

func (b *RedisBackend) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(redisEntry{
		Symbol:     entry.Quote.Symbol.String(),
		BidPrice:   entry.Quote.BidPrice,
		AskPrice:   entry.Quote.AskPrice,
		ObservedAt: entry.Quote.ObservedAt,
		ExpiresAt:  entry.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := b.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var e redisEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return Entry{
		Quote: domain.Quote{
			Symbol:     domain.Symbol(e.Symbol),
			BidPrice:   e.BidPrice,
			AskPrice:   e.AskPrice,
			ObservedAt: e.ObservedAt,
		},
		ExpiresAt: e.ExpiresAt,
	}, true, nil
}
