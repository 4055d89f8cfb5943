// Package cache 最新价缓存：按 symbol 覆盖写入、带 TTL 的惰性过期读取
package cache

import (
	"context"
	"time"

	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
)

// Entry 缓存项
type Entry struct {
	Quote     domain.Quote
	ExpiresAt time.Time
}

// Expired 判断在 now 时刻是否已过期（ExpiresAt <= now）
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Backend 缓存存储后端
type Backend interface {
	// Set 整体覆盖 key 对应的缓存项
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Get 不存在时返回 false 且 error 为 nil
	Get(ctx context.Context, key string) (Entry, bool, error)
}
