package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/pkg/metrics"
)

const (
	// DefaultKeyPrefix 缓存 key 前缀
	DefaultKeyPrefix = "price:latest:"
	// DefaultTTL 默认过期时间
	DefaultTTL = 60 * time.Second
)

// Option 缓存可选项
type Option func(*LatestPriceCache)

// WithKeyPrefix 设置 key 前缀
func WithKeyPrefix(prefix string) Option {
	return func(c *LatestPriceCache) { c.prefix = prefix }
}

// WithDefaultTTL 设置默认 TTL
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *LatestPriceCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(c *LatestPriceCache) { c.now = now }
}

// WithLogger 设置日志
func WithLogger(l *slog.Logger) Option {
	return func(c *LatestPriceCache) { c.logger = l }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *LatestPriceCache) { c.metrics = m }
}

// LatestPriceCache 每个 symbol 的最新报价。后端故障降级为未命中，不向调用方返回错误。
type LatestPriceCache struct {
	backend Backend
	prefix  string
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewLatestPriceCache 创建最新价缓存
func NewLatestPriceCache(backend Backend, opts ...Option) *LatestPriceCache {
	c := &LatestPriceCache{
		backend: backend,
		prefix:  DefaultKeyPrefix,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "latest_price_cache")
	return c
}

// Key 返回 symbol 的缓存 key
func (c *LatestPriceCache) Key(symbol domain.Symbol) string {
	return c.prefix + symbol.String()
}

// TTL 默认过期时间
func (c *LatestPriceCache) TTL() time.Duration {
	return c.ttl
}

// Put 覆盖写入最新报价，ttl <= 0 时使用默认值
func (c *LatestPriceCache) Put(ctx context.Context, quote domain.Quote, ttl time.Duration) {
	quote.Symbol = domain.NormalizeSymbol(quote.Symbol.String())
	if quote.Symbol.IsEmpty() {
		c.logger.WarnContext(ctx, "skip cache put for empty symbol")
		c.metrics.RecordCacheOp("put", "skipped")
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	entry := Entry{Quote: quote, ExpiresAt: c.now().Add(ttl)}
	if err := c.backend.Set(ctx, c.Key(quote.Symbol), entry, ttl); err != nil {
		c.logger.WarnContext(ctx, "latest price cache put failed",
			"symbol", quote.Symbol, "error", fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err))
		c.metrics.RecordCacheOp("put", "error")
		return
	}
	c.metrics.RecordCacheOp("put", "ok")
}

// Get 读取最新报价。不存在、已过期、symbol 为空或后端故障时返回 false。
func (c *LatestPriceCache) Get(ctx context.Context, symbol string) (domain.Quote, bool) {
	sym := domain.NormalizeSymbol(symbol)
	if sym.IsEmpty() {
		return domain.Quote{}, false
	}

	entry, ok, err := c.backend.Get(ctx, c.Key(sym))
	if err != nil {
		c.logger.WarnContext(ctx, "latest price cache get failed",
			"symbol", sym, "error", fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err))
		c.metrics.RecordCacheOp("get", "error")
		return domain.Quote{}, false
	}
	if !ok {
		c.metrics.RecordCacheOp("get", "miss")
		return domain.Quote{}, false
	}
	if entry.Expired(c.now()) {
		c.metrics.RecordCacheOp("get", "expired")
		return domain.Quote{}, false
	}
	c.metrics.RecordCacheOp("get", "hit")
	return entry.Quote, true
}
