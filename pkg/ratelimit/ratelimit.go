// Package ratelimit 提供基于令牌桶的进程内限流器
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit 限流规则
type Limit struct {
	// 每秒令牌数
	Rate  float64
	Burst int
}

// Result 单次检查结果
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// KeyedLimiter 按 key 独立计数的限流器
type KeyedLimiter struct {
	mu       sync.Mutex
	limit    Limit
	limiters map[string]*entry
	idleTTL  time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter 创建按 key 限流器，超过 idleTTL 未访问的 key 在下次检查时回收
func NewKeyedLimiter(limit Limit, idleTTL time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limit:    limit,
		limiters: make(map[string]*entry),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Allow 检查 key 是否允许通过
func (l *KeyedLimiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictLocked(now)

	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.limit.Rate), l.limit.Burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Result{Allowed: false}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay}
	}
	return Result{Allowed: true, Remaining: int(e.limiter.TokensAt(now))}
}

func (l *KeyedLimiter) evictLocked(now time.Time) {
	if l.idleTTL <= 0 {
		return
	}
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.limiters, k)
		}
	}
}

// Waiter 阻塞式限流器，Wait 在 ctx 取消时返回错误
type Waiter interface {
	Wait(ctx context.Context) error
}

// NewWaiter 创建全局令牌桶。r <= 0 表示不限流。
func NewWaiter(r float64, burst int) Waiter {
	if r <= 0 {
		return unlimited{}
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
