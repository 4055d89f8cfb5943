package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend 进程内缓存后端
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryBackend 创建内存后端，now 为空时使用 time.Now
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		entries: make(map[string]Entry),
		now:     now,
	}
}

func (b *MemoryBackend) Set(_ context.Context, key string, entry Entry, _ time.Duration) error {
	b.mu.Lock()
	b.entries[key] = entry
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()
	return entry, ok, nil
}

// Len 当前条目数（含尚未清理的过期项）
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Sweep 删除已过期条目，返回删除数量
func (b *MemoryBackend) Sweep() int {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, entry := range b.entries {
		if entry.Expired(now) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

// StartSweeper 按固定间隔清理过期条目，ctx 结束时退出。interval <= 0 时不启动。
func (b *MemoryBackend) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.Sweep()
			}
		}
	}()
}
