// Package memory 进程内快照仓储，用于本地运行与测试
package memory

import (
	"context"
	"sync"

	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
)

// SnapshotRepository 内存快照仓储
type SnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[domain.Symbol]domain.Snapshot
}

// NewSnapshotRepository 创建内存快照仓储
func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{snapshots: make(map[domain.Symbol]domain.Snapshot)}
}

func (r *SnapshotRepository) FindBySymbol(_ context.Context, symbol domain.Symbol) (*domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[symbol]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *SnapshotRepository) Upsert(_ context.Context, snapshot *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snapshot.Symbol] = *snapshot
	return nil
}

// Len 快照数量
func (r *SnapshotRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshots)
}
