// Package sqlstore 基于 GORM 的快照仓储（MySQL / PostgreSQL）
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/pkg/db"
	"gorm.io/gorm"
)

// SnapshotRepository 快照仓储
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository 创建快照仓储
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// AutoMigrate 创建或更新快照表
func (r *SnapshotRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&SnapshotPO{})
}

func (r *SnapshotRepository) FindBySymbol(ctx context.Context, symbol domain.Symbol) (*domain.Snapshot, error) {
	var po SnapshotPO
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol.String()).First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find snapshot %s: %w", symbol, err)
	}
	return po.ToDomain(), nil
}

// Upsert 按 symbol 唯一键插入或覆盖 price、updated_at，单条语句完成
func (r *SnapshotRepository) Upsert(ctx context.Context, snapshot *domain.Snapshot) error {
	po := &SnapshotPO{}
	po.FromDomain(snapshot)
	if err := db.UpsertWithConflict(ctx, r.db, po, []string{"symbol"}, []string{"price", "updated_at"}); err != nil {
		return fmt.Errorf("failed to upsert snapshot %s: %w", snapshot.Symbol, err)
	}
	return nil
}
