package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
)

// SnapshotPO 快照表，每个 symbol 一行
type SnapshotPO struct {
	ID        uint            `gorm:"primarykey"`
	Symbol    string          `gorm:"column:symbol;type:varchar(20);uniqueIndex:uk_market_price_symbol;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(32,18);not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at;not null"`
	CreatedAt time.Time
}

func (SnapshotPO) TableName() string { return "market_price" }

func (po *SnapshotPO) ToDomain() *domain.Snapshot {
	return &domain.Snapshot{
		Symbol:    domain.Symbol(po.Symbol),
		Price:     po.Price,
		UpdatedAt: po.UpdatedAt,
	}
}

func (po *SnapshotPO) FromDomain(s *domain.Snapshot) {
	po.Symbol = s.Symbol.String()
	po.Price = s.Price
	po.UpdatedAt = s.UpdatedAt
}
