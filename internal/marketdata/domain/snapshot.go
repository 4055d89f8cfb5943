package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot 持久化的单点价格，每个 symbol 至多一条
type Snapshot struct {
	Symbol    Symbol
	Price     decimal.Decimal
	UpdatedAt time.Time
}

// PriceSource 快照价格取值方式
type PriceSource string

const (
	// PriceSourceMid 取买卖中间价（默认）
	PriceSourceMid PriceSource = "mid"
	// PriceSourceBid 取买一价
	PriceSourceBid PriceSource = "bid"
)

// ParsePriceSource 解析价格来源
func ParsePriceSource(s string) (PriceSource, error) {
	switch PriceSource(s) {
	case PriceSourceMid, PriceSourceBid:
		return PriceSource(s), nil
	case "":
		return PriceSourceMid, nil
	default:
		return "", fmt.Errorf("unknown snapshot price source: %q", s)
	}
}

// PriceOf 按来源从报价中取快照价格
func (p PriceSource) PriceOf(q Quote) decimal.Decimal {
	if p == PriceSourceBid {
		return q.BidPrice
	}
	return q.MidPrice()
}

// SnapshotRepository 快照仓储接口
type SnapshotRepository interface {
	// FindBySymbol 不存在时返回 nil, nil
	FindBySymbol(ctx context.Context, symbol Symbol) (*Snapshot, error)
	// Upsert 按 symbol 原子插入或覆盖
	Upsert(ctx context.Context, snapshot *Snapshot) error
}
