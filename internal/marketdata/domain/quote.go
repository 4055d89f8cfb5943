package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Quote 某一时刻观察到的买一/卖一报价（值对象）
// 买卖价之间不做校验，行情源按原样信任。
type Quote struct {
	Symbol     Symbol
	BidPrice   decimal.Decimal
	AskPrice   decimal.Decimal
	ObservedAt time.Time
}

// NewQuote 创建报价，symbol 会被归一化
func NewQuote(symbol string, bid, ask decimal.Decimal, observedAt time.Time) Quote {
	return Quote{
		Symbol:     NormalizeSymbol(symbol),
		BidPrice:   bid,
		AskPrice:   ask,
		ObservedAt: observedAt,
	}
}

// MidPrice 获取中间价
func (q Quote) MidPrice() decimal.Decimal {
	return q.BidPrice.Add(q.AskPrice).Div(two)
}

// Spread 获取买卖价差
func (q Quote) Spread() decimal.Decimal {
	return q.AskPrice.Sub(q.BidPrice)
}

// Equal 按值比较
func (q Quote) Equal(o Quote) bool {
	return q.Symbol == o.Symbol &&
		q.BidPrice.Equal(o.BidPrice) &&
		q.AskPrice.Equal(o.AskPrice) &&
		q.ObservedAt.Equal(o.ObservedAt)
}
