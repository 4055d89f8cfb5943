// Package stream 负责与行情 WebSocket 的连接管理与帧解析
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
)

// BookTickerMessage bookTicker 推送帧。
// B/A/u 必须显式声明，否则 encoding/json 的大小写不敏感匹配会把数量字段写进 b/a。
// 价格字段同时接受字符串与数字形式。
type BookTickerMessage struct {
	UpdateID json.RawMessage  `json:"u"`
	Symbol   string           `json:"s"`
	BidPrice *decimal.Decimal `json:"b"`
	BidQty   json.RawMessage  `json:"B"`
	AskPrice *decimal.Decimal `json:"a"`
	AskQty   json.RawMessage  `json:"A"`
}

// Translator 将原始帧转换为领域报价
type Translator struct {
	now func() time.Time
}

// NewTranslator 创建转换器，now 为空时使用 time.Now
func NewTranslator(now func() time.Time) *Translator {
	if now == nil {
		now = time.Now
	}
	return &Translator{now: now}
}

// Translate 解析一帧。失败时返回包装了 domain.ErrMalformedFrame 的错误。
func (t *Translator) Translate(raw []byte) (domain.Quote, error) {
	var msg BookTickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.Quote{}, fmt.Errorf("%w: invalid json: %v", domain.ErrMalformedFrame, err)
	}

	symbol := domain.NormalizeSymbol(msg.Symbol)
	if symbol.IsEmpty() {
		return domain.Quote{}, fmt.Errorf("%w: missing symbol", domain.ErrMalformedFrame)
	}

	if msg.BidPrice == nil {
		return domain.Quote{}, fmt.Errorf("%w: missing field %q", domain.ErrMalformedFrame, "b")
	}
	if msg.AskPrice == nil {
		return domain.Quote{}, fmt.Errorf("%w: missing field %q", domain.ErrMalformedFrame, "a")
	}

	return domain.Quote{
		Symbol:     symbol,
		BidPrice:   *msg.BidPrice,
		AskPrice:   *msg.AskPrice,
		ObservedAt: t.now(),
	}, nil
}
