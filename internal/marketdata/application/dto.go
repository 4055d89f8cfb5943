package application

import (
	"sort"
	"time"

	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
)

// PriceDTO 最新价
type PriceDTO struct {
	Symbol    string    `json:"symbol"`
	BidPrice  string    `json:"bidPrice"`
	AskPrice  string    `json:"askPrice"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotDTO 持久化快照
type SnapshotDTO struct {
	Symbol    string    `json:"symbol"`
	Price     string    `json:"price"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StreamStatusDTO 单个 symbol 的连接状态
type StreamStatusDTO struct {
	Symbol    string    `json:"symbol"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Since     time.Time `json:"since"`
}

// NewStreamStatusDTOs 按 symbol 排序转换连接状态
func NewStreamStatusDTOs(statuses map[domain.Symbol]domain.ConnectionStatus) []StreamStatusDTO {
	out := make([]StreamStatusDTO, 0, len(statuses))
	for sym, st := range statuses {
		out = append(out, StreamStatusDTO{
			Symbol:    sym.String(),
			State:     st.State.String(),
			Attempts:  st.Attempts,
			LastError: st.LastError,
			SessionID: st.SessionID,
			Since:     st.Since,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
