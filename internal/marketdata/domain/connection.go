package domain

import "time"

// ConnectionState 单个 symbol 的行情连接状态，仅由连接管理器驱动
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ConnectionStatus 连接状态的只读快照
type ConnectionStatus struct {
	Symbol    Symbol
	State     ConnectionState
	Attempts  int
	LastError string
	SessionID string
	Since     time.Time
}
