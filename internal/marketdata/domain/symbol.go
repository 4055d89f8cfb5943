// Package domain 行情采集服务的领域模型、值对象、快照策略与仓储接口
package domain

import "strings"

// Symbol 归一化后的交易对标识（去空白、大写），如 BTCUSDT
type Symbol string

// NormalizeSymbol 去除首尾空白并转大写，结果为空表示非法
func NormalizeSymbol(raw string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsEmpty 判断是否为空
func (s Symbol) IsEmpty() bool {
	return s == ""
}

func (s Symbol) String() string {
	return string(s)
}
