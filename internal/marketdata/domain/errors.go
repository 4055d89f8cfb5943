package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame 行情帧缺字段或无法解析
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrConnectionFailure 建连失败
	ErrConnectionFailure = errors.New("connection failure")
	// ErrConnectionLost 已建立的连接断开
	ErrConnectionLost = errors.New("connection lost")
	// ErrCacheUnavailable 缓存后端不可用
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrPriceNotFound 缓存中没有该 symbol 的最新价
	ErrPriceNotFound = errors.New("price not found")
	// ErrSnapshotPersist 快照写入失败
	ErrSnapshotPersist = errors.New("snapshot persist failure")
	// ErrSnapshotNotFound 没有持久化的快照
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// PriceNotFoundError 携带查询 symbol 的未找到错误
type PriceNotFoundError struct {
	Symbol string
}

func (e *PriceNotFoundError) Error() string {
	return fmt.Sprintf("price not found: symbol=%s", e.Symbol)
}

// Is 使 errors.Is(err, ErrPriceNotFound) 成立
func (e *PriceNotFoundError) Is(target error) bool {
	return target == ErrPriceNotFound
}

// NewPriceNotFoundError 创建未找到错误
func NewPriceNotFoundError(symbol string) error {
	return &PriceNotFoundError{Symbol: symbol}
}
