package domain

import "github.com/shopspring/decimal"

// changeRateScale 变动率保留的小数位数
const changeRateScale = 6

// SnapshotPolicy 快照更新策略：价格变动率达到阈值时才落库
type SnapshotPolicy struct {
	threshold decimal.Decimal
}

// NewSnapshotPolicy 创建策略，threshold 为小数形式（0.01 即 1%）
func NewSnapshotPolicy(threshold decimal.Decimal) SnapshotPolicy {
	return SnapshotPolicy{threshold: threshold}
}

// Threshold 返回阈值
func (p SnapshotPolicy) Threshold() decimal.Decimal {
	return p.threshold
}

// ShouldUpdate 判断新价格是否需要覆盖上次快照。
// 无快照或上次价格 <= 0 时总是更新；否则 |new-last|/last 四舍五入到 6 位后与阈值比较。
func (p SnapshotPolicy) ShouldUpdate(lastSnapshotPrice *decimal.Decimal, newPrice decimal.Decimal) bool {
	if lastSnapshotPrice == nil || !lastSnapshotPrice.IsPositive() {
		return true
	}
	last := *lastSnapshotPrice
	changeRate := newPrice.Sub(last).Abs().DivRound(last, changeRateScale)
	return changeRate.GreaterThanOrEqual(p.threshold)
}
