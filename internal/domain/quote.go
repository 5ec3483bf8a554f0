package domain

import "time"

// HaltedThreshold 停牌指标阈值
// 行情回调中的 halted 字段是一个数值指标，大于该阈值视为停牌。
const HaltedThreshold = 0.5

// Quote 实时行情快照
// 由回调线程持续更新，策略线程只读。字段合并规则见 FeedRegistry。
type Quote struct {
	Bid        float64   // 买一价
	Ask        float64   // 卖一价
	Last       float64   // 最新成交价（close 仅在从未见过 last 时作为回退）
	ImpliedVol float64   // 隐含波动率
	Halted     bool      // 是否停牌
	UpdatedAt  time.Time // 最后更新时间

	// HasLast 标记是否见过真正的 last tick
	// 用于 last/close 的优先级合并：一旦见过 last，close 不再覆盖。
	HasLast bool
}

// TickField 行情字段类型（回调线程按字段推送增量）
type TickField int

const (
	TickBid TickField = iota + 1
	TickAsk
	TickLast
	TickClose
	TickImpliedVol
	TickHalted
)

// String 字段名（用于日志）
func (f TickField) String() string {
	switch f {
	case TickBid:
		return "bid"
	case TickAsk:
		return "ask"
	case TickLast:
		return "last"
	case TickClose:
		return "close"
	case TickImpliedVol:
		return "implied_vol"
	case TickHalted:
		return "halted"
	default:
		return "unknown"
	}
}
