package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus 订单状态
// 状态机只允许前进：UNKNOWN → PENDING → LIVE → {FILLED | CANCELLED}。
// 进入终态后后续回调只能补记账面字段（例如迟到的佣金明细），不能回退状态。
type OrderStatus string

const (
	OrderStatusUnknown   OrderStatus = "UNKNOWN"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusLive      OrderStatus = "LIVE"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Rank 状态序（用于判断是否允许前进）
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusPending:
		return 1
	case OrderStatusLive:
		return 2
	case OrderStatusFilled, OrderStatusCancelled:
		return 3
	default:
		return 0
	}
}

// IsTerminal 是否为终态
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// CanAdvanceTo 是否允许从当前状态前进到 next
// 终态之间不允许互换（FILLED 不能变 CANCELLED，反之亦然）。
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.Rank() > s.Rank()
}

// ScaleParams 分批挂单参数（可选）
// 大单拆分为首块 + 后续块逐级挂出，价格按增量递进。
type ScaleParams struct {
	InitialSize    float64         // 首块数量
	SubsequentSize float64         // 后续每块数量
	PriceIncrement decimal.Decimal // 每级价格增量
	AdjustAmount   decimal.Decimal // 自动调价幅度（可选）
	AdjustInterval time.Duration   // 自动调价间隔（可选）
}

// OrderSpec 订单输入参数（提交后不可变）
// Key 由应用侧分配：全局唯一且单调递增，永不复用。
type OrderSpec struct {
	Key        int64              // 应用侧订单键
	Side       Side               // 方向
	Contract   ContractDescriptor // 标的/组合描述
	Exchange   string             // 交易所路由
	Quantity   float64            // 总数量
	LimitPrice decimal.Decimal    // 限价
	Scale      *ScaleParams       // 分批参数（可选）
	Reference  string             // 自由文本备注
}

// OrderState 订单输出状态（可变，回调线程拥有写权）
type OrderState struct {
	Status        OrderStatus     // 当前状态
	FilledQty     float64         // 已成交数量（单调不减）
	RemainingQty  float64         // 剩余数量
	AvgFillPrice  decimal.Decimal // 平均成交价
	LastFillPrice decimal.Decimal // 最近一笔成交价
	VenueOrderID  int64           // 交易所订单 ID
	LastError     string          // 最近一条交易所错误（记录用）
	UpdatedAt     time.Time       // 最后更新时间
}

// Order 订单完整视图（spec + state 的只读快照）
// GetOrder 返回的是副本，调用方持有它不需要任何锁。
type Order struct {
	Spec  OrderSpec
	State OrderState
}

// IsDone 订单是否已到终态
func (o Order) IsDone() bool {
	return o.State.Status.IsTerminal()
}
