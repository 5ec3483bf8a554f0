package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
	"github.com/tradebot/gotrade/internal/wake"
)

var orderLog = logrus.WithField("component", "order_registry")

// ErrDuplicateKey 同一订单键重复提交（调用方逻辑错误，第二次提交被丢弃）
var ErrDuplicateKey = fmt.Errorf("duplicate order key")

// priceTolerance 调单时的价格变化容差
// 价格只有超出该容差才视为变化并重新设置，避免浮点噪声导致的重复传输。
var priceTolerance = decimal.NewFromFloat(0.0001)

// trackedOrder 注册表内部的订单条目
// spec 是保留的出站表示（adjust 原地修改后重传），state 由回调线程写。
type trackedOrder struct {
	spec  domain.OrderSpec
	state domain.OrderState
	wake  *wake.Signal // 归属策略线程提供的唤醒句柄（每单一个，不共享）
}

// OrderRegistry 订单生命周期注册表
//
// 提交/调单/撤单由策略线程发起；状态对账由回调线程完成。两类独立的
// 回调（粗粒度 order state 与细粒度 status/fill）都可能更新共享输出
// 字段，全部在注册表监视器下进行。订单永不删除：终态订单保留可查（审计）。
type OrderRegistry struct {
	gateway   *venue.Client
	sessionID int32 // 本会话 ID，用于过滤跨会话串流的状态回调

	mu      sync.Mutex
	byKey   map[int64]*trackedOrder
	byVenue map[int64]int64 // 交易所订单 ID -> 应用侧订单键
	keys    []int64         // 提交顺序（只追加）
}

// NewOrderRegistry 创建订单注册表
func NewOrderRegistry(gateway *venue.Client, sessionID int32) *OrderRegistry {
	return &OrderRegistry{
		gateway:   gateway,
		sessionID: sessionID,
		byKey:     make(map[int64]*trackedOrder),
		byVenue:   make(map[int64]int64),
	}
}

// Submit 提交新订单
// 键已存在时拒绝：记日志、不改注册表、返回 ErrDuplicateKey（不是异常）。
// 接受后创建订单、经网关锁内传输、记录交易所订单 ID，初始化
// status=PENDING、filled=0、remaining=总量。
func (r *OrderRegistry) Submit(spec domain.OrderSpec, wakeSig *wake.Signal) error {
	if spec.Key <= 0 {
		return fmt.Errorf("invalid order key: %d", spec.Key)
	}
	if wakeSig == nil {
		wakeSig = wake.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[spec.Key]; exists {
		orderLog.Warnf("重复提交被丢弃: key=%d", spec.Key)
		return ErrDuplicateKey
	}

	// 持有注册表监视器完成传输：交易所订单 ID 的 byVenue 登记必须先于
	// 该单的第一条回调被处理（回调线程同样要过这把锁）。
	venueOrderID, err := r.gateway.PlaceOrder(spec)
	if err != nil {
		orderLog.Errorf("订单传输失败: key=%d err=%v", spec.Key, err)
		return err
	}

	tracked := &trackedOrder{
		spec: spec,
		wake: wakeSig,
		state: domain.OrderState{
			Status:       domain.OrderStatusPending,
			FilledQty:    0,
			RemainingQty: spec.Quantity,
			VenueOrderID: venueOrderID,
			UpdatedAt:    time.Now(),
		},
	}
	r.byKey[spec.Key] = tracked
	r.byVenue[venueOrderID] = spec.Key
	r.keys = append(r.keys, spec.Key)

	orderLog.Infof("订单已提交: key=%d venueID=%d side=%s qty=%.2f limit=%s",
		spec.Key, venueOrderID, spec.Side, spec.Quantity, spec.LimitPrice)
	return nil
}

// Adjust 原地修改订单并重传（真正的 modify，复用原交易所订单 ID）
// 键不存在时记警告后返回（调用方应先检查就绪状态）。价格只有超出
// 容差才重新设置；数量/分批参数变化总是生效。没有任何字段变化时
// 跳过重传。
func (r *OrderRegistry) Adjust(key int64, quantity float64, price decimal.Decimal, scale *domain.ScaleParams) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracked, ok := r.byKey[key]
	if !ok {
		orderLog.Warnf("调单目标不存在，忽略: key=%d", key)
		return
	}

	changed := false
	if quantity > 0 && quantity != tracked.spec.Quantity {
		tracked.spec.Quantity = quantity
		changed = true
	}
	if price.Sub(tracked.spec.LimitPrice).Abs().GreaterThan(priceTolerance) {
		tracked.spec.LimitPrice = price
		changed = true
	}
	if scale != nil {
		tracked.spec.Scale = scale
		changed = true
	}
	if !changed {
		orderLog.Debugf("调单无实际变化，跳过重传: key=%d", key)
		return
	}

	if err := r.gateway.ModifyOrder(tracked.state.VenueOrderID, tracked.spec); err != nil {
		orderLog.Errorf("调单重传失败: key=%d venueID=%d err=%v", key, tracked.state.VenueOrderID, err)
		return
	}
	orderLog.Infof("订单已调整: key=%d venueID=%d qty=%.2f limit=%s",
		key, tracked.state.VenueOrderID, tracked.spec.Quantity, tracked.spec.LimitPrice)
}

// Cancel 发起撤单请求
// 撤销只是建议性的：请求在任何确认之前就返回，订单在后续状态回调确认
// 前保持非终态。键不存在时记警告并返回 false。
func (r *OrderRegistry) Cancel(key int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracked, ok := r.byKey[key]
	if !ok {
		orderLog.Warnf("撤单目标不存在，忽略: key=%d", key)
		return false
	}
	if tracked.state.Status.IsTerminal() {
		orderLog.Debugf("订单已到终态，撤单跳过: key=%d status=%s", key, tracked.state.Status)
		return false
	}

	if err := r.gateway.CancelOrder(tracked.state.VenueOrderID); err != nil {
		orderLog.Errorf("撤单请求失败: key=%d venueID=%d err=%v", key, tracked.state.VenueOrderID, err)
		return false
	}
	orderLog.Infof("撤单已发送（等待回调确认）: key=%d venueID=%d", key, tracked.state.VenueOrderID)
	return true
}

// Get 返回订单只读快照
func (r *OrderRegistry) Get(key int64) (domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tracked, ok := r.byKey[key]
	if !ok {
		return domain.Order{}, false
	}
	return domain.Order{Spec: tracked.spec, State: tracked.state}, true
}

// Size 注册表订单数量
func (r *OrderRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Snapshot 按提交顺序导出全部订单快照（watchdog 只读诊断）
func (r *OrderRegistry) Snapshot() []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(r.keys))
	for _, key := range r.keys {
		t := r.byKey[key]
		out = append(out, domain.Order{Spec: t.spec, State: t.state})
	}
	return out
}

// OrderState 粗粒度状态回调（回调线程）
func (r *OrderRegistry) OrderState(venueOrderID int64, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracked := r.lookupByVenue(venueOrderID)
	if tracked == nil {
		return
	}
	r.applyUpdate(tracked, parseVenueStatus(state), -1, -1, 0, 0)
}

// OrderStatus 细粒度状态/成交回调（回调线程）
// 携带外部会话 ID 的回调（例如共享同一交易所连接池的另一实例）被丢弃，
// 不做合并。
func (r *OrderRegistry) OrderStatus(u venue.OrderStatusUpdate) {
	if u.SessionID != r.sessionID {
		orderLog.Debugf("丢弃跨会话状态回调: venueID=%d session=%d (本会话=%d)",
			u.VenueOrderID, u.SessionID, r.sessionID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tracked := r.lookupByVenue(u.VenueOrderID)
	if tracked == nil {
		return
	}
	r.applyUpdate(tracked, parseVenueStatus(u.Status), u.FilledQty, u.RemainingQty, u.AvgFillPrice, u.LastFillPrice)
}

// OrderError 交易所错误回调（回调线程）
// 分级（资讯类 vs 需处置类）后记日志并转发给订单的监听方；无论哪一级
// 都不会作为异常抛出回调线程。
func (r *OrderRegistry) OrderError(venueOrderID int64, code int, message string) {
	r.mu.Lock()
	tracked := r.lookupByVenue(venueOrderID)
	if tracked != nil {
		tracked.state.LastError = fmt.Sprintf("%d: %s", code, message)
		tracked.state.UpdatedAt = time.Now()
	}
	r.mu.Unlock()

	if isInformationalCode(code) {
		orderLog.Infof("交易所提示: venueID=%d code=%d msg=%s", venueOrderID, code, message)
	} else {
		orderLog.Warnf("交易所错误: venueID=%d code=%d msg=%s", venueOrderID, code, message)
	}

	if tracked != nil {
		tracked.wake.Notify()
	}
}

// lookupByVenue 按交易所订单 ID 查条目（须持 mu）
func (r *OrderRegistry) lookupByVenue(venueOrderID int64) *trackedOrder {
	key, ok := r.byVenue[venueOrderID]
	if !ok {
		orderLog.Debugf("收到未登记订单的回调: venueID=%d", venueOrderID)
		return nil
	}
	return r.byKey[key]
}

// applyUpdate 把一次回调合并进订单状态（须持 mu）
//
// 对账规则：
//   - 覆盖前先快照 filled，用于计算「有实际变化」谓词；
//   - 成交量单调不减：小于已记录值的 filled 被忽略；
//   - 状态只前进：终态（FILLED/CANCELLED）永不回退，之后的回调只补账面字段；
//   - 状态转入终态、或 filled 相对快照发生变化时，唤醒订单监听方。
//
// filledQty/remainingQty 传 -1 表示该回调形态不携带此字段。
func (r *OrderRegistry) applyUpdate(tracked *trackedOrder, status domain.OrderStatus, filledQty, remainingQty, avgPrice, lastPrice float64) {
	prevFilled := tracked.state.FilledQty

	becameTerminal := false
	if status != domain.OrderStatusUnknown && tracked.state.Status.CanAdvanceTo(status) {
		tracked.state.Status = status
		becameTerminal = status.IsTerminal()
	}

	if filledQty >= 0 && filledQty > tracked.state.FilledQty {
		tracked.state.FilledQty = filledQty
	}
	if remainingQty >= 0 {
		tracked.state.RemainingQty = remainingQty
	}
	if avgPrice > 0 {
		tracked.state.AvgFillPrice = decimal.NewFromFloat(avgPrice)
	}
	if lastPrice > 0 {
		tracked.state.LastFillPrice = decimal.NewFromFloat(lastPrice)
	}
	tracked.state.UpdatedAt = time.Now()

	if becameTerminal || tracked.state.FilledQty != prevFilled {
		orderLog.Debugf("订单有变化，唤醒监听方: key=%d status=%s filled=%.2f (prev=%.2f)",
			tracked.spec.Key, tracked.state.Status, tracked.state.FilledQty, prevFilled)
		tracked.wake.Notify()
	}
}

// parseVenueStatus 交易所状态字符串 → 内部状态
func parseVenueStatus(s string) domain.OrderStatus {
	switch s {
	case "PendingSubmit", "PreSubmitted", "ApiPending", "PendingCancel":
		return domain.OrderStatusPending
	case "Submitted":
		return domain.OrderStatusLive
	case "Filled":
		return domain.OrderStatusFilled
	case "Cancelled", "ApiCancelled", "Inactive":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusUnknown
	}
}

// isInformationalCode 资讯类错误码判定
// 2100~2200 区间是交易所的连接/数据源提示，不需要处置。
func isInformationalCode(code int) bool {
	return code >= 2100 && code < 2200
}
