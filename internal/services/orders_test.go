package services

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
	"github.com/tradebot/gotrade/internal/venue/venuetest"
	"github.com/tradebot/gotrade/internal/wake"
)

const testSessionID int32 = 7

func newTestOrderRegistry() (*OrderRegistry, *venuetest.FakeSession) {
	fake := venuetest.New()
	gateway := venue.NewClient(fake, 100)
	return NewOrderRegistry(gateway, testSessionID), fake
}

func testSpec(key int64) domain.OrderSpec {
	return domain.OrderSpec{
		Key:        key,
		Side:       domain.SideBuy,
		Contract:   domain.NewDescriptor(domain.Equity("AAPL")),
		Exchange:   "SMART",
		Quantity:   100,
		LimitPrice: decimal.NewFromFloat(184.50),
	}
}

func TestSubmitInitialState(t *testing.T) {
	r, fake := newTestOrderRegistry()

	if err := r.Submit(testSpec(1), wake.New()); err != nil {
		t.Fatalf("提交失败: %v", err)
	}

	order, ok := r.Get(1)
	if !ok {
		t.Fatal("提交后应可查询")
	}
	if order.State.Status != domain.OrderStatusPending {
		t.Errorf("初始状态应为 PENDING: got %s", order.State.Status)
	}
	if order.State.FilledQty != 0 || order.State.RemainingQty != 100 {
		t.Errorf("初始数量错误: filled=%.1f remaining=%.1f",
			order.State.FilledQty, order.State.RemainingQty)
	}
	if order.State.VenueOrderID != 100 {
		t.Errorf("交易所订单 ID 应从种子分配: got %d", order.State.VenueOrderID)
	}
	if fake.PlaceCount() != 1 {
		t.Errorf("应传输 1 次: got %d", fake.PlaceCount())
	}
}

func TestSubmitDuplicateKeyRejected(t *testing.T) {
	r, fake := newTestOrderRegistry()

	_ = r.Submit(testSpec(1), wake.New())
	err := r.Submit(testSpec(1), wake.New())
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("重复键应返回 ErrDuplicateKey: got %v", err)
	}
	if fake.PlaceCount() != 1 {
		t.Errorf("重复提交不应传输: got %d", fake.PlaceCount())
	}
	if r.Size() != 1 {
		t.Errorf("重复提交不应改注册表: got %d", r.Size())
	}
}

func TestAdjustUnknownKeyNoop(t *testing.T) {
	r, fake := newTestOrderRegistry()

	r.Adjust(99, 200, decimal.NewFromFloat(185), nil)
	if fake.PlaceCount() != 0 {
		t.Error("不存在的键不应触发传输")
	}
}

func TestAdjustReusesVenueOrderID(t *testing.T) {
	r, fake := newTestOrderRegistry()
	_ = r.Submit(testSpec(1), wake.New())

	r.Adjust(1, 0, decimal.NewFromFloat(185.00), nil)
	if fake.PlaceCount() != 2 {
		t.Fatalf("调价应重传: got %d", fake.PlaceCount())
	}
	if fake.Places[1].VenueOrderID != fake.Places[0].VenueOrderID {
		t.Errorf("调单必须复用交易所订单 ID: %d vs %d",
			fake.Places[1].VenueOrderID, fake.Places[0].VenueOrderID)
	}
}

func TestAdjustWithinToleranceSkipped(t *testing.T) {
	r, fake := newTestOrderRegistry()
	_ = r.Submit(testSpec(1), wake.New())

	// 容差内的价格抖动不应触发重传
	r.Adjust(1, 0, decimal.NewFromFloat(184.50005), nil)
	if fake.PlaceCount() != 1 {
		t.Errorf("容差内调价应跳过: got %d 次传输", fake.PlaceCount())
	}
}

func TestOrderStatusMonotonicFill(t *testing.T) {
	r, _ := newTestOrderRegistry()
	_ = r.Submit(testSpec(1), wake.New())

	r.OrderStatus(venue.OrderStatusUpdate{
		VenueOrderID: 100, Status: "Submitted", FilledQty: 50, RemainingQty: 50, SessionID: testSessionID,
	})
	// 乱序到达的旧回调：filled 更小，必须忽略
	r.OrderStatus(venue.OrderStatusUpdate{
		VenueOrderID: 100, Status: "Submitted", FilledQty: 30, RemainingQty: 70, SessionID: testSessionID,
	})

	order, _ := r.Get(1)
	if order.State.FilledQty != 50 {
		t.Errorf("成交量必须单调不减: got %.1f", order.State.FilledQty)
	}
}

func TestOrderStatusTerminalStable(t *testing.T) {
	r, _ := newTestOrderRegistry()
	_ = r.Submit(testSpec(1), wake.New())

	r.OrderStatus(venue.OrderStatusUpdate{
		VenueOrderID: 100, Status: "Filled", FilledQty: 100, RemainingQty: 0,
		AvgFillPrice: 184.55, SessionID: testSessionID,
	})
	// 迟到的回调不能把终态拉回
	r.OrderState(100, "Submitted")
	r.OrderStatus(venue.OrderStatusUpdate{
		VenueOrderID: 100, Status: "Cancelled", SessionID: testSessionID,
	})

	order, _ := r.Get(1)
	if order.State.Status != domain.OrderStatusFilled {
		t.Errorf("终态必须稳定: got %s", order.State.Status)
	}
}

func TestOrderStatusCrossSessionDiscarded(t *testing.T) {
	r, _ := newTestOrderRegistry()
	_ = r.Submit(testSpec(1), wake.New())

	r.OrderStatus(venue.OrderStatusUpdate{
		VenueOrderID: 100, Status: "Filled", FilledQty: 100, SessionID: testSessionID + 1,
	})

	order, _ := r.Get(1)
	if order.State.Status != domain.OrderStatusPending || order.State.FilledQty != 0 {
		t.Errorf("跨会话回调必须丢弃: status=%s filled=%.1f",
			order.State.Status, order.State.FilledQty)
	}
}

func TestWakeOnFillChange(t *testing.T) {
	r, _ := newTestOrderRegistry()
	w := wake.New()
	_ = r.Submit(testSpec(1), w)

	r.OrderStatus(venue.OrderStatusUpdate{
		VenueOrderID: 100, Status: "Submitted", FilledQty: 50, RemainingQty: 50, SessionID: testSessionID,
	})
	if !w.Wait(100 * time.Millisecond) {
		t.Error("成交量变化应唤醒监听方")
	}

	// 无实际变化的回调不应唤醒
	r.OrderStatus(venue.OrderStatusUpdate{
		VenueOrderID: 100, Status: "Submitted", FilledQty: 50, RemainingQty: 50, SessionID: testSessionID,
	})
	if w.Wait(50 * time.Millisecond) {
		t.Error("无变化的回调不应唤醒")
	}
}

func TestWakeOnTerminal(t *testing.T) {
	r, _ := newTestOrderRegistry()
	w := wake.New()
	_ = r.Submit(testSpec(1), w)

	r.OrderState(100, "Cancelled")
	if !w.Wait(100 * time.Millisecond) {
		t.Error("转入终态应唤醒监听方")
	}
	order, _ := r.Get(1)
	if order.State.Status != domain.OrderStatusCancelled {
		t.Errorf("状态应为 CANCELLED: got %s", order.State.Status)
	}
}

func TestOrderErrorRecordedAndNotifies(t *testing.T) {
	r, _ := newTestOrderRegistry()
	w := wake.New()
	_ = r.Submit(testSpec(1), w)

	// 资讯类（2100~2199）与处置类都要记录并唤醒，且不改变订单状态
	r.OrderError(100, 2104, "Market data farm connection is OK")
	if !w.Wait(100 * time.Millisecond) {
		t.Error("错误回调应唤醒监听方")
	}

	r.OrderError(100, 201, "Order rejected")
	order, _ := r.Get(1)
	if order.State.LastError != "201: Order rejected" {
		t.Errorf("错误记录不正确: %q", order.State.LastError)
	}
	if order.State.Status != domain.OrderStatusPending {
		t.Errorf("错误回调不应改状态: got %s", order.State.Status)
	}
}

func TestCancelAdvisory(t *testing.T) {
	r, fake := newTestOrderRegistry()
	_ = r.Submit(testSpec(1), wake.New())

	if !r.Cancel(1) {
		t.Error("非终态订单的撤单应发送")
	}
	if len(fake.Cancels) != 1 || fake.Cancels[0] != 100 {
		t.Errorf("撤单传输错误: %v", fake.Cancels)
	}

	// 撤单是建议性的：状态在回调确认前保持非终态
	order, _ := r.Get(1)
	if order.State.Status.IsTerminal() {
		t.Error("撤单请求不应同步改状态")
	}

	r.OrderState(100, "Cancelled")
	if r.Cancel(1) {
		t.Error("终态订单撤单应跳过")
	}
	if r.Cancel(99) {
		t.Error("不存在的键撤单应返回 false")
	}
}

func TestParseVenueStatus(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"PendingSubmit": domain.OrderStatusPending,
		"PreSubmitted":  domain.OrderStatusPending,
		"PendingCancel": domain.OrderStatusPending,
		"Submitted":     domain.OrderStatusLive,
		"Filled":        domain.OrderStatusFilled,
		"Cancelled":     domain.OrderStatusCancelled,
		"ApiCancelled":  domain.OrderStatusCancelled,
		"Inactive":      domain.OrderStatusCancelled,
		"SomethingNew":  domain.OrderStatusUnknown,
	}
	for in, want := range cases {
		if got := parseVenueStatus(in); got != want {
			t.Errorf("parseVenueStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
