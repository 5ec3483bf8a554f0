package env

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
	"github.com/tradebot/gotrade/internal/venue/venuetest"
	"github.com/tradebot/gotrade/internal/wake"
	"github.com/tradebot/gotrade/pkg/config"
)

func newTestEnv(t *testing.T) (*Environment, *venuetest.FakeSession) {
	t.Helper()
	cfg := &config.Config{
		Venue: config.VenueConfig{
			Host: "127.0.0.1", Port: 7496, SessionID: 1, FirstOrderID: 100,
		},
		Watchdog: config.WatchdogConfig{
			Anchor: "09:30:00", ShortIntervalS: 2, MediumIntervalS: 30, LongIntervalS: 300,
		},
	}
	fake := venuetest.New()
	e, err := New(cfg, fake)
	if err != nil {
		t.Fatalf("组装环境失败: %v", err)
	}
	return e, fake
}

func TestNextOrderKeyMonotonic(t *testing.T) {
	e, _ := newTestEnv(t)
	a, b, c := e.NextOrderKey(), e.NextOrderKey(), e.NextOrderKey()
	if a != 1 || b != 2 || c != 3 {
		t.Errorf("订单 key 应从 1 单调递增: %d %d %d", a, b, c)
	}
}

// 端到端：回调经分发器路由到各注册表
func TestDispatcherRouting(t *testing.T) {
	e, fake := newTestEnv(t)
	if err := e.Connect(); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	h := fake.Handler()

	// 行情链路
	sec := domain.Equity("AAPL")
	if err := e.Feeds.Subscribe(sec); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	h.ContractResolved(sec.Key(), 265598)
	h.QuoteTick(sec.Key(), domain.TickBid, 184.5)
	h.QuoteTick(sec.Key(), domain.TickAsk, 184.7)

	if id, ok := e.Resolver.CachedID(sec); !ok || id != 265598 {
		t.Errorf("解析回调未到达缓存: (%d, %v)", id, ok)
	}
	if q, ok := e.Feeds.GetQuote(sec); !ok || q.Bid != 184.5 {
		t.Errorf("行情回调未到达注册表: %+v", q)
	}

	// 订单链路
	w := wake.New()
	spec := domain.OrderSpec{
		Key:        e.NextOrderKey(),
		Side:       domain.SideBuy,
		Contract:   domain.NewDescriptor(sec),
		Quantity:   100,
		LimitPrice: decimal.NewFromFloat(184.50),
	}
	if err := e.Orders.Submit(spec, w); err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	h.OrderStatus(venue.OrderStatusUpdate{
		VenueOrderID: 100, Status: "Filled", FilledQty: 100, RemainingQty: 0,
		AvgFillPrice: 184.55, SessionID: 1,
	})

	if !w.Wait(100 * time.Millisecond) {
		t.Error("成交回调应唤醒订单监听方")
	}
	order, _ := e.Orders.Get(spec.Key)
	if order.State.Status != domain.OrderStatusFilled {
		t.Errorf("订单回调未到达注册表: %s", order.State.Status)
	}

	// 账户链路
	h.AccountSummary("NetLiquidation", "100000.00", "USD")
	h.CurrentTime(time.Now().Unix())
	if e.Account.Summary()["NetLiquidation"] != "100000.00" {
		t.Error("账户回调未到达缓存")
	}
	if _, ok := e.Account.ClockSkew(); !ok {
		t.Error("校时回调未到达缓存")
	}
}
