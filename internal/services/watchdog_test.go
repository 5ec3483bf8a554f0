package services

import (
	"context"
	"testing"
	"time"
)

func newTestWatchdog(t *testing.T, cfg WatchdogConfig) *Watchdog {
	t.Helper()
	gateway, _ := newTestGateway()
	resolver := NewSecurityResolver(gateway)
	feeds := NewFeedRegistry(gateway, resolver)
	orders := NewOrderRegistry(gateway, 1)
	w, err := NewWatchdog(cfg, gateway, resolver, feeds, orders, NewAccountCache())
	if err != nil {
		t.Fatalf("创建 watchdog 失败: %v", err)
	}
	return w
}

func TestNewWatchdogBadAnchor(t *testing.T) {
	gateway, _ := newTestGateway()
	cfg := DefaultWatchdogConfig()
	cfg.Anchor = "9点半"
	_, err := NewWatchdog(cfg, gateway, NewSecurityResolver(gateway), nil, nil, NewAccountCache())
	if err == nil {
		t.Error("非法锚点应报错")
	}
}

func TestIntervalAtAdaptive(t *testing.T) {
	w := newTestWatchdog(t, DefaultWatchdogConfig())
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.Local)
	anchor := day.Add(9*time.Hour + 30*time.Minute)

	cases := []struct {
		at   time.Time
		want time.Duration
		name string
	}{
		{anchor, 2 * time.Second, "锚点时刻"},
		{anchor.Add(10 * time.Second), 2 * time.Second, "锚点后 10s（窄窗口内）"},
		{anchor.Add(-10 * time.Second), 2 * time.Second, "锚点前 10s（窄窗口内）"},
		{anchor.Add(15 * time.Second), 2 * time.Second, "窄窗口边界"},
		{anchor.Add(60 * time.Second), 30 * time.Second, "锚点后 1 分钟"},
		{anchor.Add(-5 * time.Minute), 30 * time.Second, "锚点前 5 分钟"},
		{anchor.Add(200 * time.Second), 5 * time.Minute, "远离锚点"},
		{anchor.Add(4 * time.Hour), 5 * time.Minute, "盘中"},
	}
	for _, c := range cases {
		if got := w.intervalAt(c.at); got != c.want {
			t.Errorf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestIntervalOrdering(t *testing.T) {
	// 窄窗口内的间隔必须短于远离锚点后的间隔
	w := newTestWatchdog(t, DefaultWatchdogConfig())
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.Local)
	anchor := day.Add(9*time.Hour + 30*time.Minute)

	near := w.intervalAt(anchor.Add(5 * time.Second))
	far := w.intervalAt(anchor.Add(10 * time.Minute))
	if near >= far {
		t.Errorf("窄窗口间隔应短于远离锚点间隔: near=%v far=%v", near, far)
	}
}

func TestReportEmptyRegistries(t *testing.T) {
	w := newTestWatchdog(t, DefaultWatchdogConfig())
	// 空注册表上的报告不应 panic
	w.report(false)
	w.report(true)
}

func TestRunFinalSnapshotOnCancel(t *testing.T) {
	cfg := DefaultWatchdogConfig()
	cfg.MediumInterval = time.Hour // 确保周期内不触发普通报告
	cfg.SettlePause = 10 * time.Millisecond
	w := newTestWatchdog(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("取消后 watchdog 未退出")
	}
}
