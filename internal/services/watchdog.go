package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
)

var watchdogLog = logrus.WithField("component", "watchdog")

const (
	// anchorWindow 锚点附近的「窄窗口」半径
	anchorWindow = 15 * time.Second
	// farPastAnchor 超过该值视为「远离锚点」（已开盘很久）
	farPastAnchor = 185 * time.Second
)

// WatchdogConfig watchdog 配置
type WatchdogConfig struct {
	Anchor         string        // 每日锚点（墙钟时刻，如开盘 "09:30:00"）
	ShortInterval  time.Duration // 锚点窄窗口内的轮询间隔
	MediumInterval time.Duration // 其余时段的轮询间隔
	LongInterval   time.Duration // 远离锚点后的轮询间隔
	SettlePause    time.Duration // 关闭前的沉降等待（让在途撤单到达终态）
}

// DefaultWatchdogConfig 默认配置
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Anchor:         "09:30:00",
		ShortInterval:  2 * time.Second,
		MediumInterval: 30 * time.Second,
		LongInterval:   5 * time.Minute,
		SettlePause:    500 * time.Millisecond,
	}
}

// Watchdog 周期性只读诊断任务
//
// 每个周期在两个注册表各自的监视器下取快照并输出诊断日志；自身不持有
// 任何注册表锁跨越报告输出。轮询间隔随距离每日锚点（如开盘时刻）的
// 远近自适应：窄窗口内用短间隔，远离后用长间隔，其余用中间隔。
// 收到关闭信号后先短暂停顿（让在途撤单有机会到终态），再做恰好一次
// 最终快照/报告，然后退出。
type Watchdog struct {
	cfg      WatchdogConfig
	anchor   time.Duration // 锚点在一天内的偏移
	gateway  *venue.Client
	resolver *SecurityResolver
	feeds    *FeedRegistry
	orders   *OrderRegistry
	account  *AccountCache
}

// NewWatchdog 创建 watchdog
func NewWatchdog(cfg WatchdogConfig, gateway *venue.Client, resolver *SecurityResolver,
	feeds *FeedRegistry, orders *OrderRegistry, account *AccountCache) (*Watchdog, error) {

	anchor, err := parseAnchor(cfg.Anchor)
	if err != nil {
		return nil, err
	}
	if cfg.ShortInterval <= 0 {
		cfg.ShortInterval = DefaultWatchdogConfig().ShortInterval
	}
	if cfg.MediumInterval <= 0 {
		cfg.MediumInterval = DefaultWatchdogConfig().MediumInterval
	}
	if cfg.LongInterval <= 0 {
		cfg.LongInterval = DefaultWatchdogConfig().LongInterval
	}
	return &Watchdog{
		cfg:      cfg,
		anchor:   anchor,
		gateway:  gateway,
		resolver: resolver,
		feeds:    feeds,
		orders:   orders,
		account:  account,
	}, nil
}

// parseAnchor 解析 "HH:MM:SS" 为一天内的偏移
func parseAnchor(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// intervalAt 按当前时刻选择轮询间隔
//   - |now - 锚点| <= anchorWindow：短间隔
//   - now - 锚点 > farPastAnchor：长间隔
//   - 其余：中间隔
func (w *Watchdog) intervalAt(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sinceAnchor := now.Sub(midnight.Add(w.anchor))

	if sinceAnchor >= -anchorWindow && sinceAnchor <= anchorWindow {
		return w.cfg.ShortInterval
	}
	if sinceAnchor > farPastAnchor {
		return w.cfg.LongInterval
	}
	return w.cfg.MediumInterval
}

// Run 运行 watchdog 直到 ctx 取消
// 取消后执行沉降等待 + 恰好一次最终报告，然后返回。
func (w *Watchdog) Run(ctx context.Context) {
	watchdogLog.Infof("watchdog 已启动: anchor=%s short=%v medium=%v long=%v",
		w.cfg.Anchor, w.cfg.ShortInterval, w.cfg.MediumInterval, w.cfg.LongInterval)

	timer := time.NewTimer(w.intervalAt(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// 沉降：给在途撤单一点时间到达终态，再出最终报告
			time.Sleep(w.cfg.SettlePause)
			w.report(true)
			watchdogLog.Info("watchdog 已退出")
			return
		case <-timer.C:
			w.report(false)
			timer.Reset(w.intervalAt(time.Now()))
		}
	}
}

// report 产出一次只读诊断快照
// 各注册表的快照在其各自监视器下读取；报告输出不持任何锁。
func (w *Watchdog) report(final bool) {
	feeds := w.feeds.Snapshot()
	orders := w.orders.Snapshot()

	live, filled, cancelled := 0, 0, 0
	for _, o := range orders {
		switch o.State.Status {
		case domain.OrderStatusFilled:
			filled++
		case domain.OrderStatusCancelled:
			cancelled++
		default:
			live++
		}
	}

	entry := watchdogLog.WithFields(logrus.Fields{
		"connected": w.gateway.IsConnected(),
		"requests":  w.gateway.RequestsIssued(),
		"contracts": w.resolver.Size(),
		"feeds":     len(feeds),
		"orders":    len(orders),
		"open":      live,
		"filled":    filled,
		"cancelled": cancelled,
		"final":     final,
	})
	if skew, ok := w.account.ClockSkew(); ok {
		entry = entry.WithField("clock_skew", skew.String())
	}
	entry.Info("诊断快照")

	for _, f := range feeds {
		watchdogLog.Debugf("feed %s: bid=%.2f ask=%.2f last=%.2f halted=%v age=%s",
			f.Key, f.Quote.Bid, f.Quote.Ask, f.Quote.Last, f.Quote.Halted,
			time.Since(f.Quote.UpdatedAt).Truncate(time.Millisecond))
	}
	for _, o := range orders {
		watchdogLog.Debugf("order %d: venueID=%d status=%s filled=%.2f/%.2f avg=%s",
			o.Spec.Key, o.State.VenueOrderID, o.State.Status,
			o.State.FilledQty, o.Spec.Quantity, o.State.AvgFillPrice)
	}

	// 顺带为下个周期刷新账户摘要与交易所时钟（应答异步落入 AccountCache）
	if !final && w.gateway.IsConnected() {
		if err := w.gateway.RequestAccountSummary(); err != nil {
			watchdogLog.Debugf("账户摘要请求失败: %v", err)
		}
		if err := w.gateway.RequestCurrentTime(); err != nil {
			watchdogLog.Debugf("校时请求失败: %v", err)
		}
	}
}
