package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
	"github.com/tradebot/gotrade/pkg/sigchan"
)

var feedLog = logrus.WithField("component", "feed_registry")

// Feed 单个标的的实时行情条目
// 行情字段由回调线程独占写入；所有读写都在注册表的监视器下进行。
type Feed struct {
	Security domain.SecurityIdentity
	Quote    domain.Quote

	// C 行情变化信号（非阻塞广播，策略线程可 select 等待）
	C *sigchan.Chan
}

// FeedView 行情只读快照（watchdog / 调用方使用，无需持锁）
type FeedView struct {
	Key   string
	Quote domain.Quote
}

// FeedRegistry 去重的实时行情注册表
//
// 每个标的一个 Feed，按标识相等去重；列表只增不减，进程生命周期内有效。
// 唯一的写者是回调线程（QuoteTick），读者是任意数量的策略线程，
// 所有访问都在 mu 监视器下——包括「先查后读/改」的复合序列。
type FeedRegistry struct {
	gateway  *venue.Client
	resolver *SecurityResolver

	mu    sync.Mutex
	feeds map[string]*Feed // key -> feed
	order []string         // 订阅顺序（只追加，watchdog 按序输出）
}

// NewFeedRegistry 创建行情注册表
func NewFeedRegistry(gateway *venue.Client, resolver *SecurityResolver) *FeedRegistry {
	return &FeedRegistry{
		gateway:  gateway,
		resolver: resolver,
		feeds:    make(map[string]*Feed),
	}
}

// Subscribe 订阅一个标的的实时行情
// 重复订阅同一标的为 no-op。首次订阅时：
//  1. 先触发合约解析（组合单的腿需要已解析的合约 ID，顺序依赖）；
//  2. 创建 Feed 条目；
//  3. 通过网关发起行情订阅。
func (f *FeedRegistry) Subscribe(sec domain.SecurityIdentity) error {
	key := sec.Key()

	f.mu.Lock()
	if _, exists := f.feeds[key]; exists {
		f.mu.Unlock()
		return nil
	}
	feed := &Feed{Security: sec, C: sigchan.New(1)}
	f.feeds[key] = feed
	f.order = append(f.order, key)
	f.mu.Unlock()

	desc := domain.NewDescriptor(sec)

	// 解析先行：订阅登记完成后立刻解析，组合腿依赖合约 ID
	f.resolver.Resolve(desc)

	if _, err := f.gateway.SubscribeQuote(desc); err != nil {
		feedLog.Errorf("行情订阅发送失败: key=%s err=%v", key, err)
		return err
	}
	feedLog.Infof("已订阅行情: key=%s", key)
	return nil
}

// GetQuote 返回标的当前行情快照
// 尚无该标的（未订阅）时返回 (zero, false)。
func (f *FeedRegistry) GetQuote(sec domain.SecurityIdentity) (domain.Quote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	feed, ok := f.feeds[sec.Key()]
	if !ok {
		return domain.Quote{}, false
	}
	return feed.Quote, true
}

// Chan 返回标的的行情变化信号 channel（未订阅时为 nil）
func (f *FeedRegistry) Chan(sec domain.SecurityIdentity) *sigchan.Chan {
	f.mu.Lock()
	defer f.mu.Unlock()
	feed, ok := f.feeds[sec.Key()]
	if !ok {
		return nil
	}
	return feed.C
}

// Size 已订阅标的数量（诊断用）
func (f *FeedRegistry) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.feeds)
}

// Snapshot 按订阅顺序导出全部行情快照（watchdog 只读诊断）
func (f *FeedRegistry) Snapshot() []FeedView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FeedView, 0, len(f.order))
	for _, key := range f.order {
		out = append(out, FeedView{Key: key, Quote: f.feeds[key].Quote})
	}
	return out
}

// QuoteTick 行情增量回调（回调线程）
//
// 合并规则：
//   - bid/ask 总是覆盖；
//   - last 总是覆盖，并标记 HasLast；
//   - close 只在从未见过 last 时作为回退写入 Last（优先级 last > close）；
//   - halted 指标超过阈值（0.5）置停牌，否则清除。
//
// 同一标的的 tick 按回调到达顺序应用；不同标的之间没有顺序保证。
func (f *FeedRegistry) QuoteTick(key string, field domain.TickField, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	feed, ok := f.feeds[key]
	if !ok {
		// 未登记的 tick：可能是旧订阅的尾流，丢弃即可
		feedLog.Debugf("收到未登记标的的 tick: key=%s field=%s", key, field)
		return
	}

	switch field {
	case domain.TickBid:
		feed.Quote.Bid = value
	case domain.TickAsk:
		feed.Quote.Ask = value
	case domain.TickLast:
		feed.Quote.Last = value
		feed.Quote.HasLast = true
	case domain.TickClose:
		if !feed.Quote.HasLast {
			feed.Quote.Last = value
		}
	case domain.TickImpliedVol:
		feed.Quote.ImpliedVol = value
	case domain.TickHalted:
		feed.Quote.Halted = value > domain.HaltedThreshold
	default:
		feedLog.Debugf("未知行情字段: key=%s field=%d", key, field)
		return
	}
	feed.Quote.UpdatedAt = time.Now()
	feed.C.Emit()
}
