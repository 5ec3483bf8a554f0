package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var accountLog = logrus.WithField("component", "account_cache")

// AccountCache 账户摘要与交易所时钟缓存
// requestAccountSummary / requestCurrentTime 的异步应答落在这里，
// 只读暴露给策略与 watchdog。
type AccountCache struct {
	mu      sync.Mutex
	summary map[string]string // tag -> value
	skew    time.Duration     // 本地时钟 - 交易所时钟
	skewAt  time.Time         // 最近一次校时时间
}

// NewAccountCache 创建账户缓存
func NewAccountCache() *AccountCache {
	return &AccountCache{summary: make(map[string]string)}
}

// AccountSummary 账户摘要应答（回调线程）
func (a *AccountCache) AccountSummary(tag, value, currency string) {
	a.mu.Lock()
	a.summary[tag] = value
	a.mu.Unlock()
	accountLog.Debugf("账户摘要: %s=%s %s", tag, value, currency)
}

// CurrentTime 交易所时钟应答（回调线程），记录本地时钟偏差
func (a *AccountCache) CurrentTime(unixSeconds int64) {
	skew := time.Since(time.Unix(unixSeconds, 0))
	a.mu.Lock()
	a.skew = skew
	a.skewAt = time.Now()
	a.mu.Unlock()
	if skew > time.Second || skew < -time.Second {
		accountLog.Warnf("本地时钟与交易所偏差较大: %v", skew)
	}
}

// Summary 返回账户摘要快照
func (a *AccountCache) Summary() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.summary))
	for k, v := range a.summary {
		out[k] = v
	}
	return out
}

// ClockSkew 返回最近一次校时的偏差（从未校时返回 false）
func (a *AccountCache) ClockSkew() (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.skewAt.IsZero() {
		return 0, false
	}
	return a.skew, true
}
