// Package sample 最小示例策略：订阅一个标的，等待行情就绪后挂一张限价单，
// 用订单唤醒句柄做有界等待，超时调价一次，ctx 取消时撤单退出。
// 用于验证解析/行情/订单/唤醒整条链路。
package sample

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/wake"
	"github.com/tradebot/gotrade/pkg/env"
)

const ID = "sample"

var log = logrus.WithField("strategy", ID)

// Config 策略配置
type Config struct {
	Symbol   string  `yaml:"symbol" json:"symbol"`     // 标的（股票代码）
	Side     string  `yaml:"side" json:"side"`         // BUY / SELL
	Quantity float64 `yaml:"quantity" json:"quantity"` // 数量

	// OffsetBps 限价相对买一/卖一的让价（基点）。买单挂 bid*(1-offset)，
	// 卖单挂 ask*(1+offset)。
	OffsetBps int `yaml:"offset_bps" json:"offset_bps"`

	// ResolveTimeout 等合约解析的上限
	ResolveTimeout time.Duration `yaml:"resolve_timeout" json:"resolve_timeout"`
	// FillWait 每轮等成交的上限（到点后重新评估，不永久阻塞）
	FillWait time.Duration `yaml:"fill_wait" json:"fill_wait"`
}

// Defaults 填充缺省配置
func (c *Config) Defaults() {
	if c.Symbol == "" {
		c.Symbol = "AAPL"
	}
	if c.Side == "" {
		c.Side = string(domain.SideBuy)
	}
	if c.Quantity <= 0 {
		c.Quantity = 100
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 10 * time.Second
	}
	if c.FillWait <= 0 {
		c.FillWait = 30 * time.Second
	}
}

// Strategy 示例策略实例
type Strategy struct {
	Config

	env *env.Environment
}

func New(cfg Config, e *env.Environment) *Strategy {
	cfg.Defaults()
	return &Strategy{Config: cfg, env: e}
}

func (s *Strategy) ID() string { return ID }

// Run 策略主循环，阻塞直到 ctx 取消或订单到终态
func (s *Strategy) Run(ctx context.Context) error {
	sec := domain.Equity(s.Symbol)

	if err := s.env.Feeds.Subscribe(sec); err != nil {
		return err
	}

	// 等合约解析就绪：解析是 fire-and-forget，这里轮询缓存并设上限
	if !s.waitResolved(ctx, sec) {
		log.Warnf("合约解析超时，放弃: symbol=%s", s.Symbol)
		return ctx.Err()
	}

	// 等首个可用行情
	quote, ok := s.waitQuote(ctx, sec)
	if !ok {
		return ctx.Err()
	}
	if quote.Halted {
		log.Warnf("标的停牌，放弃: symbol=%s", s.Symbol)
		return nil
	}

	key := s.env.NextOrderKey()
	wakeSig := wake.New()
	limit := s.limitPrice(quote)

	spec := domain.OrderSpec{
		Key:        key,
		Side:       domain.Side(s.Side),
		Contract:   domain.NewDescriptor(sec),
		Exchange:   "SMART",
		Quantity:   s.Quantity,
		LimitPrice: limit,
		Reference:  ID,
	}
	if err := s.env.Orders.Submit(spec, wakeSig); err != nil {
		return err
	}
	log.Infof("已挂单: key=%d %s %s x%.0f @ %s", key, s.Side, s.Symbol, s.Quantity, limit)

	adjusted := false
	for {
		// 有界等待 + 重新评估谓词；唤醒可能是成交、错误或虚假唤醒
		signalled := wakeSig.WaitContext(ctx, s.FillWait)

		order, _ := s.env.Orders.Get(key)
		if order.State.Status.IsTerminal() {
			log.Infof("订单到终态: key=%d status=%s filled=%.2f avg=%s",
				key, order.State.Status, order.State.FilledQty, order.State.AvgFillPrice)
			return nil
		}
		if ctx.Err() != nil {
			// 关停：尽力撤单后退出，终态由回调确认（不等待）
			s.env.Orders.Cancel(key)
			return ctx.Err()
		}
		if signalled {
			// 部分成交等非终态变化：继续等
			continue
		}

		// 等待超时且一张未成：调价一次再等
		if !adjusted {
			if q, ok := s.env.Feeds.GetQuote(sec); ok && !q.Halted {
				newLimit := s.limitPrice(q)
				log.Infof("成交等待超时，调价重挂: key=%d %s -> %s", key, limit, newLimit)
				s.env.Orders.Adjust(key, 0, newLimit, nil)
				limit = newLimit
				adjusted = true
				continue
			}
		}
		log.Warnf("调价后仍未成交，撤单: key=%d", key)
		s.env.Orders.Cancel(key)
	}
}

// waitResolved 轮询解析缓存直到命中或超时
func (s *Strategy) waitResolved(ctx context.Context, sec domain.SecurityIdentity) bool {
	deadline := time.Now().Add(s.ResolveTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if id, ok := s.env.Resolver.CachedID(sec); ok && id != domain.ContractUnresolved {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// waitQuote 等待首个带有效买卖价的行情
func (s *Strategy) waitQuote(ctx context.Context, sec domain.SecurityIdentity) (domain.Quote, bool) {
	c := s.env.Feeds.Chan(sec)
	for {
		if q, ok := s.env.Feeds.GetQuote(sec); ok && q.Bid > 0 && q.Ask > 0 {
			return q, true
		}
		if c == nil {
			return domain.Quote{}, false
		}
		select {
		case <-ctx.Done():
			return domain.Quote{}, false
		case <-c.C():
		}
	}
}

// limitPrice 根据当前行情和让价基点算限价
func (s *Strategy) limitPrice(q domain.Quote) decimal.Decimal {
	offset := decimal.New(int64(s.OffsetBps), -4)
	if domain.Side(s.Side) == domain.SideBuy {
		bid := decimal.NewFromFloat(q.Bid)
		return bid.Mul(decimal.NewFromInt(1).Sub(offset)).Round(2)
	}
	ask := decimal.NewFromFloat(q.Ask)
	return ask.Mul(decimal.NewFromInt(1).Add(offset)).Round(2)
}
