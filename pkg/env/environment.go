// Package env 把网关、各注册表和 watchdog 组装成一个显式的环境对象，
// 策略通过它访问全部共享状态，不依赖任何全局单例。
package env

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/services"
	"github.com/tradebot/gotrade/internal/venue"
	"github.com/tradebot/gotrade/pkg/config"
	"github.com/tradebot/gotrade/pkg/logger"
)

// Environment 环境对象：持有唯一的网关句柄和各共享注册表
type Environment struct {
	Gateway  *venue.Client
	Resolver *services.SecurityResolver
	Feeds    *services.FeedRegistry
	Orders   *services.OrderRegistry
	Account  *services.AccountCache
	Watchdog *services.Watchdog

	cfg *config.Config

	// 策略侧订单 key 计数器（进程内唯一，与交易所订单 ID 无关）
	nextOrderKey atomic.Int64
}

// New 组装环境：创建网关客户端、各注册表和 watchdog，并把回调
// 分发器注册到会话上。调用方之后用 Connect 建立连接。
func New(cfg *config.Config, session venue.Session) (*Environment, error) {
	gateway := venue.NewClient(session, cfg.Venue.FirstOrderID)

	resolver := services.NewSecurityResolver(gateway)
	feeds := services.NewFeedRegistry(gateway, resolver)
	orders := services.NewOrderRegistry(gateway, cfg.Venue.SessionID)
	account := services.NewAccountCache()

	watchdog, err := services.NewWatchdog(services.WatchdogConfig{
		Anchor:         cfg.Watchdog.Anchor,
		ShortInterval:  secondsOrZero(cfg.Watchdog.ShortIntervalS),
		MediumInterval: secondsOrZero(cfg.Watchdog.MediumIntervalS),
		LongInterval:   secondsOrZero(cfg.Watchdog.LongIntervalS),
	}, gateway, resolver, feeds, orders, account)
	if err != nil {
		return nil, err
	}

	e := &Environment{
		Gateway:  gateway,
		Resolver: resolver,
		Feeds:    feeds,
		Orders:   orders,
		Account:  account,
		Watchdog: watchdog,
		cfg:      cfg,
	}
	gateway.SetHandler(&dispatcher{env: e})
	return e, nil
}

// Connect 建立交易所会话
func (e *Environment) Connect() error {
	return e.Gateway.Connect(e.cfg.Venue.Host, e.cfg.Venue.Port, e.cfg.Venue.SessionID)
}

// Disconnect 断开交易所会话
func (e *Environment) Disconnect() {
	e.Gateway.Disconnect()
}

// RunWatchdog 运行 watchdog 循环，阻塞直到 ctx 取消
func (e *Environment) RunWatchdog(ctx context.Context) {
	e.Watchdog.Run(ctx)
}

// NextOrderKey 分配下一个策略侧订单 key
func (e *Environment) NextOrderKey() int64 {
	return e.nextOrderKey.Add(1)
}

// secondsOrZero 把秒数转为 Duration，非正值返回 0（由 watchdog 取默认值）
func secondsOrZero(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}

// dispatcher 把会话回调分发到对应注册表。所有方法都运行在会话的
// 唯一回调 goroutine 上，每次只持有单个注册表的锁。
type dispatcher struct {
	env *Environment
}

func (d *dispatcher) ContractResolved(key string, contractID int64) {
	d.env.Resolver.ContractResolved(key, contractID)
}

func (d *dispatcher) ResolutionAmbiguous(key string, matches int) {
	d.env.Resolver.ResolutionAmbiguous(key, matches)
}

func (d *dispatcher) QuoteTick(key string, field domain.TickField, value float64) {
	d.env.Feeds.QuoteTick(key, field, value)
}

func (d *dispatcher) OrderState(venueOrderID int64, state string) {
	d.env.Orders.OrderState(venueOrderID, state)
}

func (d *dispatcher) OrderStatus(update venue.OrderStatusUpdate) {
	d.env.Orders.OrderStatus(update)
}

func (d *dispatcher) OrderError(venueOrderID int64, code int, message string) {
	d.env.Orders.OrderError(venueOrderID, code, message)
}

func (d *dispatcher) AccountSummary(tag, value, currency string) {
	d.env.Account.AccountSummary(tag, value, currency)
}

func (d *dispatcher) CurrentTime(unixSeconds int64) {
	d.env.Account.CurrentTime(unixSeconds)
}

func (d *dispatcher) ConnectionEvent(connected bool) {
	if connected {
		logger.Info("交易所会话已建立")
	} else {
		logger.Warn("交易所会话已断开，等待人工干预（本层不自动重连）")
	}
}
