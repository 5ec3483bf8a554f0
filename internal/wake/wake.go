// Package wake 提供订单级唤醒原语
//
// 每个订单一个 Signal（不共享！共享会把 A 单的唤醒投递给等 B 单的线程）。
// 回调线程 Notify，策略线程 Wait 带超时；被唤醒后必须重新检查真实的
// 订单/行情谓词，而不是假定通知就等于期望的条件成立——这是经典的
// 条件变量纪律，不是一次性信号。
package wake

import (
	"context"
	"time"

	"github.com/tradebot/gotrade/pkg/sigchan"
)

// Signal 单个订单的唤醒句柄
// 底层是容量 1 的非阻塞信号 channel：Notify 发生在 Wait 之前也不会丢
// （信号被缓冲保留），重复 Notify 合并为一次。
type Signal struct {
	c *sigchan.Chan
}

// New 创建唤醒句柄
func New() *Signal {
	return &Signal{c: sigchan.New(1)}
}

// Notify 唤醒等待方（非阻塞，可在回调线程安全调用）
func (s *Signal) Notify() {
	s.c.Emit()
}

// Wait 有界等待一次唤醒
// 返回 true 表示收到通知，false 表示超时。两种情况下调用方都应重新
// 检查谓词（允许虚假唤醒）。
func (s *Signal) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.c.C():
		return true
	case <-t.C:
		return false
	}
}

// WaitContext 同 Wait，另外响应 ctx 取消
func (s *Signal) WaitContext(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.c.C():
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}
