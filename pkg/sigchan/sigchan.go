package sigchan

// Chan 是一个非阻塞的信号 channel
// 只通知「有事发生」，不传递数据；channel 满时 Emit 直接丢弃，
// 多次 Emit 合并为一次接收。
type Chan struct {
	c chan struct{}
}

// New 创建新的信号 channel
func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送信号（非阻塞，channel 已满时忽略）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回内部的 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Drain 清空积压的信号（用于等待前复位）
func (c *Chan) Drain() {
	for {
		select {
		case <-c.c:
		default:
			return
		}
	}
}
