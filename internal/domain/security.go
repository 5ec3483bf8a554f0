package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SecurityKind 证券类型
type SecurityKind string

const (
	SecurityEquity SecurityKind = "EQ"  // 股票
	SecurityOption SecurityKind = "OPT" // 期权
)

// OptionRight 期权方向（认购/认沽）
type OptionRight string

const (
	RightCall OptionRight = "C"
	RightPut  OptionRight = "P"
)

// SecurityIdentity 证券标识
// 由 (kind, underlying, expiry, strike, right) 唯一确定一个可交易标的。
// 两个标识相等当且仅当它们的规范化 Key 相等。
type SecurityIdentity struct {
	Kind       SecurityKind    // 证券类型
	Underlying string          // 标的代码，例如 "AAPL"
	Expiry     time.Time       // 到期日（仅期权，按日粒度）
	Strike     decimal.Decimal // 行权价（仅期权）
	Right      OptionRight     // 期权方向（仅期权）
}

// Equity 创建股票标识
func Equity(underlying string) SecurityIdentity {
	return SecurityIdentity{
		Kind:       SecurityEquity,
		Underlying: strings.ToUpper(strings.TrimSpace(underlying)),
	}
}

// Option 创建期权标识
func Option(underlying string, expiry time.Time, strike decimal.Decimal, right OptionRight) SecurityIdentity {
	return SecurityIdentity{
		Kind:       SecurityOption,
		Underlying: strings.ToUpper(strings.TrimSpace(underlying)),
		Expiry:     expiry,
		Strike:     strike,
		Right:      right,
	}
}

// Key 返回规范化字符串键
// 格式：
//   - 股票: EQ:AAPL
//   - 期权: OPT:AAPL:20260918:C:185.00
//
// Key 是确定性的：相同字段总是产生相同的键，用于缓存/去重。
func (s SecurityIdentity) Key() string {
	if s.Kind == SecurityOption {
		return fmt.Sprintf("%s:%s:%s:%s:%s",
			s.Kind, s.Underlying, s.Expiry.Format("20060102"), s.Right, s.Strike.StringFixed(2))
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.Underlying)
}

// Equal 判断两个标识是否相等（以 Key 为准）
func (s SecurityIdentity) Equal(other SecurityIdentity) bool {
	return s.Key() == other.Key()
}

// IsOption 是否为期权
func (s SecurityIdentity) IsOption() bool {
	return s.Kind == SecurityOption
}

// ContractDescriptor 合约描述符
// 发给交易所做合约解析/订阅时使用的描述信息（下游 §外部接口）。
type ContractDescriptor struct {
	Security SecurityIdentity // 证券标识
	Exchange string           // 交易所路由，例如 "SMART"
	Currency string           // 计价货币，默认 USD
}

// NewDescriptor 创建默认路由的合约描述符
func NewDescriptor(sec SecurityIdentity) ContractDescriptor {
	return ContractDescriptor{
		Security: sec,
		Exchange: "SMART",
		Currency: "USD",
	}
}

// ContractUnresolved 未解析合约 ID 哨兵值
// 解析尚未完成时 CachedID 返回该值，调用方应按「可重试」处理，而不是错误。
const ContractUnresolved int64 = 0
