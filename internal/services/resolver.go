package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
)

var resolverLog = logrus.WithField("component", "security_resolver")

// SecurityResolver 证券标识 → 交易所合约 ID 的缓存
//
// 写一次语义：每个 key 的条目只写入一次，永不逐出，进程生命周期内有效。
// 同值重复写入无害（交易所对同一 key 的应答是确定的）。
// 解析是异步的：Resolve 只发请求，调用方用自己的超时轮询 CachedID。
type SecurityResolver struct {
	gateway *venue.Client

	mu       sync.Mutex
	cache    map[string]int64 // key -> 合约 ID（写一次）
	inflight *inFlightDeduper // best-effort 去重，漏判无害
}

// NewSecurityResolver 创建解析器
func NewSecurityResolver(gateway *venue.Client) *SecurityResolver {
	return &SecurityResolver{
		gateway:  gateway,
		cache:    make(map[string]int64),
		inflight: newInFlightDeduper(10*time.Second, 16),
	}
}

// Resolve 发起一次解析请求（fire-and-forget）
// key 已缓存时为 no-op。两个并发调用方对同一未解析 key 可能产生重复的
// in-flight 请求——可接受，见缓存写一次语义。
func (r *SecurityResolver) Resolve(desc domain.ContractDescriptor) {
	key := desc.Security.Key()

	r.mu.Lock()
	_, cached := r.cache[key]
	r.mu.Unlock()
	if cached {
		return
	}

	if err := r.inflight.tryAcquire(key); err != nil {
		// 已有同 key 请求在途，跳过（不是错误）
		return
	}

	if err := r.gateway.ResolveContract(desc); err != nil {
		resolverLog.Warnf("发送合约解析请求失败: key=%s err=%v", key, err)
		r.inflight.release(key)
	}
}

// CachedID 返回缓存的合约 ID
// 未解析时返回 (domain.ContractUnresolved, false)，不阻塞；调用方按
// 「尚未可用、可重试」处理，用自己的超时轮询。
func (r *SecurityResolver) CachedID(sec domain.SecurityIdentity) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.cache[sec.Key()]
	if !ok {
		return domain.ContractUnresolved, false
	}
	return id, true
}

// Size 缓存条目数（诊断用）
func (r *SecurityResolver) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// ContractResolved 解析应答（回调线程）
// 写一次：已有条目时同值静默、异值告警但保留旧值。
func (r *SecurityResolver) ContractResolved(key string, contractID int64) {
	r.mu.Lock()
	prev, exists := r.cache[key]
	if !exists {
		r.cache[key] = contractID
	}
	r.mu.Unlock()
	r.inflight.release(key)

	if exists && prev != contractID {
		resolverLog.Warnf("合约解析应答与缓存不一致（保留旧值）: key=%s cached=%d got=%d", key, prev, contractID)
		return
	}
	if !exists {
		resolverLog.Debugf("合约已解析: key=%s id=%d", key, contractID)
	}
}

// ResolutionAmbiguous 模糊应答（回调线程）
// 通配/模糊描述匹配到 ≠1 个实体：fail-closed，缓存保持未解析，
// 绝不猜测或部分写入。
func (r *SecurityResolver) ResolutionAmbiguous(key string, matches int) {
	r.inflight.release(key)
	resolverLog.Warnf("合约解析结果不唯一，保持未解析: key=%s matches=%d", key, matches)
}
