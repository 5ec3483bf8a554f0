package services

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// ErrDuplicateInFlight 表示同一 key 的请求仍在 in-flight（或在 TTL 窗口内）。
var ErrDuplicateInFlight = fmt.Errorf("duplicate in-flight")

// inFlightDeduper 提供「短时间窗口内的确定性去重」。
//
// 解析请求的去重是 best-effort：两个策略线程同时对同一未解析 key 发起
// resolve，漏判只会多发一条重复请求（交易所对同一 key 的应答是确定的，
// 重复写入同值无害）；误判则会吞掉本该发出的请求。因此这里优先确定性，
// 用分片 map + 短 TTL，清理惰性进行。
type inFlightDeduper struct {
	ttl    time.Duration
	shards []inFlightShard
}

type inFlightShard struct {
	mu sync.Mutex
	m  map[string]time.Time // key -> expiresAt
}

// newInFlightDeduper 创建去重器。
// ttl 覆盖一次解析请求往返的典型窗口，建议 2s~30s。
func newInFlightDeduper(ttl time.Duration, shardCount int) *inFlightDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]inFlightShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &inFlightDeduper{ttl: ttl, shards: shards}
}

// tryAcquire 尝试获取 key 的 in-flight 令牌。
// 成功返回 nil，失败返回 ErrDuplicateInFlight。
func (d *inFlightDeduper) tryAcquire(key string) error {
	if d == nil || key == "" {
		return nil
	}
	now := time.Now()
	sh := d.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// 惰性清理：仅在访问时清理本 shard 的过期项
	for k, exp := range sh.m {
		if !exp.After(now) {
			delete(sh.m, k)
		}
	}

	if exp, ok := sh.m[key]; ok && exp.After(now) {
		return ErrDuplicateInFlight
	}
	sh.m[key] = now.Add(d.ttl)
	return nil
}

// release 提前释放 key（应答到达后调用，允许更快重试）。
func (d *inFlightDeduper) release(key string) {
	if d == nil || key == "" {
		return
	}
	sh := d.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

func (d *inFlightDeduper) shard(key string) *inFlightShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	idx := int(h.Sum32()) % len(d.shards)
	return &d.shards[idx]
}
