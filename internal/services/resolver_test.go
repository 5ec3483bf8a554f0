package services

import (
	"sync"
	"testing"

	"github.com/tradebot/gotrade/internal/domain"
	"github.com/tradebot/gotrade/internal/venue"
	"github.com/tradebot/gotrade/internal/venue/venuetest"
)

func newTestGateway() (*venue.Client, *venuetest.FakeSession) {
	fake := venuetest.New()
	return venue.NewClient(fake, 1), fake
}

func TestResolveSendsOneRequest(t *testing.T) {
	gateway, fake := newTestGateway()
	r := NewSecurityResolver(gateway)
	desc := domain.NewDescriptor(domain.Equity("AAPL"))

	r.Resolve(desc)
	if fake.ResolveCount() != 1 {
		t.Fatalf("应发送 1 个解析请求, got %d", fake.ResolveCount())
	}

	// 同 key 在途请求被去重
	r.Resolve(desc)
	if fake.ResolveCount() != 1 {
		t.Errorf("在途去重失败: got %d 个请求", fake.ResolveCount())
	}
}

func TestResolveCachedIsNoop(t *testing.T) {
	gateway, fake := newTestGateway()
	r := NewSecurityResolver(gateway)
	desc := domain.NewDescriptor(domain.Equity("AAPL"))

	r.Resolve(desc)
	r.ContractResolved(desc.Security.Key(), 265598)

	r.Resolve(desc)
	if fake.ResolveCount() != 1 {
		t.Errorf("已缓存的 key 不应再发请求: got %d", fake.ResolveCount())
	}

	id, ok := r.CachedID(desc.Security)
	if !ok || id != 265598 {
		t.Errorf("缓存查询错误: got (%d, %v)", id, ok)
	}
}

func TestCachedIDMiss(t *testing.T) {
	gateway, _ := newTestGateway()
	r := NewSecurityResolver(gateway)

	id, ok := r.CachedID(domain.Equity("MSFT"))
	if ok || id != domain.ContractUnresolved {
		t.Errorf("未解析 key 应返回 (哨兵, false): got (%d, %v)", id, ok)
	}
}

func TestConcurrentResolveSingleCacheEntry(t *testing.T) {
	gateway, _ := newTestGateway()
	r := NewSecurityResolver(gateway)
	desc := domain.NewDescriptor(domain.Equity("AAPL"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(desc)
		}()
	}
	wg.Wait()

	r.ContractResolved(desc.Security.Key(), 265598)
	// 重复应答（同值）无害
	r.ContractResolved(desc.Security.Key(), 265598)

	if r.Size() != 1 {
		t.Errorf("并发解析后缓存应恰有 1 条: got %d", r.Size())
	}
}

func TestContractResolvedWriteOnce(t *testing.T) {
	gateway, _ := newTestGateway()
	r := NewSecurityResolver(gateway)
	key := domain.Equity("AAPL").Key()

	r.ContractResolved(key, 100)
	// 异值应答：告警但保留旧值
	r.ContractResolved(key, 200)

	id, _ := r.CachedID(domain.Equity("AAPL"))
	if id != 100 {
		t.Errorf("写一次语义被破坏: got %d want 100", id)
	}
}

func TestResolutionAmbiguousFailClosed(t *testing.T) {
	gateway, fake := newTestGateway()
	r := NewSecurityResolver(gateway)
	desc := domain.NewDescriptor(domain.Equity("AAPL"))

	r.Resolve(desc)
	r.ResolutionAmbiguous(desc.Security.Key(), 3)

	if _, ok := r.CachedID(desc.Security); ok {
		t.Error("模糊应答不应写入缓存")
	}

	// 在途状态已释放，允许重试
	r.Resolve(desc)
	if fake.ResolveCount() != 2 {
		t.Errorf("模糊应答后应允许重新解析: got %d 个请求", fake.ResolveCount())
	}
}
