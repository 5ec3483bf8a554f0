package syncgroup

import (
	"sync"
)

type workerFunc func()

// SyncGroup 是 sync.WaitGroup 的包装器，简化策略 worker 的生命周期管理
// 自动管理 Add() 和 Done()，减少遗漏 Done() 的风险
type SyncGroup struct {
	wg sync.WaitGroup

	mu           sync.Mutex
	fns          []workerFunc
	hasRun       bool
	runningCount int
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个 worker 函数
// 应该在 Run() 之前调用；已运行且尚有 worker 在跑时新函数会被跳过，
// 需要先 WaitAndClear()
func (w *SyncGroup) Add(fn workerFunc) {
	if fn == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.hasRun && w.runningCount > 0 {
		return
	}
	w.fns = append(w.fns, fn)
}

// Run 启动所有已添加的 worker
// 启动后清空函数列表，避免重复启动
func (w *SyncGroup) Run() {
	w.mu.Lock()
	if w.hasRun && w.runningCount > 0 {
		w.mu.Unlock()
		return
	}
	fns := w.fns
	w.fns = nil
	w.hasRun = true
	w.runningCount = len(fns)
	w.mu.Unlock()

	for _, fn := range fns {
		if fn == nil {
			continue
		}
		w.wg.Add(1)
		go func(doFunc workerFunc) {
			defer func() {
				w.wg.Done()
				w.mu.Lock()
				w.runningCount--
				w.mu.Unlock()
			}()
			doFunc()
		}(fn)
	}
}

// WaitAndClear 等待所有 worker 完成并复位
func (w *SyncGroup) WaitAndClear() {
	w.wg.Wait()

	w.mu.Lock()
	w.fns = nil
	w.hasRun = false
	w.runningCount = 0
	w.mu.Unlock()
}

// Wait 等待所有 worker 完成（不复位）
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
