package signer

import (
	"context"
	"sync"

	xerrors "AgentSwap-Chain/internal/errors"
)

// NonceStore 持久化签名 nonce 的高水位线，保证进程重启后
// 计数器不会回退。Reserve 之外不暴露裸读写。
type NonceStore interface {
	// Load 返回已持久化的高水位线；从未写入时返回 0。
	Load(ctx context.Context) (uint64, error)
	// Save 把高水位线推进到给定值。
	Save(ctx context.Context, nonce uint64) error
}

// NonceCounter 是进程级严格递增的 nonce 计数器，也是整条管道
// 唯一的互斥边界。"读取-递增-赋值"对外只有 Next 一个原子操作。
type NonceCounter struct {
	mu      sync.Mutex
	current uint64
	store   NonceStore
}

// NewNonceCounter 从存储恢复高水位线并创建计数器。
func NewNonceCounter(ctx context.Context, store NonceStore) (*NonceCounter, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置 nonce 存储")
	}
	start, err := store.Load(ctx)
	if err != nil {
		return nil, xerrors.Wrap(CodeNonceRecovery, err, "恢复 nonce 高水位线失败")
	}
	return &NonceCounter{current: start, store: store}, nil
}

// Next 原子地分配下一个 nonce。先持久化再推进内存值：
// 持久化失败时内存值不变，不会留下空洞；持久化成功后该 nonce
// 即视为已消耗，后续任何失败都不回收（审计日志负责对账）。
func (c *NonceCounter) Next(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.current + 1
	if err := c.store.Save(ctx, next); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "持久化 nonce 高水位线失败")
	}
	c.current = next
	return next, nil
}

// Current 返回最近一次分配的 nonce，仅用于状态上报。
func (c *NonceCounter) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// MemoryNonceStore 以内存保存高水位线，主要用于测试。
type MemoryNonceStore struct {
	mu    sync.Mutex
	value uint64
}

// NewMemoryNonceStore 创建内存存储，start 作为初始高水位线。
func NewMemoryNonceStore(start uint64) *MemoryNonceStore {
	return &MemoryNonceStore{value: start}
}

// Load 实现 NonceStore。
func (s *MemoryNonceStore) Load(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

// Save 实现 NonceStore。
func (s *MemoryNonceStore) Save(_ context.Context, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nonce > s.value {
		s.value = nonce
	}
	return nil
}

var _ NonceStore = (*MemoryNonceStore)(nil)
