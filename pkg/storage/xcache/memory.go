package xcache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryOption 内存变更表选项。
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	numCounters int64
	maxCost     int64
	bufferItems int64
}

// MinMemoryMaxCost 最小容量 1MB。
const MinMemoryMaxCost = 1 << 20

// WithMemoryMaxCost 设置最大容量（字节），小于 1MB 时取 1MB。
func WithMemoryMaxCost(cost int64) MemoryOption {
	return func(o *memoryOptions) {
		if cost > 0 {
			o.maxCost = max(cost, MinMemoryMaxCost)
		}
	}
}

// WithMemoryNumCounters 设置频率计数器数量，建议为预期 key 数量的 10 倍。
func WithMemoryNumCounters(n int64) MemoryOption {
	return func(o *memoryOptions) {
		if n > 0 {
			o.numCounters = n
		}
	}
}

// MemoryChangeStore 基于 ristretto 的 ChangeStore。
// ristretto 异步写入，Put 内部调用 Wait，写入后立即可读。
type MemoryChangeStore struct {
	cache  *ristretto.Cache[string, []byte]
	closed atomic.Bool
}

// NewMemoryChangeStore 创建内存变更表。
func NewMemoryChangeStore(opts ...MemoryOption) (*MemoryChangeStore, error) {
	o := memoryOptions{numCounters: 1e5, maxCost: 64 << 20, bufferItems: 64}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: o.numCounters,
		MaxCost:     o.maxCost,
		BufferItems: o.bufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("xcache: create memory cache: %w", err)
	}
	return &MemoryChangeStore{cache: cache}, nil
}

func (s *MemoryChangeStore) Latest(_ context.Context, orderID int32) (*DeliveryChange, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	data, ok := s.cache.Get(ChangeKey(orderID))
	if !ok {
		return nil, false, nil
	}
	c, err := decodeChange(data)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *MemoryChangeStore) Put(_ context.Context, change *DeliveryChange) error {
	if s.closed.Load() {
		return ErrClosed
	}
	key, data, err := encodeChange(change)
	if err != nil {
		return err
	}
	if !s.cache.Set(key, data, int64(len(data))) {
		return fmt.Errorf("xcache: memory store dropped %s", key)
	}
	s.cache.Wait()
	return nil
}

// Close 释放 ristretto 的后台 goroutine。
func (s *MemoryChangeStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.cache.Close()
	return nil
}

var _ ChangeStore = (*MemoryChangeStore)(nil)
