package xlru

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const maxSize = 1 << 24

// Config 缓存配置。
type Config struct {
	// Size 最大条目数。
	Size int
	// TTL 条目存活时间，0 表示不过期。
	TTL time.Duration
}

// Option 缓存选项。
type Option[K comparable, V any] func(*options[K, V])

type options[K comparable, V any] struct {
	onEvicted func(key K, value V)
}

// WithOnEvicted 设置淘汰回调。
func WithOnEvicted[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(o *options[K, V]) {
		o.onEvicted = fn
	}
}

// Cache 并发安全的 LRU 缓存。
type Cache[K comparable, V any] struct {
	lru    *expirable.LRU[K, V]
	closed atomic.Bool
	once   sync.Once
	// createMu 串行化 GetOrCreate 的创建路径，避免同一 key 重复创建资源。
	createMu sync.Mutex
}

// New 创建缓存。
func New[K comparable, V any](cfg Config, opts ...Option[K, V]) (*Cache[K, V], error) {
	switch {
	case cfg.Size <= 0:
		return nil, ErrInvalidSize
	case cfg.Size > maxSize:
		return nil, ErrSizeExceedsMax
	case cfg.TTL < 0:
		return nil, ErrInvalidTTL
	}

	o := &options[K, V]{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Cache[K, V]{lru: expirable.NewLRU(cfg.Size, o.onEvicted, cfg.TTL)}, nil
}

// Get 获取值并刷新最近使用顺序。
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.lru.Get(key)
}

// Set 写入值，返回是否因此淘汰了旧条目。
func (c *Cache[K, V]) Set(key K, value V) bool {
	if c.closed.Load() {
		return false
	}
	return c.lru.Add(key, value)
}

// GetOrCreate 命中时直接返回，否则调用 create 并缓存结果。
// create 返回错误时不缓存。
func (c *Cache[K, V]) GetOrCreate(key K, create func(K) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.createMu.Lock()
	defer c.createMu.Unlock()

	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err := create(key)
	if err != nil {
		return zero, err
	}
	c.lru.Add(key, v)
	return v, nil
}

// Delete 删除条目，会触发淘汰回调。
func (c *Cache[K, V]) Delete(key K) bool {
	if c.closed.Load() {
		return false
	}
	return c.lru.Remove(key)
}

// Len 返回条目数。
func (c *Cache[K, V]) Len() int {
	if c.closed.Load() {
		return 0
	}
	return c.lru.Len()
}

// Keys 按从旧到新的顺序返回所有 key。
func (c *Cache[K, V]) Keys() []K {
	if c.closed.Load() {
		return nil
	}
	return c.lru.Keys()
}

// Close 清空缓存（逐条触发淘汰回调）并停止过期清理 goroutine。可重复调用。
func (c *Cache[K, V]) Close() {
	c.once.Do(func() {
		c.createMu.Lock()
		c.closed.Store(true)
		c.createMu.Unlock()
		c.lru.Purge()
		stopCleanup(c.lru)
	})
}

// stopCleanup 关闭 expirable.LRU 的内部 done channel。
// 上游没有提供停止清理 goroutine 的 API；TTL 为 0 时该字段为 nil，直接跳过。
func stopCleanup(lru any) (stopped bool) {
	defer func() {
		if recover() != nil {
			stopped = false
		}
	}()

	v := reflect.ValueOf(lru)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return false
	}
	done := v.Elem().FieldByName("done")
	if !done.IsValid() || done.IsNil() || done.Type() != reflect.TypeFor[chan struct{}]() {
		return false
	}
	ch := *(*chan struct{})(unsafe.Pointer(done.UnsafeAddr())) //nolint:gosec // 访问上游未导出字段
	close(ch)
	return true
}
