package xcache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Unlocker 释放分布式锁。
type Unlocker func(ctx context.Context) error

// Redis 包装 go-redis 客户端，提供分布式锁。
type Redis interface {
	// Lock 使用 SET NX PX 获取锁，ttl 为最长持有时间。获取失败返回 ErrLockFailed。
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)
	// Client 返回底层客户端。
	Client() redis.UniversalClient
	Close() error
}

// RedisOption Redis 包装选项。
type RedisOption func(*redisOptions)

type redisOptions struct {
	lockKeyPrefix     string
	lockRetryInterval time.Duration
	lockRetryCount    int
}

// WithLockKeyPrefix 设置锁 key 前缀，默认 "lock:"。
func WithLockKeyPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.lockKeyPrefix = prefix }
}

// WithLockRetry 首次获取失败后每隔 interval 重试，最多 count 次。
func WithLockRetry(interval time.Duration, count int) RedisOption {
	return func(o *redisOptions) {
		o.lockRetryInterval = interval
		o.lockRetryCount = count
	}
}

// 返回 1 表示释放成功，0 表示锁已不属于当前持有者。
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var lockValueCounter atomic.Uint64

type redisWrapper struct {
	client  redis.UniversalClient
	options redisOptions
	closed  atomic.Bool
}

// NewRedis 包装已初始化的 redis.UniversalClient。
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := redisOptions{lockKeyPrefix: "lock:"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &redisWrapper{client: client, options: o}, nil
}

func (w *redisWrapper) Lock(ctx context.Context, key string, ttl time.Duration) (Unlocker, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	if ttl <= 0 {
		return nil, ErrInvalidLockTTL
	}

	lockKey := w.options.lockKeyPrefix + key
	lockValue := generateLockValue()

	acquired, err := w.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired && w.options.lockRetryCount > 0 && w.options.lockRetryInterval > 0 {
		if acquired, err = w.lockWithRetry(ctx, lockKey, lockValue, ttl); err != nil {
			return nil, err
		}
	}
	if !acquired {
		return nil, ErrLockFailed
	}

	return func(ctx context.Context) error {
		n, err := unlockScript.Run(ctx, w.client, []string{lockKey}, lockValue).Int64()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrLockExpired
		}
		return nil
	}, nil
}

func (w *redisWrapper) lockWithRetry(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	timer := time.NewTimer(w.options.lockRetryInterval)
	defer timer.Stop()

	for i := range w.options.lockRetryCount {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
		ok, err := w.client.SetNX(ctx, key, value, ttl).Result()
		if err != nil || ok {
			return ok, err
		}
		if i < w.options.lockRetryCount-1 {
			timer.Reset(w.options.lockRetryInterval)
		}
	}
	return false, nil
}

func (w *redisWrapper) Client() redis.UniversalClient { return w.client }

func (w *redisWrapper) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return w.client.Close()
}

// generateLockValue 生成锁持有者标识；crypto/rand 失败时退化为 pid + 时间 + 计数器。
func generateLockValue() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err == nil {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%d-%d-%d", os.Getpid(), time.Now().UnixNano(), lockValueCounter.Add(1))
}
