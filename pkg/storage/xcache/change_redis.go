package xcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChangeStore 基于 Redis 的 ChangeStore。
type RedisChangeStore struct {
	redis Redis
}

// NewRedisChangeStore 创建 Redis 变更表。
func NewRedisChangeStore(r Redis) (*RedisChangeStore, error) {
	if r == nil {
		return nil, ErrNilClient
	}
	return &RedisChangeStore{redis: r}, nil
}

func (s *RedisChangeStore) Latest(ctx context.Context, orderID int32) (*DeliveryChange, bool, error) {
	data, err := s.redis.Client().Get(ctx, ChangeKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("xcache: get change %d: %w", orderID, err)
	}
	c, err := decodeChange(data)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (s *RedisChangeStore) Put(ctx context.Context, change *DeliveryChange) error {
	key, data, err := encodeChange(change)
	if err != nil {
		return err
	}
	if err := s.redis.Client().Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("xcache: put %s: %w", key, err)
	}
	return nil
}

// Locker 返回底层的锁提供者。
func (s *RedisChangeStore) Locker() Redis { return s.redis }

var _ ChangeStore = (*RedisChangeStore)(nil)
