package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore 基于 go-redis 的状态存储
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 状态存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent 使用 SET NX PX，原子地创建键
func (r *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to setnx state %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}

// Touch 使用 EXPIRE，键不存在时不会重建
func (r *RedisStore) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return r.Exists(ctx, key)
	}
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to expire state %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check state existence %s: %w", key, err)
	}
	return count > 0, nil
}
