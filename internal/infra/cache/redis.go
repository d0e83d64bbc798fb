package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"pulsefeed/internal/domain"
)

// RedisCache реализует domain.Cache через Redis. Значения хранятся в JSON.
type RedisCache struct {
	client *redis.Client
}

var _ domain.Cache = (*RedisCache)(nil)

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get возвращает значение по ключу. Второй результат false при промахе.
func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set задаёт значение с TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttlSeconds int) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, time.Duration(ttlSeconds)*time.Second).Err()
}

// Once выполняет fn не чаще одного раза за ttlSeconds на ключ.
// При ошибке fn ключ снимается, чтобы допустить повтор.
func (c *RedisCache) Once(ctx context.Context, key string, ttlSeconds int, fn func() error) error {
	ok, err := c.client.SetNX(ctx, key, "1", time.Duration(ttlSeconds)*time.Second).Result()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return err
	}
	return nil
}
