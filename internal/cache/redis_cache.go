package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"barvault/backend/internal/domain"
)

type RedisInventoryCache struct {
	client *redis.Client
}

func NewRedisInventoryCache(addr string, password string, db int) *RedisInventoryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisInventoryCache{client: client}
}

func (c *RedisInventoryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisInventoryCache) Close() error {
	return c.client.Close()
}

func inventoryKey(organizationID int64) string {
	return "inventory:org:" + strconv.FormatInt(organizationID, 10)
}

func (c *RedisInventoryCache) Get(ctx context.Context, organizationID int64) ([]domain.InventoryItem, bool, error) {
	val, err := c.client.Get(ctx, inventoryKey(organizationID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var items []domain.InventoryItem
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return nil, false, err
	}
	return items, true, nil
}

func (c *RedisInventoryCache) Set(ctx context.Context, organizationID int64, items []domain.InventoryItem, ttl time.Duration) error {
	if items == nil {
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, inventoryKey(organizationID), payload, ttl).Err()
}

func (c *RedisInventoryCache) Invalidate(ctx context.Context, organizationID int64) error {
	return c.client.Del(ctx, inventoryKey(organizationID)).Err()
}
