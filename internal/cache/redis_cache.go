package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/conversation-scheduler/internal/model"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type outcomeValue struct {
	Status     model.Status `json:"status"`
	FinishedAt time.Time    `json:"finishedAt"`
}

func (c *RedisCache) StoreOutcome(ctx context.Context, id string, status model.Status, finishedAt time.Time) error {
	key := "conversation:" + id
	val := outcomeValue{
		Status:     status,
		FinishedAt: finishedAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
