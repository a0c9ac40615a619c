package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/conversation-scheduler/internal/model"
)

func TestRedisCache_StoreOutcome_Success(t *testing.T) {
	t.Parallel()

	// Start in-memory Redis
	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	ttl := 10 * time.Second
	c := NewRedisCache(rdb, ttl)

	ctx := context.Background()
	id := "9d1a7a5e-4d62-4c87-9b44-0c5e6f1f2a10"
	finishedAt := time.Date(2026, 8, 23, 18, 0, 0, 0, time.UTC)

	if err := c.StoreOutcome(ctx, id, model.Completed, finishedAt); err != nil {
		t.Fatalf("StoreOutcome() error: %v", err)
	}

	key := "conversation:" + id

	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}

	ttlRemaining := mr.TTL(key)
	if ttlRemaining <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttlRemaining)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}

	var got outcomeValue
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}

	if got.Status != model.Completed {
		t.Fatalf("expected status %q, got %q", model.Completed, got.Status)
	}
	if !got.FinishedAt.Equal(finishedAt) {
		t.Fatalf("expected FinishedAt %v, got %v", finishedAt, got.FinishedAt)
	}
}

func TestRedisCache_StoreOutcome_OverwritesExistingValue(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	c := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()

	id := "conv-1"

	if err := c.StoreOutcome(ctx, id, model.Failed, time.Now()); err != nil {
		t.Fatalf("first StoreOutcome() error: %v", err)
	}
	if err := c.StoreOutcome(ctx, id, model.Completed, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("second StoreOutcome() error: %v", err)
	}

	raw, err := mr.Get("conversation:" + id)
	if err != nil {
		t.Fatalf("failed to get key: %v", err)
	}

	var got outcomeValue
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}

	if got.Status != model.Completed {
		t.Fatalf("expected overwritten status %q, got %q", model.Completed, got.Status)
	}
}

func TestRedisCache_StoreOutcome_ContextCanceled(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	c := NewRedisCache(rdb, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.StoreOutcome(ctx, "x", model.Completed, time.Now()); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}
