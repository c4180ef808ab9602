package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis serves Get and Set from a map; other commands are not used.
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestOwnerCache_Miss(t *testing.T) {
	c := NewOwnerCache(newFakeRedis(), time.Hour)

	_, ok, err := c.GetOwner(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetOwner returned error: %v", err)
	}
	if ok {
		t.Error("Expected a cache miss")
	}
}

func TestOwnerCache_SetThenGet(t *testing.T) {
	rdb := newFakeRedis()
	c := NewOwnerCache(rdb, time.Hour)

	if err := c.SetOwner(context.Background(), 9, 77); err != nil {
		t.Fatalf("SetOwner returned error: %v", err)
	}
	if rdb.ttls["restaurant:9:owner"] != time.Hour {
		t.Errorf("Expected TTL %v, got %v", time.Hour, rdb.ttls["restaurant:9:owner"])
	}

	owner, ok, err := c.GetOwner(context.Background(), 9)
	if err != nil || !ok {
		t.Fatalf("GetOwner: ok=%v err=%v", ok, err)
	}
	if owner != 77 {
		t.Errorf("Expected owner 77, got %d", owner)
	}
}

func TestOwnerCache_CorruptEntry(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data["restaurant:9:owner"] = "not-a-number"
	c := NewOwnerCache(rdb, time.Hour)

	if _, _, err := c.GetOwner(context.Background(), 9); err == nil {
		t.Error("Expected an error for a corrupt entry")
	}
}

func TestOwnerCache_RedisDown(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	c := NewOwnerCache(rdb, time.Hour)

	if _, _, err := c.GetOwner(context.Background(), 9); err == nil {
		t.Error("Expected an error when Redis is unreachable")
	}
}
