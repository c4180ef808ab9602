package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Ammar797/treatz-backend/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

// OwnerCache remembers which user owns a restaurant. Ownership changes are
// rare, so entries live for the configured TTL.
type OwnerCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewOwnerCache(rdb redis.Cmdable, ttl time.Duration) *OwnerCache {
	return &OwnerCache{rdb: rdb, ttl: ttl}
}

func ownerKey(restaurantID int64) string {
	return fmt.Sprintf("restaurant:%d:owner", restaurantID)
}

// GetOwner reports a miss as (0, false, nil).
func (c *OwnerCache) GetOwner(ctx context.Context, restaurantID int64) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, ownerKey(restaurantID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	ownerID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt owner cache entry for restaurant %d: %w", restaurantID, err)
	}
	return ownerID, true, nil
}

func (c *OwnerCache) SetOwner(ctx context.Context, restaurantID, ownerID int64) error {
	return c.rdb.Set(ctx, ownerKey(restaurantID), ownerID, c.ttl).Err()
}
