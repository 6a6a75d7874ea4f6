package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docspace/conversation-service/internal/config"
	"github.com/docspace/conversation-service/internal/model"
	registrycache "github.com/docspace/conversation-service/internal/registry/cache"
	"github.com/docspace/conversation-service/internal/security"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.HistoryCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CONVERSATION_SERVICE_REDIS_URL is required")
	}
	ttl := cfg.CacheHistoryTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURL creates a HistoryCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.HistoryCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisHistoryCache{client: client, ttl: ttl}, nil
}

type redisHistoryCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func historyKey(tipMessageID int64) string {
	return fmt.Sprintf("conv-history:%d", tipMessageID)
}

func (c *redisHistoryCache) Available() bool {
	return true
}

func (c *redisHistoryCache) Get(ctx context.Context, tipMessageID int64) ([]model.Turn, error) {
	data, err := c.client.Get(ctx, historyKey(tipMessageID)).Bytes()
	if err == goredis.Nil {
		if security.CacheMissesTotal != nil {
			security.CacheMissesTotal.Inc()
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var turns []model.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, err
	}
	if security.CacheHitsTotal != nil {
		security.CacheHitsTotal.Inc()
	}
	return turns, nil
}

func (c *redisHistoryCache) Set(ctx context.Context, tipMessageID int64, turns []model.Turn, ttl time.Duration) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, historyKey(tipMessageID), data, ttl).Err()
}

var _ registrycache.HistoryCache = (*redisHistoryCache)(nil)
