package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/geniass/stockwatch/pkg/scraper"
)

const (
	DefaultKeyPrefix = "stockwatch:result:"
	clearScanCount   = 100
)

// Redis shares results between processes. Redis failures are logged and behave as misses.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, prefix string, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix, log: logger}
}

func (r *Redis) Get(ctx context.Context, code string) (scraper.FetchResult, bool) {
	data, err := r.client.Get(ctx, r.prefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return scraper.FetchResult{}, false
	}
	if err != nil {
		r.log.Warn("cache get failed", "code", code, "error", err)
		return scraper.FetchResult{}, false
	}

	var result scraper.FetchResult
	if err := json.Unmarshal(data, &result); err != nil {
		r.log.Warn("cache entry unreadable", "code", code, "error", err)
		return scraper.FetchResult{}, false
	}
	return result, true
}

func (r *Redis) Set(ctx context.Context, code string, result scraper.FetchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		r.log.Warn("cache entry not encodable", "code", code, "error", err)
		return
	}
	if err := r.client.Set(ctx, r.prefix+code, data, r.ttl).Err(); err != nil {
		r.log.Warn("cache set failed", "code", code, "error", err)
	}
}

// Clear deletes every key under the prefix. Keys of other applications are left alone.
func (r *Redis) Clear(ctx context.Context) {
	if err := r.clear(ctx); err != nil {
		r.log.Warn("cache clear failed", "error", err)
	}
}

func (r *Redis) clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", clearScanCount).Result()
		if err != nil {
			return errors.Wrap(err, "scan")
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, "del")
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
