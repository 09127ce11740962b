package ingest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupFilter is the fast-path duplicate check in front of the message
// store. It is advisory: a miss (or an error) just means the store lookup
// decides, so redis being down never blocks ingestion.
type DedupFilter interface {
	// FirstSeen claims key and reports whether this call was the first to
	// see it within the filter's window.
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// RedisDedup implements DedupFilter with SETNX + TTL.
type RedisDedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDedup(rdb *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedup{rdb: rdb, ttl: ttl}
}

func (d *RedisDedup) FirstSeen(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, "juralis:dedup:"+key, 1, d.ttl).Result()
}
