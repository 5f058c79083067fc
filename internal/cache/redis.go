package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lpdev/bitpredector/internal/source"
)

const redisKeyPrefix = "bitpredector:result:"

// RedisBackend stores fetch results in Redis as JSON, one key per
// (source, keyword) with the cache TTL as expiry.
type RedisBackend struct {
	rdb goredis.Cmdable
}

// NewRedisBackend wraps a connected client.
func NewRedisBackend(rdb goredis.Cmdable) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

// OpenRedis connects to a redis:// URL and checks the connection.
func OpenRedis(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (b *RedisBackend) Get(ctx context.Context, sourceName, keyword string) ([]source.Item, time.Duration, bool, error) {
	key := redisKey(sourceName, keyword)

	pipe := b.rdb.Pipeline()
	get := pipe.Get(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	data, err := get.Bytes()
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var items []source.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, false, fmt.Errorf("decode cached items: %w", err)
	}
	return items, pttl.Val(), true, nil
}

func (b *RedisBackend) Set(ctx context.Context, sourceName, keyword string, items []source.Item, ttl time.Duration) error {
	if items == nil {
		items = []source.Item{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if err := b.rdb.Set(ctx, redisKey(sourceName, keyword), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Invalidate(ctx context.Context, sourceName string) error {
	var keys []string
	iter := b.rdb.Scan(ctx, 0, redisKeyPrefix+sourceName+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func redisKey(sourceName, keyword string) string {
	return redisKeyPrefix + sourceName + ":" + keyword
}
