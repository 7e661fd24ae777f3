package statuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "accessgate:status:"

// RedisBackend shares entries through Redis. Keys expire after ttl, which
// callers set to the cache's freshness window.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

// key escapes both parts so ':' inside an identity or resource id cannot
// make two pairs collide.
func (b *RedisBackend) key(namespace, resourceID string) string {
	return b.prefix + url.QueryEscape(namespace) + ":" + url.QueryEscape(resourceID)
}

func (b *RedisBackend) Load(ctx context.Context, namespace, resourceID string) (Entry, bool, error) {
	raw, err := b.client.Get(ctx, b.key(namespace, resourceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, true, nil
}

func (b *RedisBackend) Store(ctx context.Context, namespace, resourceID string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.key(namespace, resourceID), raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, namespace, resourceID string) error {
	if err := b.client.Del(ctx, b.key(namespace, resourceID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
