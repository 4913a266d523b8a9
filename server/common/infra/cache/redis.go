package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func Ping(ctx context.Context, c *redis.Client) error {
	return c.Ping(ctx).Err()
}

// KV is a thin string cache over redis with TTLs.
type KV struct {
	client *redis.Client
	prefix string
}

func NewKV(client *redis.Client, prefix string) *KV {
	return &KV{client: client, prefix: prefix}
}

func (k *KV) key(key string) string {
	return k.prefix + key
}

// Get reports ok=false on a miss.
func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.client.Get(ctx, k.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (k *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return k.client.Set(ctx, k.key(key), value, ttl).Err()
}

// Claim sets key only when absent. It returns false when another caller
// already holds it.
func (k *KV) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return k.client.SetNX(ctx, k.key(key), "1", ttl).Result()
}

func (k *KV) Release(ctx context.Context, key string) error {
	return k.client.Del(ctx, k.key(key)).Err()
}
