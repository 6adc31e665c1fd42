package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// GoRedisAdapter narrows *redis.Client down to the RedisClient interface,
// the same narrowing the teacher applies in internal/fabric so this package
// never imports go-redis types in its public API.
type GoRedisAdapter struct {
	Client *redis.Client
}

func NewGoRedisAdapter(client *redis.Client) *GoRedisAdapter {
	return &GoRedisAdapter{Client: client}
}

func (a *GoRedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.Client.Set(ctx, key, value, ttl).Err()
}

func (a *GoRedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := a.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRedisMiss
	}
	return b, err
}

func (a *GoRedisAdapter) Del(ctx context.Context, keys ...string) error {
	return a.Client.Del(ctx, keys...).Err()
}

func (a *GoRedisAdapter) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	vals, err := a.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}
