package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache miss")

// Cache stores JSON-encoded values under string keys.
// Get returns ErrMiss when the key is absent or expired.
type Cache interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// GetOrLoad returns the cached value for key, or calls load and stores its
// result. A broken cache degrades to calling load on every request.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var out T
	if c != nil {
		if err := c.Get(ctx, key, &out); err == nil {
			return out, nil
		}
	}
	out, err := load(ctx)
	if err != nil {
		return out, err
	}
	if c != nil {
		_ = c.Set(ctx, key, out, ttl)
	}
	return out, nil
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode(raw []byte, dst any) error {
	return json.Unmarshal(raw, dst)
}
