package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// fallbackStore serves from a primary (typically Redis) and degrades to a
// local fallback on any primary error. Missing keys are not errors and do
// not trigger the fallback. Writes go to both so the fallback stays warm.
type fallbackStore struct {
	primary  Store
	fallback Store
	logger   *zap.Logger
}

// NewFallbackStore wraps primary with a local fallback store
func NewFallbackStore(primary, fallback Store, logger *zap.Logger) Store {
	return &fallbackStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (f *fallbackStore) degraded(op, key string, err error) {
	f.logger.Warn("primary store degraded, using local fallback",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err))
}

func (f *fallbackStore) Get(ctx context.Context, key string) (string, error) {
	val, err := f.primary.Get(ctx, key)
	if err == nil || IsNotFound(err) {
		return val, err
	}
	f.degraded("get", key, err)
	return f.fallback.Get(ctx, key)
}

func (f *fallbackStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// Keep the fallback warm regardless of primary health.
	if err := f.fallback.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := f.primary.Set(ctx, key, value, ttl); err != nil {
		f.degraded("set", key, err)
	}
	return nil
}

func (f *fallbackStore) Delete(ctx context.Context, key string) error {
	if err := f.fallback.Delete(ctx, key); err != nil {
		return err
	}
	if err := f.primary.Delete(ctx, key); err != nil {
		f.degraded("delete", key, err)
	}
	return nil
}

func (f *fallbackStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := f.primary.Exists(ctx, key)
	if err == nil {
		return ok, nil
	}
	f.degraded("exists", key, err)
	return f.fallback.Exists(ctx, key)
}

func (f *fallbackStore) Increment(ctx context.Context, key string) (int64, error) {
	return f.IncrementBy(ctx, key, 1)
}

func (f *fallbackStore) IncrementBy(ctx context.Context, key string, delta int64) (int64, error) {
	val, err := f.primary.IncrementBy(ctx, key, delta)
	if err == nil {
		return val, nil
	}
	f.degraded("incrby", key, err)
	return f.fallback.IncrementBy(ctx, key, delta)
}

func (f *fallbackStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := f.primary.Expire(ctx, key, ttl); err != nil && !IsNotFound(err) {
		f.degraded("expire", key, err)
		return f.fallback.Expire(ctx, key, ttl)
	}
	return nil
}

func (f *fallbackStore) GetJSON(ctx context.Context, key string, dest interface{}) error {
	err := f.primary.GetJSON(ctx, key, dest)
	if err == nil || IsNotFound(err) {
		return err
	}
	f.degraded("getjson", key, err)
	return f.fallback.GetJSON(ctx, key, dest)
}

func (f *fallbackStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := f.fallback.SetJSON(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := f.primary.SetJSON(ctx, key, value, ttl); err != nil {
		f.degraded("setjson", key, err)
	}
	return nil
}

func (f *fallbackStore) Close() error {
	ferr := f.fallback.Close()
	if err := f.primary.Close(); err != nil {
		return err
	}
	return ferr
}
