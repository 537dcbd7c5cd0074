package cache

import (
	"context"
	"time"
)

// NoopStore 关闭缓存时使用：写入丢弃，读取总是未命中
type NoopStore struct{}

func (NoopStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}

func (NoopStore) Get(ctx context.Context, key string, dest interface{}) error { return ErrMiss }

func (NoopStore) Delete(ctx context.Context, key string) error { return nil }

func (NoopStore) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (NoopStore) Clear(ctx context.Context) error { return nil }

func (NoopStore) Close() error { return nil }
