// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"fmt"

	"caption-gateway/pkg/config"
	"caption-gateway/pkg/utils"
)

// NewCache 根据配置创建缓存
func NewCache(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "none", "off":
		return NoopStore{}, nil
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, utils.CoalesceString(cfg.Addr, "localhost:6379"), cfg.Password, cfg.DB)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("cache.dsn is required for postgres cache")
		}
		return NewPostgresStore(ctx, cfg.DSN)
	case "sqlite":
		return NewSQLiteStore(ctx, utils.CoalesceString(cfg.Path, "data/caption_cache.db"))
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
