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

package vision

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// LimitConfig Provider 维度限流配置
type LimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"` // 每分钟请求数
	MaxConcurrent     int     `mapstructure:"max_concurrent"`      // 最大并发请求数
}

// RateLimiter Provider 维度的限流器：RPS + 并发控制
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*providerLimiter // provider -> limiter
	configs  map[string]LimitConfig
}

type providerLimiter struct {
	requestLimiter *rate.Limiter // RPS 限流器
	semaphore      chan struct{} // 并发控制
}

// NewRateLimiter 创建限流器；未配置的 provider 不限流
func NewRateLimiter(configs map[string]LimitConfig) *RateLimiter {
	l := &RateLimiter{
		limiters: make(map[string]*providerLimiter),
		configs:  make(map[string]LimitConfig, len(configs)),
	}
	for provider, cfg := range configs {
		l.configs[provider] = cfg
	}
	return l
}

func newProviderLimiter(cfg LimitConfig) *providerLimiter {
	pl := &providerLimiter{}
	if cfg.RequestsPerMinute > 0 {
		rps := cfg.RequestsPerMinute / 60.0
		burst := int(rps * 2) // burst = 2 秒的配额
		if burst < 1 {
			burst = 1
		}
		pl.requestLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if cfg.MaxConcurrent > 0 {
		pl.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return pl
}

// limiter 懒创建；同一 provider 的所有 client（包括切换前后）共享一个
func (l *RateLimiter) limiter(provider string) *providerLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl, ok := l.limiters[provider]
	if !ok {
		pl = newProviderLimiter(l.configs[provider])
		l.limiters[provider] = pl
	}
	return pl
}

// Wait 等待获取执行许可（阻塞直到可以执行）
func (l *RateLimiter) Wait(ctx context.Context, provider string) error {
	pl := l.limiter(provider)
	if pl.requestLimiter != nil {
		if err := pl.requestLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("request rate limit wait failed: %w", err)
		}
	}
	if pl.semaphore != nil {
		select {
		case pl.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Release 释放并发 slot（在模型调用完成后调用）
func (l *RateLimiter) Release(provider string) {
	pl := l.limiter(provider)
	if pl.semaphore != nil {
		select {
		case <-pl.semaphore:
		default:
		}
	}
}
