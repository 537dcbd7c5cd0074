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
	"io"
	"time"

	"caption-gateway/pkg/metrics"
)

// RateLimitedClient 包装任意 Client，在真实调用前后执行限流控制
type RateLimitedClient struct {
	inner       Client
	provider    string
	rateLimiter *RateLimiter
}

// NewRateLimitedClient 创建带限流的客户端。rateLimiter 为 nil 时退化为直接调用。
func NewRateLimitedClient(inner Client, provider string, rateLimiter *RateLimiter) *RateLimitedClient {
	return &RateLimitedClient{inner: inner, provider: provider, rateLimiter: rateLimiter}
}

// Name 返回内部模型名称
func (c *RateLimitedClient) Name() string { return c.inner.Name() }

// Unwrap 返回被包装的客户端
func (c *RateLimitedClient) Unwrap() Client { return c.inner }

// Caption 实现 Client.Caption，调用前后执行限流
func (c *RateLimitedClient) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	if c.rateLimiter != nil {
		start := time.Now()
		if err := c.rateLimiter.Wait(ctx, c.provider); err != nil {
			return nil, err
		}
		if waited := time.Since(start); waited > 100*time.Millisecond {
			metrics.RateLimitWaitSeconds.WithLabelValues(c.provider).Observe(waited.Seconds())
		}
		defer c.rateLimiter.Release(c.provider)
	}
	return c.inner.Caption(ctx, in, opts)
}

// Probe 透传给内部客户端
func (c *RateLimitedClient) Probe(ctx context.Context) error {
	return Probe(ctx, c.inner)
}

// Close 内部客户端持有资源时关闭
func (c *RateLimitedClient) Close() error {
	if cl, ok := c.inner.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
