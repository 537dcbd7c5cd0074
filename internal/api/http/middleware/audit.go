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

package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
)

// AccessLog 访问日志：方法、路由、状态码、耗时与请求 ID；不记录请求体（含 token 与图片）
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		status := c.Response.StatusCode()
		attrs := []any{
			"method", string(c.Method()),
			"path", string(c.Path()),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", GetRequestID(c),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			m.logger.Error("http request", attrs...)
		case status >= 400:
			m.logger.Warn("http request", attrs...)
		default:
			m.logger.Info("http request", attrs...)
		}
	}
}
