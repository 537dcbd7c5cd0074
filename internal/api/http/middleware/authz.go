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

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"caption-gateway/pkg/auth"
	"caption-gateway/pkg/errors"
	"caption-gateway/pkg/metrics"
)

// RequireBearer 管理类路由的 token 校验：Authorization: Bearer <token>
func (m *Middleware) RequireBearer(gate *auth.Gate) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if !gate.Enabled() {
			c.Next(ctx)
			return
		}
		token := auth.BearerToken(string(c.GetHeader("Authorization")))
		if err := gate.Check(token); err != nil {
			metrics.AuthDeniedTotal.WithLabelValues(c.FullPath()).Inc()
			m.logger.Warn("unauthorized admin request", "path", string(c.Path()), "request_id", GetRequestID(c))
			Abort(c, consts.StatusUnauthorized, errors.KindUnauthorized.String(), "invalid or missing token")
			return
		}
		c.Next(ctx)
	}
}
