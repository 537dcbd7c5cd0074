package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"caption-gateway/pkg/log"
	"caption-gateway/pkg/metrics"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// requestIDKey RequestContext 中保存请求 ID 的 key
const requestIDKey = "request_id"

// ErrorBody 统一错误响应体
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Abort 写错误响应并终止后续 handler
func Abort(c *app.RequestContext, status int, code, detail string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: code, Detail: detail})
}

// Middleware 中间件管理器
type Middleware struct {
	logger *log.Logger
}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware(logger *log.Logger) *Middleware {
	if logger == nil {
		logger = log.Discard()
	}
	return &Middleware{logger: logger}
}

// CORS 跨域中间件；allowOrigins 为空或含 "*" 时允许任意来源
func (m *Middleware) CORS(allowOrigins []string) app.HandlerFunc {
	allowAll := len(allowOrigins) == 0
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return func(ctx context.Context, c *app.RequestContext) {
		origin := string(c.GetHeader("Origin"))
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+RequestIDHeader)
		c.Header("Access-Control-Max-Age", "86400")

		if strings.EqualFold(string(c.Method()), consts.MethodOptions) {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// RequestID 透传或生成请求 ID
func (m *Middleware) RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Response.Header.Set(RequestIDHeader, id)
		c.Next(ctx)
	}
}

// GetRequestID 返回 RequestID 中间件设置的请求 ID
func GetRequestID(c *app.RequestContext) string {
	return c.GetString(requestIDKey)
}

// RateLimit 全局令牌桶限流，超限返回 429
func (m *Middleware) RateLimit(rps float64, burst int) app.HandlerFunc {
	if burst < 1 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(ctx context.Context, c *app.RequestContext) {
		if !limiter.Allow() {
			Abort(c, consts.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		c.Next(ctx)
	}
}

// Metrics 记录请求数与耗时
func (m *Middleware) Metrics() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestTotal.WithLabelValues(route, strconv.Itoa(c.Response.StatusCode())).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
