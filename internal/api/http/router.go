package http

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"caption-gateway/internal/api/http/middleware"
	"caption-gateway/pkg/auth"
	appconfig "caption-gateway/pkg/config"
)

// RouterConfig 路由开关与全局中间件配置
type RouterConfig struct {
	Features     appconfig.FeaturesConfig
	MetricsPath  string
	ProtectAdmin bool
	Gate         *auth.Gate
	CORS         appconfig.CORSConfig
	RateLimit    appconfig.RateLimitConfig
	MaxBodyBytes int
}

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	cfg        RouterConfig
	extra      []app.HandlerFunc
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware, cfg RouterConfig) *Router {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Router{handler: handler, middleware: mw, cfg: cfg}
}

// Use 追加全局中间件（如链路追踪），在 Build 时先于路由注册生效
func (r *Router) Use(mw ...app.HandlerFunc) {
	r.extra = append(r.extra, mw...)
}

// Build 创建 Hertz 实例并注册路由；opts 追加在默认选项之后
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	base := []config.Option{server.WithHostPorts(addr)}
	if r.cfg.MaxBodyBytes > 0 {
		base = append(base, server.WithMaxRequestBodySize(r.cfg.MaxBodyBytes))
	}
	h := server.Default(append(base, opts...)...)

	if len(r.extra) > 0 {
		h.Use(r.extra...)
	}
	h.Use(r.middleware.RequestID(), r.middleware.AccessLog(), r.middleware.Metrics())
	if r.cfg.CORS.Enable {
		h.Use(r.middleware.CORS(r.cfg.CORS.AllowOrigins))
	}
	if r.cfg.RateLimit.Enable && r.cfg.RateLimit.RPS > 0 {
		h.Use(r.middleware.RateLimit(r.cfg.RateLimit.RPS, r.cfg.RateLimit.Burst))
	}

	f := r.cfg.Features
	h.GET("/health", r.handler.HealthCheck)
	if appconfig.BoolOr(f.Predict, true) {
		h.POST("/predict", r.handler.Predict)
	}
	if appconfig.BoolOr(f.Generate, true) {
		h.POST("/generate", r.handler.Generate)
	}
	if appconfig.BoolOr(f.Metrics, true) {
		h.GET(r.cfg.MetricsPath, r.handler.Metrics)
	}

	// 管理类路由：protect_admin 时需要 Bearer token
	admin := h.Group("/")
	if r.cfg.ProtectAdmin {
		admin.Use(r.middleware.RequireBearer(r.cfg.Gate))
	}
	if appconfig.BoolOr(f.Switch, true) {
		admin.POST("/switch", r.handler.SwitchModel)
	}
	if appconfig.BoolOr(f.Model, true) {
		admin.GET("/model", r.handler.CurrentModel)
	}
	if appconfig.BoolOr(f.Log, true) {
		admin.GET("/log", r.handler.Log)
	}
	return h
}
