package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"caption-gateway/internal/api/http"
	"caption-gateway/internal/api/http/middleware"
	"caption-gateway/internal/app"
	"caption-gateway/pkg/config"
	"caption-gateway/pkg/log"
	"caption-gateway/pkg/tracing"
	"caption-gateway/pkg/utils"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 HTTP Router、Handler、Middleware）
type App struct {
	bootstrap    *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Service == nil {
		return nil, fmt.Errorf("bootstrap is not initialized")
	}
	cfg := bootstrap.Config

	handler := http.NewHandler(http.HandlerConfig{
		Service:              bootstrap.Service,
		Binding:              bootstrap.Binding,
		Gate:                 bootstrap.Gate,
		LogFile:              cfg.Diagnostics.LogFile,
		ExposeInternalErrors: cfg.API.ExposeInternalErrors,
		Logger:               bootstrap.Logger,
	})
	metricsEnabled := cfg.Monitoring.Prometheus.Enable
	features := cfg.API.Features
	if features.Metrics == nil {
		features.Metrics = &metricsEnabled
	}
	router := http.NewRouter(handler, middleware.NewMiddleware(bootstrap.Logger), http.RouterConfig{
		Features:     features,
		MetricsPath:  cfg.Monitoring.Prometheus.Path,
		ProtectAdmin: config.BoolOr(cfg.Auth.ProtectAdmin, cfg.Auth.Enable),
		Gate:         bootstrap.Gate,
		CORS:         cfg.API.CORS,
		RateLimit:    cfg.API.RateLimit,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
	})
	return &App{bootstrap: bootstrap, router: router}, nil
}

// Run 启动 HTTP 服务（阻塞）
func (a *App) Run(addr string) error {
	cfg := a.bootstrap.Config
	a.bootstrap.Logger.Info("API 服务启动", "addr", addr, "model", a.bootstrap.Binding.CurrentModel())

	// Hertz 框架日志走 slog，与 bootstrap 的输出和级别对齐
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(a.bootstrap.Logger.Writer()),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪（OpenTelemetry）
	tc := cfg.Monitoring.Tracing
	exportEndpoint := utils.CoalesceString(tc.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if tc.Enable && exportEndpoint != "" {
		serviceName := utils.CoalesceString(tc.ServiceName, "caption-gateway")
		if tc.Protocol == "http" {
			tp, err := tracing.InitTracer(context.Background(), tracing.OTelConfig{
				ServiceName:    serviceName,
				ExportEndpoint: exportEndpoint,
				Insecure:       tc.Insecure,
			})
			if err != nil {
				return fmt.Errorf("初始化链路追踪失败: %w", err)
			}
			a.otelProvider = tp
		} else {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if tc.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
		}
		tracerOpt, tracerCfg := hertztracing.NewServerTracer()
		// 须在路由注册前加入，hertz 在注册时合并中间件
		a.router.Use(hertztracing.ServerMiddleware(tracerCfg))
		a.hertz = a.router.Build(addr, tracerOpt)
		a.bootstrap.Logger.Info("链路追踪已启用", "endpoint", exportEndpoint, "protocol", utils.CoalesceString(tc.Protocol, "grpc"))
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if a.hertz != nil {
		firstErr = a.hertz.Shutdown(ctx)
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if err := a.bootstrap.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
