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

package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"caption-gateway/internal/caption"
	"caption-gateway/internal/model"
	"caption-gateway/internal/storage/cache"
	"caption-gateway/pkg/auth"
	"caption-gateway/pkg/config"
	"caption-gateway/pkg/log"
	"caption-gateway/pkg/secrets"
)

// Bootstrap 统一初始化：日志、secret、token gate、缓存、模型绑定与 caption 服务
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	Secrets  secrets.Store
	Gate     *auth.Gate
	Cache    cache.Store
	Registry *model.Registry
	Binding  *model.Binding
	Service  *caption.Service
}

// NewBootstrap 根据配置创建 Bootstrap；生成的 token 只输出到 stderr
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	return newBootstrap(ctx, cfg, os.Stderr)
}

func newBootstrap(ctx context.Context, cfg *config.Config, console io.Writer) (*Bootstrap, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	b := &Bootstrap{Config: cfg, Logger: logger}

	b.Secrets, err = secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
		K8s: secrets.K8sConfig{
			ServiceAccountPath: cfg.Secrets.K8s.ServiceAccountPath,
			SecretsPath:        cfg.Secrets.K8s.SecretsPath,
			Namespace:          cfg.Secrets.K8s.Namespace,
		},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("初始化 secret store 失败: %w", err)
	}

	if err := b.initGate(ctx, console); err != nil {
		b.Close()
		return nil, err
	}

	b.Cache, err = cache.NewCache(ctx, cfg.Cache)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	registry, limiter := NewVisionRegistry(cfg, b.Secrets)
	b.Registry = registry
	b.Binding = model.NewBinding(model.NewLoader(registry, limiter), logger)
	if err := b.Binding.Init(ctx, cfg.Model.Vision.Default); err != nil {
		b.Close()
		return nil, fmt.Errorf("加载默认模型 %q 失败: %w", cfg.Model.Vision.Default, err)
	}

	b.Service = caption.NewService(b.Binding, b.Cache, caption.Config{
		MaxImages:     cfg.API.MaxImages,
		MaxImageBytes: cfg.API.MaxImageBytes,
		Timeout:       parseDuration(cfg.API.Timeout),
		CacheTTL:      parseDuration(cfg.Cache.TTL),
	}, logger)

	logger.Info("bootstrap ready",
		"model", b.Binding.CurrentModel(),
		"providers", registry.Providers(),
		"cache", cfg.Cache.Type,
		"auth", b.Gate.Enabled())
	return b, nil
}

// initGate 读取进程 secret；缺失时按配置生成并仅向 console 输出一次
func (b *Bootstrap) initGate(ctx context.Context, console io.Writer) error {
	ac := b.Config.Auth
	if !ac.Enable {
		b.Gate = auth.Disabled()
		b.Logger.Warn("auth disabled: /predict and /generate accept any caller")
		return nil
	}
	token, generated, err := auth.ResolveToken(ctx, b.Secrets, ac.TokenKey, ac.GenerateIfMissing)
	if err != nil {
		return fmt.Errorf("初始化 token 失败: %w", err)
	}
	if generated {
		fmt.Fprintf(console, "generated API token (%s not set): %s\n", ac.TokenKey, token)
		b.Logger.Info("generated a new API token; it was printed to the console only", "token_key", ac.TokenKey)
	}
	b.Gate, err = auth.NewGate(token)
	return err
}

// Close 释放绑定、缓存与日志文件
func (b *Bootstrap) Close() error {
	if b.Binding != nil {
		_ = b.Binding.Close()
	}
	if b.Cache != nil {
		_ = b.Cache.Close()
	}
	if b.Logger != nil {
		return b.Logger.Close()
	}
	return nil
}
