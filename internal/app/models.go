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
	"errors"
	"fmt"
	"strings"
	"time"

	"caption-gateway/internal/model"
	"caption-gateway/internal/model/vision"
	"caption-gateway/pkg/config"
	"caption-gateway/pkg/secrets"
)

// 内置 provider 名称
const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
	ProviderONNX        = "onnx"
	ProviderStatic      = "static"
)

// NewVisionRegistry 根据 config.Model.Vision 注册所有 provider 的 Factory，并返回共享的限流器
func NewVisionRegistry(cfg *config.Config, store secrets.Store) (*model.Registry, *vision.RateLimiter) {
	vc := cfg.Model.Vision
	reg := model.NewRegistry(vc.DefaultProvider)

	limits := make(map[string]vision.LimitConfig, len(vc.Providers))
	for name, pc := range vc.Providers {
		limits[name] = vision.LimitConfig{
			RequestsPerMinute: pc.RateLimit.RequestsPerMinute,
			MaxConcurrent:     pc.RateLimit.MaxConcurrent,
		}
	}

	factories := map[string]func(ctx context.Context, name string, pc config.ProviderConfig, key string) (vision.Client, error){
		ProviderHuggingFace: func(ctx context.Context, name string, pc config.ProviderConfig, key string) (vision.Client, error) {
			return vision.NewHuggingFaceClient(vision.HuggingFaceConfig{
				Model: name, APIKey: key, BaseURL: pc.BaseURL, HubURL: pc.HubURL, Timeout: parseDuration(pc.Timeout),
			})
		},
		ProviderOpenAI: func(ctx context.Context, name string, pc config.ProviderConfig, key string) (vision.Client, error) {
			return vision.NewOpenAIClient(vision.OpenAIConfig{
				Model: name, APIKey: key, BaseURL: pc.BaseURL, Prompt: pc.Prompt, Timeout: parseDuration(pc.Timeout),
			})
		},
		ProviderGemini: func(ctx context.Context, name string, pc config.ProviderConfig, key string) (vision.Client, error) {
			return vision.NewGeminiClient(ctx, vision.GeminiConfig{
				Model: name, APIKey: key, BaseURL: pc.BaseURL, Prompt: pc.Prompt,
			})
		},
		ProviderONNX: func(ctx context.Context, name string, pc config.ProviderConfig, key string) (vision.Client, error) {
			dir := pc.ModelsDir
			if dir == "" {
				dir = "models"
			}
			return vision.NewONNXClient(vision.ONNXConfig{Model: name, ModelsDir: dir, SharedLibrary: pc.SharedLibrary})
		},
		ProviderStatic: func(ctx context.Context, name string, pc config.ProviderConfig, key string) (vision.Client, error) {
			return vision.NewStaticClient(name)
		},
	}

	for provider, build := range factories {
		pc := vc.Providers[provider]
		defaults := vision.Options{
			MaxNewTokens:  pc.MaxNewTokens,
			NumCandidates: pc.Candidates,
		}
		reg.Register(provider, func(ctx context.Context, name string) (vision.Client, error) {
			key, err := providerAPIKey(ctx, store, provider, pc)
			if err != nil {
				return nil, err
			}
			c, err := build(ctx, name, pc, key)
			if err != nil {
				return nil, err
			}
			return vision.WithDefaults(c, defaults), nil
		}, pc.Models...)
	}
	return reg, vision.NewRateLimiter(limits)
}

// providerAPIKey 优先用配置中的 api_key，其次 secret store 中的 <PROVIDER>_API_KEY
func providerAPIKey(ctx context.Context, store secrets.Store, provider string, pc config.ProviderConfig) (string, error) {
	if pc.APIKey != "" || store == nil {
		return pc.APIKey, nil
	}
	key, err := store.Get(ctx, strings.ToUpper(provider)+"_API_KEY")
	if errors.Is(err, secrets.ErrSecretNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s api key: %w", provider, err)
	}
	return key, nil
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
