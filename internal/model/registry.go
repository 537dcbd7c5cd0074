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

package model

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"caption-gateway/internal/model/vision"
	"caption-gateway/pkg/errors"
)

// Factory 按模型名构建一个 vision.Client
type Factory func(ctx context.Context, model string) (vision.Client, error)

type provider struct {
	factory Factory
	allow   map[string]struct{} // 为空表示不限制
}

// Registry 模型提供方注册表：provider 名称 -> Factory
type Registry struct {
	mu              sync.RWMutex
	providers       map[string]*provider
	defaultProvider string
}

// NewRegistry 创建注册表；defaultProvider 用于解析不带前缀的标识
func NewRegistry(defaultProvider string) *Registry {
	return &Registry{
		providers:       make(map[string]*provider),
		defaultProvider: defaultProvider,
	}
}

// Register 注册 provider；allow 非空时只允许加载其中的模型
func (r *Registry) Register(name string, f Factory, allow ...string) {
	p := &provider{factory: f}
	if len(allow) > 0 {
		p.allow = make(map[string]struct{}, len(allow))
		for _, m := range allow {
			p.allow[m] = struct{}{}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Providers 已注册的 provider 名称（排序）
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) get(name string) (*provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Identifier 解析后的模型标识 provider:model
type Identifier struct {
	Provider string
	Model    string
}

func (id Identifier) String() string {
	return id.Provider + ":" + id.Model
}

// Parse 解析模型标识；前缀不是已注册 provider 时整串作为默认 provider 下的模型名
func (r *Registry) Parse(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, errors.E(errors.KindBadRequest, "parse model", fmt.Errorf("model identifier is empty"))
	}
	if prefix, rest, ok := strings.Cut(raw, ":"); ok {
		if _, known := r.get(prefix); known {
			if rest == "" {
				return Identifier{}, errors.E(errors.KindBadRequest, "parse model", fmt.Errorf("model name missing after %q", prefix+":"))
			}
			return Identifier{Provider: prefix, Model: rest}, nil
		}
	}
	return Identifier{Provider: r.defaultProvider, Model: raw}, nil
}

// Loader 构建、探测并包装模型客户端
type Loader struct {
	registry *Registry
	limiter  *vision.RateLimiter
}

// NewLoader 创建 Loader；limiter 可为 nil
func NewLoader(registry *Registry, limiter *vision.RateLimiter) *Loader {
	return &Loader{registry: registry, limiter: limiter}
}

// Load 加载 raw 标识对应的客户端；任何失败均为 KindModelLoad（标识为空时为 KindBadRequest）
func (l *Loader) Load(ctx context.Context, raw string) (vision.Client, error) {
	const op = "load model"
	id, err := l.registry.Parse(raw)
	if err != nil {
		return nil, err
	}
	p, ok := l.registry.get(id.Provider)
	if !ok {
		return nil, errors.E(errors.KindModelLoad, op, fmt.Errorf("unknown provider %q", id.Provider))
	}
	if p.allow != nil {
		if _, allowed := p.allow[id.Model]; !allowed {
			return nil, errors.E(errors.KindModelLoad, op, fmt.Errorf("model %q is not enabled for provider %s", id.Model, id.Provider))
		}
	}

	client, err := p.factory(ctx, id.Model)
	if err != nil {
		return nil, errors.E(errors.KindModelLoad, op, fmt.Errorf("%s: %w", id, err))
	}
	if err := vision.Probe(ctx, client); err != nil {
		closeClient(client)
		return nil, errors.E(errors.KindModelLoad, op, fmt.Errorf("%s: %w", id, err))
	}
	return vision.NewRateLimitedClient(client, id.Provider, l.limiter), nil
}
