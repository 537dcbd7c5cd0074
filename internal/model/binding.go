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
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"caption-gateway/internal/model/vision"
	"caption-gateway/pkg/errors"
	"caption-gateway/pkg/log"
	"caption-gateway/pkg/metrics"
	"caption-gateway/pkg/tracing"
)

// ClientLoader 按标识构建客户端
type ClientLoader interface {
	Load(ctx context.Context, id string) (vision.Client, error)
}

// bound 一次绑定：标识 + 客户端 + 租约计数
type bound struct {
	id     string
	client vision.Client

	mu      sync.Mutex
	refs    int
	retired bool
	once    sync.Once
}

func (b *bound) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.retired {
		return false
	}
	b.refs++
	return true
}

func (b *bound) release() {
	b.mu.Lock()
	b.refs--
	idle := b.retired && b.refs == 0
	b.mu.Unlock()
	if idle {
		b.close()
	}
}

// retire 被替换后调用；无租约时立即关闭，否则由最后一个租约关闭
func (b *bound) retire() {
	b.mu.Lock()
	b.retired = true
	idle := b.refs == 0
	b.mu.Unlock()
	if idle {
		b.close()
	}
}

func (b *bound) close() {
	b.once.Do(func() { closeClient(b.client) })
}

func closeClient(c vision.Client) {
	if cl, ok := c.(io.Closer); ok {
		_ = cl.Close()
	}
}

// Lease 请求开始时获取的绑定快照；整个请求使用同一个客户端
type Lease struct {
	b    *bound
	once sync.Once
}

// Client 租约对应的客户端
func (l *Lease) Client() vision.Client { return l.b.client }

// ID 租约对应的模型标识
func (l *Lease) ID() string { return l.b.id }

// Release 归还租约，可重复调用
func (l *Lease) Release() {
	l.once.Do(l.b.release)
}

// Binding 当前生效的模型绑定；读无锁，切换串行
type Binding struct {
	loader  ClientLoader
	logger  *log.Logger
	mu      sync.Mutex // 串行化切换
	current atomic.Pointer[bound]
}

// NewBinding 创建未绑定的 Binding；logger 为 nil 时丢弃日志
func NewBinding(loader ClientLoader, logger *log.Logger) *Binding {
	if logger == nil {
		logger = log.Discard()
	}
	return &Binding{loader: loader, logger: logger}
}

// Init 启动时绑定初始模型
func (b *Binding) Init(ctx context.Context, id string) error {
	_, err := b.SwitchModel(ctx, id)
	return err
}

// SwitchModel 构建并探测新模型，成功后原子替换；失败时原绑定保持不变。
// 标识去除首尾空白后保存，CurrentModel 与缓存 key 都使用该形式。
func (b *Binding) SwitchModel(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, span := tracing.StartSwitchSpan(ctx, id)
	client, err := b.loader.Load(ctx, id)
	tracing.EndSpan(span, err)
	if err != nil {
		metrics.ModelSwitchTotal.WithLabelValues("error").Inc()
		b.logger.Warn("model switch failed", "model", id, "current", b.CurrentModel(), "error", err)
		if !errors.Is(err, errors.KindBadRequest) && !errors.Is(err, errors.KindModelLoad) {
			err = errors.E(errors.KindModelLoad, "switch model", err)
		}
		return "", err
	}

	next := &bound{id: id, client: client}
	prev := b.current.Swap(next)
	previous := ""
	if prev != nil {
		previous = prev.id
		prev.retire()
	}
	metrics.ModelSwitchTotal.WithLabelValues("ok").Inc()
	metrics.SetActiveModel(previous, id)
	b.logger.Info("model switched", "model", id, "previous", previous)
	return id, nil
}

// CurrentModel 当前绑定的模型标识；未绑定时为空
func (b *Binding) CurrentModel() string {
	if cur := b.current.Load(); cur != nil {
		return cur.id
	}
	return ""
}

// Acquire 获取当前绑定的租约，调用方必须 Release
func (b *Binding) Acquire() (*Lease, error) {
	for {
		cur := b.current.Load()
		if cur == nil {
			return nil, errors.E(errors.KindInternal, "acquire model", fmt.Errorf("no model bound"))
		}
		if cur.acquire() {
			return &Lease{b: cur}, nil
		}
		// 读到的绑定刚被替换，重试读取新绑定
	}
}

// Close 解除当前绑定并释放其资源（等待在途租约归还后关闭）
func (b *Binding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev := b.current.Swap(nil); prev != nil {
		prev.retire()
		metrics.SetActiveModel(prev.id, "")
	}
	return nil
}
