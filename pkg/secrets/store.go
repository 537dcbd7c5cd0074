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

package secrets

import (
	"context"
	"errors"
	"fmt"
)

// ErrSecretNotFound secret 不存在
var ErrSecretNotFound = errors.New("secret not found")

// Store secret 存储接口
type Store interface {
	// Get 获取 secret 值，不存在时返回 ErrSecretNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出所有 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config secret store 配置
type Config struct {
	Provider string      `yaml:"provider"` // vault | k8s | env | memory
	Vault    VaultConfig `yaml:"vault"`
	K8s      K8sConfig   `yaml:"k8s"`
}

// NewStore 按 provider 创建 Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(), nil
	case "", "env":
		return NewEnvStore(), nil
	case "vault":
		return NewVaultStore(config.Vault)
	case "k8s":
		return NewK8sStore(config.K8s)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}
