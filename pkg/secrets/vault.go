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
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address    string `yaml:"address"`     // Vault server address (e.g., http://vault:8200)
	Token      string `yaml:"token"`       // Vault token
	PathPrefix string `yaml:"path_prefix"` // Secret path prefix (e.g., "secret")
}

type vaultStore struct {
	client     *vault.Client
	pathPrefix string
	mu         sync.RWMutex
	transient  map[string]string
}

// NewVaultStore 创建 Vault Store 并检查连通性
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	prefix := "secret"
	if config.PathPrefix != "" {
		prefix = strings.TrimSuffix(config.PathPrefix, "/")
	}
	return &vaultStore{
		client:     client,
		pathPrefix: prefix,
		transient:  make(map[string]string),
	}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	if val, ok := v.transient[key]; ok {
		v.mu.RUnlock()
		return val, nil
	}
	v.mu.RUnlock()

	secret, err := v.client.Logical().ReadWithContext(ctx, v.buildPath(key))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}

	data := secret.Data
	// KV v2 把值包在 data 字段里
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner
	}
	if val, ok := data["value"].(string); ok {
		return val, nil
	}
	for _, val := range data {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no string value", ErrSecretNotFound, key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	_, err := v.client.Logical().WriteWithContext(ctx, v.buildPath(key), map[string]interface{}{
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}
	v.mu.Lock()
	v.transient[key] = value
	v.mu.Unlock()
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.client.Logical().DeleteWithContext(ctx, v.buildPath(key)); err != nil {
		return fmt.Errorf("failed to delete secret from vault: %w", err)
	}
	v.mu.Lock()
	delete(v.transient, key)
	v.mu.Unlock()
	return nil
}

func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	secret, err := v.client.Logical().ListWithContext(ctx, v.buildPath(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets from vault: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	var result []string
	for _, k := range keys {
		if str, ok := k.(string); ok {
			if prefix != "" && !strings.HasPrefix(str, prefix) {
				str = strings.TrimSuffix(prefix, "/") + "/" + str
			}
			result = append(result, str)
		}
	}
	return result, nil
}

func (v *vaultStore) buildPath(key string) string {
	if key == "" {
		return v.pathPrefix
	}
	return v.pathPrefix + "/" + key
}
