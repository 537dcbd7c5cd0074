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
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// K8sConfig Kubernetes 挂载 secret 配置
type K8sConfig struct {
	// ServiceAccountPath 用于判断是否运行在 Kubernetes 内
	// 默认: /var/run/secrets/kubernetes.io/serviceaccount
	ServiceAccountPath string `yaml:"service_account_path"`

	// SecretsPath Secret 卷挂载目录，每个 key 一个文件
	SecretsPath string `yaml:"secrets_path"`

	// Namespace pod 所在 namespace
	Namespace string `yaml:"namespace"`
}

// k8sStore 读取以文件形式挂载的 Kubernetes Secret
type k8sStore struct {
	secretsPath string
	namespace   string
	mu          sync.RWMutex
	cache       map[string]string
}

// NewK8sStore 创建 k8s Store；service account 目录不存在时返回错误
func NewK8sStore(config K8sConfig) (Store, error) {
	saPath := "/var/run/secrets/kubernetes.io/serviceaccount"
	if config.ServiceAccountPath != "" {
		saPath = config.ServiceAccountPath
	}
	if _, err := os.Stat(saPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("kubernetes service account path not found: %s (not running in Kubernetes?)", saPath)
	}

	secretsPath := "/etc/secrets"
	if config.SecretsPath != "" {
		secretsPath = config.SecretsPath
	}
	namespace := "default"
	if config.Namespace != "" {
		namespace = config.Namespace
	}

	return &k8sStore{
		secretsPath: secretsPath,
		namespace:   namespace,
		cache:       make(map[string]string),
	}, nil
}

func (k *k8sStore) Get(ctx context.Context, key string) (string, error) {
	k.mu.RLock()
	if val, ok := k.cache[key]; ok {
		k.mu.RUnlock()
		return val, nil
	}
	k.mu.RUnlock()

	candidates := []string{
		filepath.Join(k.secretsPath, key),
		filepath.Join("/run/secrets/kubernetes.io", k.namespace, key),
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		// 挂载文件通常带结尾换行
		val := strings.TrimRight(string(data), "\r\n")
		k.mu.Lock()
		k.cache[key] = val
		k.mu.Unlock()
		return val, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// Set 挂载的 Secret 只读，这里只写入进程内缓存
func (k *k8sStore) Set(ctx context.Context, key string, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cache[key] = value
	return nil
}

func (k *k8sStore) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.cache, key)
	return nil
}

func (k *k8sStore) List(ctx context.Context, prefix string) ([]string, error) {
	seen := map[string]bool{}
	var keys []string
	entries, err := os.ReadDir(k.secretsPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, e := range entries {
		// Secret 卷里的 ..data 等是符号链接目录
		if e.IsDir() || strings.HasPrefix(e.Name(), "..") {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) && !seen[e.Name()] {
			seen[e.Name()] = true
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}
