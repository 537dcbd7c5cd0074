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

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"caption-gateway/pkg/secrets"
)

// ErrTokenMismatch 请求 token 与进程 secret 不一致
var ErrTokenMismatch = errors.New("token mismatch")

// tokenBytes 生成 token 的随机字节数（hex 后 64 字符）
const tokenBytes = 32

// Gate 共享 secret 校验；无会话、无过期、无轮换
type Gate struct {
	token   []byte
	enabled bool
}

// NewGate 创建启用的 Gate，token 不能为空
func NewGate(token string) (*Gate, error) {
	if token == "" {
		return nil, errors.New("auth token is empty")
	}
	return &Gate{token: []byte(token), enabled: true}, nil
}

// Disabled 返回放行所有请求的 Gate
func Disabled() *Gate {
	return &Gate{}
}

// Enabled 是否启用校验
func (g *Gate) Enabled() bool {
	return g != nil && g.enabled
}

// Check 常量时间比较；任何不一致（包括空串）都返回 ErrTokenMismatch
func (g *Gate) Check(provided string) error {
	if !g.Enabled() {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(provided), g.token) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// Redact 将文本中出现的进程 token 替换为 [REDACTED]
func (g *Gate) Redact(text string) string {
	if !g.Enabled() {
		return text
	}
	return strings.ReplaceAll(text, string(g.token), "[REDACTED]")
}

// BearerToken 从 Authorization 头中取出 Bearer token
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// GenerateToken 生成高熵随机 token
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ResolveToken 从 secret store 读取 token；不存在且 generate 为 true 时生成新 token，generated 标记是否新生成
func ResolveToken(ctx context.Context, store secrets.Store, key string, generate bool) (token string, generated bool, err error) {
	token, err = store.Get(ctx, key)
	if err == nil && token != "" {
		return token, false, nil
	}
	if err != nil && !errors.Is(err, secrets.ErrSecretNotFound) {
		return "", false, fmt.Errorf("read auth token %q: %w", key, err)
	}
	if !generate {
		return "", false, fmt.Errorf("auth token %q not found in secret store", key)
	}
	token, err = GenerateToken()
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}
