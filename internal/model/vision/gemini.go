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

package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"caption-gateway/pkg/utils"
)

// GeminiConfig Gemini 配置
type GeminiConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Prompt  string
}

// GeminiClient 基于 generative-ai-go 的多模态描述客户端；持有长连接，需 Close
type GeminiClient struct {
	model  string
	prompt string
	cl     *genai.Client
}

// NewGeminiClient 创建客户端
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiClient{
		model:  cfg.Model,
		prompt: utils.CoalesceString(cfg.Prompt, defaultCaptionPrompt),
		cl:     cl,
	}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string { return c.model }

// Caption 文本提示 + 图片 blob
func (c *GeminiClient) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	// GenerativeModel 带可变的生成配置，按调用创建
	m := c.cl.GenerativeModel(c.model)
	if opts.Temperature > 0 {
		m.SetTemperature(float32(opts.Temperature))
	}
	if opts.MaxNewTokens > 0 {
		m.SetMaxOutputTokens(int32(opts.MaxNewTokens))
	}
	if opts.NumCandidates > 1 {
		m.SetCandidateCount(int32(opts.NumCandidates))
	}

	mime := utils.CoalesceString(in.MIME, "image/png")
	resp, err := m.GenerateContent(ctx,
		genai.Text(utils.CoalesceString(opts.Prompt, c.prompt)),
		&genai.Blob{MIMEType: mime, Data: in.Raw},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	var out []Candidate
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			out = append(out, Candidate{GeneratedText: text})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return out, nil
}

// Probe 读取模型信息
func (c *GeminiClient) Probe(ctx context.Context) error {
	if _, err := c.cl.GenerativeModel(c.model).Info(ctx); err != nil {
		return fmt.Errorf("gemini model %q unavailable: %w", c.model, err)
	}
	return nil
}

// Close 关闭底层连接
func (c *GeminiClient) Close() error {
	return c.cl.Close()
}
