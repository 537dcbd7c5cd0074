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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"caption-gateway/pkg/utils"
)

const defaultCaptionPrompt = "Write a short one-sentence caption for this image."

// OpenAIConfig OpenAI 兼容接口配置
type OpenAIConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Prompt  string
	Timeout time.Duration
}

// OpenAIClient 通过 chat completions + image_url 生成描述
type OpenAIClient struct {
	model   string
	apiKey  string
	baseURL string
	prompt  string
	client  *resty.Client
}

// NewOpenAIClient 创建客户端（base 优先用配置，其次 OPENAI_BASE_URL 环境变量）
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	baseURL := utils.CoalesceString(cfg.BaseURL, os.Getenv("OPENAI_BASE_URL"), "https://api.openai.com/v1")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)

	return &OpenAIClient{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		prompt:  utils.CoalesceString(cfg.Prompt, defaultCaptionPrompt),
		client:  client,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string { return c.model }

// Caption 调用 chat completions，每个 choice 为一个候选；接口不返回分数，Score 为 0
func (c *OpenAIClient) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	dataURI := "data:" + utils.CoalesceString(in.MIME, "image/png") + ";base64," + base64.StdEncoding.EncodeToString(in.Raw)
	request := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]interface{}{{
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "text", "text": utils.CoalesceString(opts.Prompt, c.prompt)},
				{"type": "image_url", "image_url": map[string]string{"url": dataURI}},
			},
		}},
		"n": utils.DefaultInt(opts.NumCandidates, 1),
	}
	if opts.MaxNewTokens > 0 {
		request["max_tokens"] = opts.MaxNewTokens
	}
	if opts.Temperature > 0 {
		request["temperature"] = opts.Temperature
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(request).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("call openai chat completions: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("openai returned %d: %s", response.StatusCode(), utils.Truncate(response.String(), 200))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, ErrNoCandidates
	}

	out := make([]Candidate, 0, len(result.Choices))
	for _, ch := range result.Choices {
		out = append(out, Candidate{GeneratedText: strings.TrimSpace(ch.Message.Content)})
	}
	return out, nil
}

// Probe GET {base}/models/{model}
func (c *OpenAIClient) Probe(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		Get(c.baseURL + "/models/" + c.model)
	if err != nil {
		return fmt.Errorf("query openai model: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("openai model %q unavailable: status %d", c.model, resp.StatusCode())
	}
	return nil
}
