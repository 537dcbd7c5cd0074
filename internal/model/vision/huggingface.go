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
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"caption-gateway/pkg/utils"
)

const (
	defaultHFBaseURL = "https://api-inference.huggingface.co"
	defaultHFHubURL  = "https://huggingface.co"
	hfImageToText    = "image-to-text"
)

// HuggingFaceConfig Hugging Face 推理 API 配置
type HuggingFaceConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	HubURL  string
	Timeout time.Duration
}

// HuggingFaceClient Hugging Face Inference API 图像描述客户端
type HuggingFaceClient struct {
	model   string
	apiKey  string
	baseURL string
	hubURL  string
	client  *resty.Client
}

// NewHuggingFaceClient 创建客户端；baseURL/hubURL 为空时用官方地址
func NewHuggingFaceClient(cfg HuggingFaceConfig) (*HuggingFaceClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("huggingface: model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)
	// 模型冷启动时返回 503
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err == nil && r.StatusCode() == http.StatusServiceUnavailable
	})

	return &HuggingFaceClient{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(utils.CoalesceString(cfg.BaseURL, defaultHFBaseURL), "/"),
		hubURL:  strings.TrimRight(utils.CoalesceString(cfg.HubURL, defaultHFHubURL), "/"),
		client:  client,
	}, nil
}

// Name 返回模型名称
func (c *HuggingFaceClient) Name() string { return c.model }

func (c *HuggingFaceClient) request(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}
	return req
}

// Caption 调用 POST {base}/models/{model}
func (c *HuggingFaceClient) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	req := c.request(ctx)
	if opts.IsZero() {
		// 无参数时直接发送图片字节
		req.SetHeader("Content-Type", utils.CoalesceString(in.MIME, "application/octet-stream")).
			SetBody(in.Raw)
	} else {
		req.SetHeader("Content-Type", "application/json").
			SetBody(map[string]interface{}{
				"inputs":     base64.StdEncoding.EncodeToString(in.Raw),
				"parameters": opts,
			})
	}

	resp, err := req.Post(c.baseURL + "/models/" + c.model)
	if err != nil {
		return nil, fmt.Errorf("call huggingface inference: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("huggingface inference returned %d: %s", resp.StatusCode(), utils.Truncate(resp.String(), 200))
	}

	var out []Candidate
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode huggingface response: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return out, nil
}

// Probe 查询 Hub 上的模型信息，确认存在且为 image-to-text 任务
func (c *HuggingFaceClient) Probe(ctx context.Context) error {
	resp, err := c.request(ctx).Get(c.hubURL + "/api/models/" + c.model)
	if err != nil {
		return fmt.Errorf("query huggingface hub: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusUnauthorized:
		return fmt.Errorf("model %q not found on hub", c.model)
	default:
		return fmt.Errorf("huggingface hub returned %d for %q", resp.StatusCode(), c.model)
	}

	var info struct {
		PipelineTag string `json:"pipeline_tag"`
	}
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return fmt.Errorf("decode hub model info: %w", err)
	}
	if info.PipelineTag != "" && info.PipelineTag != hfImageToText {
		return fmt.Errorf("model %q is a %s model, not %s", c.model, info.PipelineTag, hfImageToText)
	}
	return nil
}
