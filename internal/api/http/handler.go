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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"caption-gateway/internal/caption"
	"caption-gateway/internal/model"
	"caption-gateway/internal/model/vision"
	"caption-gateway/pkg/auth"
	"caption-gateway/pkg/errors"
	"caption-gateway/pkg/log"
	"caption-gateway/pkg/metrics"
	"caption-gateway/pkg/monitoring"
)

// HandlerConfig Handler 依赖与选项
type HandlerConfig struct {
	Service              *caption.Service
	Binding              *model.Binding
	Gate                 *auth.Gate
	LogFile              string // GET /log 读取的文件
	ExposeInternalErrors bool
	Logger               *log.Logger
}

// Handler HTTP 处理器
type Handler struct {
	svc            *caption.Service
	binding        *model.Binding
	gate           *auth.Gate
	logFile        string
	exposeInternal bool
	logger         *log.Logger
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(cfg HandlerConfig) *Handler {
	gate := cfg.Gate
	if gate == nil {
		gate = auth.Disabled()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{
		svc:            cfg.Service,
		binding:        cfg.Binding,
		gate:           gate,
		logFile:        cfg.LogFile,
		exposeInternal: cfg.ExposeInternalErrors,
		logger:         logger,
	}
}

// PredictRequest POST /predict 请求体
type PredictRequest struct {
	Data       *[]string      `json:"data"`
	Token      string         `json:"token,omitempty"`
	Parameters vision.Options `json:"parameters,omitempty"`
}

// PredictResponse POST /predict 响应体
type PredictResponse struct {
	Captions []string `json:"captions"`
}

// GenerateRequest POST /generate 请求体（推理端点风格）
type GenerateRequest struct {
	Inputs struct {
		Image string `json:"image"`
	} `json:"inputs"`
	Token      string         `json:"token,omitempty"`
	Parameters vision.Options `json:"parameters,omitempty"`
}

// authorize 先取 body 中的 token，其次 Authorization 头
func (h *Handler) authorize(c *app.RequestContext, bodyToken string) error {
	if !h.gate.Enabled() {
		return nil
	}
	token := bodyToken
	if token == "" {
		token = auth.BearerToken(string(c.GetHeader("Authorization")))
	}
	if err := h.gate.Check(token); err != nil {
		metrics.AuthDeniedTotal.WithLabelValues(c.FullPath()).Inc()
		return errors.E(errors.KindUnauthorized, "authorize", err)
	}
	return nil
}

func decodeBody(c *app.RequestContext, v interface{}) error {
	body := c.Request.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.E(errors.KindBadRequest, "parse request", fmt.Errorf("request body is empty"))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.E(errors.KindBadRequest, "parse request", fmt.Errorf("invalid JSON body: %w", err))
	}
	return nil
}

// Predict 批量图片描述
// POST /predict
func (h *Handler) Predict(ctx context.Context, c *app.RequestContext) {
	var req PredictRequest
	if err := decodeBody(c, &req); err != nil {
		h.writeError(ctx, c, err)
		return
	}
	if err := h.authorize(c, req.Token); err != nil {
		h.writeError(ctx, c, err)
		return
	}
	if req.Data == nil {
		h.writeError(ctx, c, errors.E(errors.KindBadRequest, "predict", fmt.Errorf("field \"data\" is required")))
		return
	}

	captions, err := h.svc.Predict(ctx, caption.PredictInput{Data: *req.Data, Parameters: req.Parameters})
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, PredictResponse{Captions: captions})
}

// Generate 单张图片，返回全部候选
// POST /generate
func (h *Handler) Generate(ctx context.Context, c *app.RequestContext) {
	var req GenerateRequest
	if err := decodeBody(c, &req); err != nil {
		h.writeError(ctx, c, err)
		return
	}
	if err := h.authorize(c, req.Token); err != nil {
		h.writeError(ctx, c, err)
		return
	}
	if req.Inputs.Image == "" {
		h.writeError(ctx, c, errors.E(errors.KindBadRequest, "generate", fmt.Errorf("field \"inputs.image\" is required")))
		return
	}

	cands, err := h.svc.Generate(ctx, caption.GenerateInput{Image: req.Inputs.Image, Parameters: req.Parameters})
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, cands)
}

// SwitchModel 切换模型；model_name 取自 query 或表单
// POST /switch
func (h *Handler) SwitchModel(ctx context.Context, c *app.RequestContext) {
	name := strings.TrimSpace(c.Query("model_name"))
	if name == "" {
		name = strings.TrimSpace(string(c.FormValue("model_name")))
	}
	if name == "" {
		h.writeError(ctx, c, errors.E(errors.KindBadRequest, "switch model", fmt.Errorf("model_name is required")))
		return
	}

	id, err := h.binding.SwitchModel(ctx, name)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"model": id})
}

// CurrentModel 当前模型标识
// GET /model
func (h *Handler) CurrentModel(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]string{"model": h.binding.CurrentModel()})
}

// Log 返回诊断日志文件全文；其中的 token 已脱敏
// GET /log
func (h *Handler) Log(ctx context.Context, c *app.RequestContext) {
	text, err := log.ReadFile(h.logFile)
	if err != nil {
		h.writeError(ctx, c, errors.E(errors.KindInternal, "read log", err))
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"log": h.gate.Redact(text)})
}

// HealthCheck 健康检查，附带当前模型与进程资源
// GET /health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	resp := map[string]interface{}{"status": "ok"}
	if h.binding != nil {
		resp["model"] = h.binding.CurrentModel()
	}
	if stats, err := monitoring.Collect(ctx); err == nil {
		resp["process"] = stats
	}
	c.JSON(consts.StatusOK, resp)
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
