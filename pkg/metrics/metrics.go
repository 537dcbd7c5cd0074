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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultRegistry 网关指标注册表
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		RequestTotal, RequestDuration,
		ImageTotal, InferenceDuration,
		ModelSwitchTotal, ActiveModel,
		AuthDeniedTotal, RateLimitWaitSeconds,
		CacheTotal,
	)
}

// RequestTotal HTTP 请求数（按路由与状态码）
var RequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caption_http_requests_total",
		Help: "HTTP 请求总数",
	},
	[]string{"route", "status"},
)

// RequestDuration HTTP 请求耗时
var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "caption_http_request_duration_seconds",
		Help:    "HTTP 请求耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route"},
)

// ImageTotal 单张图片处理结果
var ImageTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caption_images_total",
		Help: "处理的图片总数（按结果）",
	},
	[]string{"model", "result"}, // ok | cache_hit | error
)

// InferenceDuration 单张图片推理耗时
var InferenceDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "caption_inference_duration_seconds",
		Help:    "模型推理耗时（秒）",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"model"},
)

// ModelSwitchTotal 模型切换次数
var ModelSwitchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caption_model_switch_total",
		Help: "模型切换次数（按结果）",
	},
	[]string{"result"}, // ok | failed
)

// ActiveModel 当前绑定的模型，值恒为 1
var ActiveModel = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "caption_active_model",
		Help: "当前绑定的模型标识",
	},
	[]string{"model"},
)

// AuthDeniedTotal token 校验失败次数
var AuthDeniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caption_auth_denied_total",
		Help: "token 校验失败次数",
	},
	[]string{"route"},
)

// RateLimitWaitSeconds 限流等待时间
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "caption_rate_limit_wait_seconds",
		Help:    "Provider 限流等待时间（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// CacheTotal caption 缓存命中情况
var CacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "caption_cache_total",
		Help: "caption 缓存查询次数（按结果）",
	},
	[]string{"result"}, // hit | miss | error
)

// SetActiveModel 切换 ActiveModel 标签
func SetActiveModel(previous, current string) {
	if previous != "" && previous != current {
		ActiveModel.DeleteLabelValues(previous)
	}
	if current != "" {
		ActiveModel.WithLabelValues(current).Set(1)
	}
}

// WritePrometheus 以文本格式输出所有指标
func WritePrometheus(w io.Writer) error {
	families, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
