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

package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigPath 默认配置文件路径，可由 CAPTION_CONFIG 覆盖
const DefaultConfigPath = "configs/api.yaml"

// Config 应用配置结构体
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Model       ModelConfig       `mapstructure:"model"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Log         LogConfig         `mapstructure:"log"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port                 int             `mapstructure:"port"`
	Host                 string          `mapstructure:"host"`
	Timeout              string          `mapstructure:"timeout"`        // 单次请求内推理总超时，如 "120s"；空表示不限制
	MaxBodyBytes         int             `mapstructure:"max_body_bytes"` // 请求体上限
	MaxImages            int             `mapstructure:"max_images"`     // 单次 predict 最多图片数，0 取默认，<0 不限制
	MaxImageBytes        int             `mapstructure:"max_image_bytes"`
	ExposeInternalErrors bool            `mapstructure:"expose_internal_errors"` // 仅开发环境：500 响应携带内部错误信息
	CORS                 CORSConfig      `mapstructure:"cors"`
	RateLimit            RateLimitConfig `mapstructure:"rate_limit"`
	Features             FeaturesConfig  `mapstructure:"features"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig 全局请求限流
type RateLimitConfig struct {
	Enable bool    `mapstructure:"enable"`
	RPS    float64 `mapstructure:"rps"`
	Burst  int     `mapstructure:"burst"`
}

// FeaturesConfig 路由开关；未配置时默认开启
type FeaturesConfig struct {
	Predict  *bool `mapstructure:"predict"`
	Generate *bool `mapstructure:"generate"`
	Switch   *bool `mapstructure:"switch"`
	Model    *bool `mapstructure:"model"`
	Log      *bool `mapstructure:"log"`
	Metrics  *bool `mapstructure:"metrics"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	Vision VisionConfig `mapstructure:"vision"`
}

// VisionConfig 图像描述模型配置
type VisionConfig struct {
	Default         string                    `mapstructure:"default"`          // 启动时绑定的模型标识，如 huggingface:Salesforce/blip2-opt-2.7b-coco
	DefaultProvider string                    `mapstructure:"default_provider"` // 标识未带 provider 前缀时使用
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey        string                  `mapstructure:"api_key"`
	BaseURL       string                  `mapstructure:"base_url"`
	HubURL        string                  `mapstructure:"hub_url"` // huggingface：模型元数据查询地址
	Timeout       string                  `mapstructure:"timeout"`
	Models        []string                `mapstructure:"models"` // 允许切换的模型列表，空表示不限制
	Candidates    int                     `mapstructure:"candidates"`
	Prompt        string                  `mapstructure:"prompt"`
	MaxNewTokens  int                     `mapstructure:"max_new_tokens"`
	ModelsDir     string                  `mapstructure:"models_dir"`     // onnx：模型目录
	SharedLibrary string                  `mapstructure:"shared_library"` // onnx：onnxruntime 动态库路径
	RateLimit     ProviderRateLimitConfig `mapstructure:"rate_limit"`
}

// ProviderRateLimitConfig 单个 Provider 的限流配置
type ProviderRateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// AuthConfig token 校验配置
type AuthConfig struct {
	Enable            bool   `mapstructure:"enable"`
	TokenKey          string `mapstructure:"token_key"`           // secret store 中的 key
	GenerateIfMissing bool   `mapstructure:"generate_if_missing"` // secret 缺失时随机生成并仅输出到控制台一次
	ProtectAdmin      *bool  `mapstructure:"protect_admin"`       // /switch /model /log 也需要 Bearer token；缺省随 enable
}

// SecretsConfig secret store 配置
type SecretsConfig struct {
	Provider string          `mapstructure:"provider"` // env | memory | k8s | vault
	Vault    VaultConfig     `mapstructure:"vault"`
	K8s      K8sSecretConfig `mapstructure:"k8s"`
}

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// K8sSecretConfig Kubernetes 挂载 secret 配置
type K8sSecretConfig struct {
	ServiceAccountPath string `mapstructure:"service_account_path"`
	SecretsPath        string `mapstructure:"secrets_path"`
	Namespace          string `mapstructure:"namespace"`
}

// CacheConfig caption 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // none | memory | redis | postgres | sqlite
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	DSN      string `mapstructure:"dsn"`
	Path     string `mapstructure:"path"`
	TTL      string `mapstructure:"ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DiagnosticsConfig GET /log 读取的文件
type DiagnosticsConfig struct {
	LogFile string `mapstructure:"log_file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Protocol       string `mapstructure:"protocol"` // grpc（默认）| http
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// BoolOr 返回 *p，p 为 nil 时返回 def
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	applyDefaults(&config)
	return &config, nil
}

// LoadAPIConfig 加载 API 配置（CAPTION_CONFIG 或 configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	path := DefaultConfigPath
	if p := os.Getenv("CAPTION_CONFIG"); p != "" {
		path = p
	}
	return LoadConfig(path)
}

// Default 返回零配置下的默认值（static provider、内存缓存、无鉴权）
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// replaceEnvVars 替换 ${VAR} 形式的环境变量
func replaceEnvVars(config *Config) {
	for name, pc := range config.Model.Vision.Providers {
		pc.APIKey = expandEnv(pc.APIKey)
		config.Model.Vision.Providers[name] = pc
	}
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
	config.Cache.Password = expandEnv(config.Cache.Password)
	config.Cache.DSN = expandEnv(config.Cache.DSN)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	envVar = strings.TrimPrefix(envVar, "$")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return ""
}

// DefaultLogFile 服务自身的日志文件，不与 nohup 等重定向的 stdout/stderr 共用
const DefaultLogFile = "logs/caption-gateway.log"

// applyDefaults 集中设置缺省值
func applyDefaults(c *Config) {
	if c.API.Port <= 0 {
		c.API.Port = 8080
	}
	if c.API.MaxImages == 0 {
		c.API.MaxImages = 8
	}
	if c.API.MaxImageBytes <= 0 {
		c.API.MaxImageBytes = 5 << 20
	}
	if c.API.MaxBodyBytes <= 0 {
		c.API.MaxBodyBytes = 64 << 20
	}
	// 请求体上限不低于图片数 x 单图 base64 长度，超限由 400 bad_request 报告
	if need := MinBodyBytes(c.API.MaxImages, c.API.MaxImageBytes); need > c.API.MaxBodyBytes {
		c.API.MaxBodyBytes = need
	}
	if c.Model.Vision.DefaultProvider == "" {
		c.Model.Vision.DefaultProvider = "huggingface"
	}
	if c.Model.Vision.Default == "" {
		c.Model.Vision.Default = "static:default"
	}
	if c.Model.Vision.Providers == nil {
		c.Model.Vision.Providers = map[string]ProviderConfig{}
	}
	if c.Auth.TokenKey == "" {
		c.Auth.TokenKey = "CAPTION_API_TOKEN"
	}
	if c.Auth.ProtectAdmin == nil {
		protect := c.Auth.Enable
		c.Auth.ProtectAdmin = &protect
	}
	if c.Secrets.Provider == "" {
		c.Secrets.Provider = "env"
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}
	if c.Diagnostics.LogFile == "" {
		c.Diagnostics.LogFile = c.Log.File
	}
	if c.Monitoring.Prometheus.Path == "" {
		c.Monitoring.Prometheus.Path = "/metrics"
	}
	if c.Monitoring.Tracing.ServiceName == "" {
		c.Monitoring.Tracing.ServiceName = "caption-gateway"
	}
}

// MinBodyBytes 容纳 maxImages 张 base64 图片所需的请求体字节数（含 64KiB JSON 余量）；不限制图片数时返回 0
func MinBodyBytes(maxImages, maxImageBytes int) int {
	if maxImages <= 0 || maxImageBytes <= 0 {
		return 0
	}
	return maxImages*base64.StdEncoding.EncodedLen(maxImageBytes) + 64<<10
}
