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

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Logger 简单封装，供 internal 使用
type Logger struct {
	*slog.Logger
	file *os.File
}

// Config 日志配置（可与 config 包对接）
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"` // 非空时同时追加写入该文件（GET /log 默认读取它）
}

// ParseLevel 将配置中的级别字符串转换为 slog.Level，未知值为 Info
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger 根据配置创建 Logger，cfg 可为 nil 使用默认
func NewLogger(cfg *Config) (*Logger, error) {
	level := slog.LevelInfo
	var out io.Writer = os.Stdout
	var f *os.File
	if cfg != nil {
		level = ParseLevel(cfg.Level)
		if cfg.File != "" {
			if dir := filepath.Dir(cfg.File); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("创建日志目录失败: %w", err)
				}
			}
			var err error
			f, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("打开日志文件失败: %w", err)
			}
			out = io.MultiWriter(os.Stdout, f)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg != nil && cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}
	return &Logger{Logger: slog.New(h), file: f}, nil
}

// NewWithWriter 写入指定 writer 的 Logger，主要用于测试
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
}

// Discard 丢弃所有输出的 Logger
func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// Writer 返回日志输出目标（stdout 或 stdout+文件），供 hertz 日志复用
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return io.MultiWriter(os.Stdout, l.file)
	}
	return os.Stdout
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ReadFile 读取整个日志文件内容
func ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
