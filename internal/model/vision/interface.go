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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
)

// ErrNoCandidates 模型未返回任何描述
var ErrNoCandidates = errors.New("vision: model returned no candidates")

// Input 一张已解码、已校验的图片
type Input struct {
	Raw    []byte      // 原始图片字节
	MIME   string      // 如 image/png
	Format string      // image.Decode 返回的格式名
	Image  image.Image // 解码结果
	Hash   string      // Raw 的 sha256（hex），用作缓存键
}

// Bounds 返回图片尺寸，未解码时为 0
func (in *Input) Bounds() (int, int) {
	if in == nil || in.Image == nil {
		return 0, 0
	}
	b := in.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Options 透传的生成参数
type Options struct {
	MaxNewTokens  int     `json:"max_new_tokens,omitempty"`
	Prompt        string  `json:"prompt,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	NumCandidates int     `json:"num_return_sequences,omitempty"`
}

// UnmarshalJSON 只接受已知参数，未知参数（如 num_beams）返回错误而不是静默丢弃
func (o *Options) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	type plain Options
	var v plain
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	*o = Options(v)
	return nil
}

// IsZero 是否未设置任何参数
func (o Options) IsZero() bool {
	return o == Options{}
}

// Candidate 一条候选描述，按排名顺序返回
type Candidate struct {
	GeneratedText string  `json:"generated_text"`
	Score         float64 `json:"score"`
}

// Client 图像描述模型接口
type Client interface {
	// Caption 为一张图片生成排好序的候选描述
	Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error)
	// Name 返回模型名称
	Name() string
}

// Prober 加载时探测模型是否可用
type Prober interface {
	Probe(ctx context.Context) error
}

// Top 取排名第一的候选文本
func Top(cands []Candidate) (string, error) {
	if len(cands) == 0 {
		return "", ErrNoCandidates
	}
	return cands[0].GeneratedText, nil
}

// Probe 若 c 实现了 Prober 则执行探测
func Probe(ctx context.Context, c Client) error {
	if p, ok := c.(Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}
