package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

// StaticFailModel 拒绝加载的模型名，用于演练切换失败
const StaticFailModel = "fail"

// ErrStaticRefused 静态后端拒绝加载
var ErrStaticRefused = errors.New("static: model refused to load")

// StaticClient 本地确定性后端：根据尺寸、格式和平均颜色生成描述，不依赖任何外部服务
type StaticClient struct {
	model string
}

// NewStaticClient 创建静态后端
func NewStaticClient(model string) (*StaticClient, error) {
	if model == StaticFailModel {
		return nil, ErrStaticRefused
	}
	if model == "" {
		model = "default"
	}
	return &StaticClient{model: model}, nil
}

// Name 返回模型名称
func (c *StaticClient) Name() string { return c.model }

// Caption 生成描述
func (c *StaticClient) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := in.Bounds()
	color := "colorful"
	if in != nil && in.Image != nil {
		color = dominantColor(in.Image)
	}
	format := "image"
	if in != nil && in.Format != "" {
		format = in.Format + " image"
	}

	texts := []string{
		fmt.Sprintf("a %s %dx%d %s", color, w, h, format),
		fmt.Sprintf("a %s picture", color),
		fmt.Sprintf("an image of size %dx%d", w, h),
	}
	if opts.Prompt != "" {
		texts[0] = opts.Prompt + " " + texts[0]
	}

	n := opts.NumCandidates
	if n <= 0 {
		n = 1
	}
	if n > len(texts) {
		n = len(texts)
	}
	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Candidate{GeneratedText: texts[i], Score: 1 - float64(i)*0.25})
	}
	return out, nil
}

var namedColors = []struct {
	name    string
	r, g, b float64
}{
	{"black", 0, 0, 0},
	{"white", 255, 255, 255},
	{"gray", 128, 128, 128},
	{"red", 255, 0, 0},
	{"green", 0, 255, 0},
	{"blue", 0, 0, 255},
	{"yellow", 255, 255, 0},
	{"cyan", 0, 255, 255},
	{"magenta", 255, 0, 255},
	{"orange", 255, 165, 0},
}

// dominantColor 平均颜色对应的最近命名颜色
func dominantColor(img image.Image) string {
	b := img.Bounds()
	if b.Empty() {
		return "colorful"
	}
	var sr, sg, sb float64
	// 大图按步长采样
	step := 1
	if b.Dx()*b.Dy() > 64*64 {
		step = int(math.Sqrt(float64(b.Dx()*b.Dy()) / 4096))
	}
	n := 0.0
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, _ := img.At(x, y).RGBA()
			sr += float64(r >> 8)
			sg += float64(g >> 8)
			sb += float64(bl >> 8)
			n++
		}
	}
	sr, sg, sb = sr/n, sg/n, sb/n

	best, bestDist := "colorful", math.MaxFloat64
	for _, c := range namedColors {
		d := (sr-c.r)*(sr-c.r) + (sg-c.g)*(sg-c.g) + (sb-c.b)*(sb-c.b)
		if d < bestDist {
			best, bestDist = c.name, d
		}
	}
	return best
}
