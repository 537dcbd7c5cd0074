package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

const defaultONNXImageSize = 384

// CLIP 图像归一化参数
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// ONNXConfig 本地 ONNX 模型配置
type ONNXConfig struct {
	Model         string
	ModelsDir     string
	SharedLibrary string
}

// onnxMetadata <models_dir>/<name>/metadata.json
type onnxMetadata struct {
	InputName   string    `json:"input_name"`
	OutputName  string    `json:"output_name"`
	ImageSize   int       `json:"image_size"`
	InputShape  []int64   `json:"input_shape"`
	OutputShape []int64   `json:"output_shape"`
	Captions    []string  `json:"captions"`
	Mean        []float32 `json:"mean,omitempty"`
	Std         []float32 `json:"std,omitempty"`
}

func (m *onnxMetadata) normalize() error {
	if m.InputName == "" {
		m.InputName = "pixel_values"
	}
	if m.OutputName == "" {
		m.OutputName = "logits"
	}
	if m.ImageSize <= 0 {
		m.ImageSize = defaultONNXImageSize
	}
	if len(m.Captions) == 0 {
		return fmt.Errorf("metadata lists no captions")
	}
	if len(m.InputShape) == 0 {
		m.InputShape = []int64{1, 3, int64(m.ImageSize), int64(m.ImageSize)}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Captions))}
	}
	if n := shapeSize(m.OutputShape); n != int64(len(m.Captions)) {
		return fmt.Errorf("output shape %v does not match %d captions", m.OutputShape, len(m.Captions))
	}
	if n := shapeSize(m.InputShape); n != int64(3*m.ImageSize*m.ImageSize) {
		return fmt.Errorf("input shape %v does not match image size %d", m.InputShape, m.ImageSize)
	}
	return nil
}

func shapeSize(s []int64) int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

var (
	ortMu   sync.Mutex
	ortRefs int
)

// acquireEnvironment onnxruntime 环境为进程级，按引用计数初始化/销毁
func acquireEnvironment(sharedLibrary string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortRefs == 0 {
		if sharedLibrary != "" {
			ort.SetSharedLibraryPath(sharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	ortRefs++
	return nil
}

func releaseEnvironment() {
	ortMu.Lock()
	defer ortMu.Unlock()
	ortRefs--
	if ortRefs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// ONNXClient 本地 ONNX 图文匹配模型：对 metadata 中的候选描述打分排序
type ONNXClient struct {
	name string
	meta onnxMetadata

	mu      sync.Mutex // 串行化 Run，输入输出张量共享
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

func loadONNXMetadata(dir string) (*onnxMetadata, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta onnxMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if err := meta.normalize(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// NewONNXClient 加载 <models_dir>/<name>/{model.onnx,metadata.json}
func NewONNXClient(cfg ONNXConfig) (*ONNXClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("onnx: model is required")
	}
	dir := filepath.Join(cfg.ModelsDir, filepath.Clean("/" + cfg.Model)[1:])
	meta, err := loadONNXMetadata(dir)
	if err != nil {
		return nil, fmt.Errorf("onnx %s: %w", cfg.Model, err)
	}
	modelPath := filepath.Join(dir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx %s: %w", cfg.Model, err)
	}

	if err := acquireEnvironment(cfg.SharedLibrary); err != nil {
		return nil, err
	}
	c := &ONNXClient{name: cfg.Model, meta: *meta}
	if err := c.open(modelPath); err != nil {
		c.destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("onnx %s: %w", cfg.Model, err)
	}
	return c, nil
}

func (c *ONNXClient) open(modelPath string) error {
	var err error
	c.input, err = ort.NewEmptyTensor[float32](ort.NewShape(c.meta.InputShape...))
	if err != nil {
		return fmt.Errorf("create input tensor: %w", err)
	}
	c.output, err = ort.NewEmptyTensor[float32](ort.NewShape(c.meta.OutputShape...))
	if err != nil {
		return fmt.Errorf("create output tensor: %w", err)
	}
	c.session, err = ort.NewAdvancedSession(modelPath,
		[]string{c.meta.InputName}, []string{c.meta.OutputName},
		[]ort.ArbitraryTensor{c.input}, []ort.ArbitraryTensor{c.output},
		nil)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Name 返回模型名称
func (c *ONNXClient) Name() string { return c.name }

// Caption 预处理、推理并按 softmax 分数排序候选描述
func (c *ONNXClient) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	if in == nil || in.Image == nil {
		return nil, fmt.Errorf("onnx: decoded image required")
	}
	pixels := preprocessCLIP(in.Image, c.meta.ImageSize, c.meta.Mean, c.meta.Std)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("onnx: session closed")
	}
	copy(c.input.GetData(), pixels)
	if err := c.session.Run(); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	scores := append([]float32(nil), c.output.GetData()...)
	c.mu.Unlock()

	return rankCaptions(scores, c.meta.Captions, opts.NumCandidates), nil
}

// Close 释放会话与张量
func (c *ONNXClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.destroy()
	releaseEnvironment()
	return nil
}

func (c *ONNXClient) destroy() {
	if c.session != nil {
		_ = c.session.Destroy()
	}
	if c.input != nil {
		_ = c.input.Destroy()
	}
	if c.output != nil {
		_ = c.output.Destroy()
	}
}

// preprocessCLIP 双三次缩放到 size×size，按通道 CHW 排列并做 mean/std 归一化
func preprocessCLIP(img image.Image, size int, mean, std []float32) []float32 {
	m, s := clipMean, clipStd
	if len(mean) == 3 {
		copy(m[:], mean)
	}
	if len(std) == 3 {
		copy(s[:], std)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Bicubic)
	b := resized.Bounds()
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*size + x
			out[i] = (float32(r)/65535.0 - m[0]) / s[0]
			out[plane+i] = (float32(g)/65535.0 - m[1]) / s[1]
			out[2*plane+i] = (float32(bl)/65535.0 - m[2]) / s[2]
		}
	}
	return out
}

// rankCaptions softmax 后按分数降序；n<=0 时返回全部
func rankCaptions(logits []float32, captions []string, n int) []Candidate {
	count := len(captions)
	if len(logits) < count {
		count = len(logits)
	}
	if count == 0 {
		return nil
	}
	maxLogit := float64(logits[0])
	for _, v := range logits[:count] {
		maxLogit = math.Max(maxLogit, float64(v))
	}
	var sum float64
	probs := make([]float64, count)
	for i, v := range logits[:count] {
		probs[i] = math.Exp(float64(v) - maxLogit)
		sum += probs[i]
	}

	out := make([]Candidate, count)
	for i := range out {
		out[i] = Candidate{GeneratedText: captions[i], Score: probs[i] / sum}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
