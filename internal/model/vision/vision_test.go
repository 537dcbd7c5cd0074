package vision

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidInput(w, h int, c color.Color) *Input {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return &Input{Raw: []byte("fake-bytes"), MIME: "image/png", Format: "png", Image: img, Hash: "h"}
}

func TestTop(t *testing.T) {
	_, err := Top(nil)
	assert.ErrorIs(t, err, ErrNoCandidates)

	text, err := Top([]Candidate{{GeneratedText: "first"}, {GeneratedText: "second"}})
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestStaticClient(t *testing.T) {
	_, err := NewStaticClient(StaticFailModel)
	assert.ErrorIs(t, err, ErrStaticRefused)

	c, err := NewStaticClient("")
	require.NoError(t, err)
	assert.Equal(t, "default", c.Name())

	red := solidInput(10, 10, color.RGBA{R: 255, A: 255})
	cands, err := c.Caption(context.Background(), red, Options{})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "a red 10x10 png image", cands[0].GeneratedText)

	// 确定性
	again, err := c.Caption(context.Background(), red, Options{})
	require.NoError(t, err)
	assert.Equal(t, cands, again)

	many, err := c.Caption(context.Background(), red, Options{NumCandidates: 5})
	require.NoError(t, err)
	assert.Len(t, many, 3)
	assert.Greater(t, many[0].Score, many[1].Score)
}

func TestStaticClient_CanceledContext(t *testing.T) {
	c, _ := NewStaticClient("default")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Caption(ctx, solidInput(1, 1, color.White), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHuggingFaceClient_Caption(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/Salesforce/blip", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"generated_text":"a red square"}]`))
	}))
	defer srv.Close()

	c, err := NewHuggingFaceClient(HuggingFaceConfig{Model: "Salesforce/blip", APIKey: "hf_x", BaseURL: srv.URL})
	require.NoError(t, err)

	cands, err := c.Caption(context.Background(), solidInput(2, 2, color.Black), Options{})
	require.NoError(t, err)
	assert.Equal(t, "a red square", cands[0].GeneratedText)
	assert.Equal(t, "Bearer hf_x", gotAuth)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, []byte("fake-bytes"), gotBody)

	_, err = c.Caption(context.Background(), solidInput(2, 2, color.Black), Options{MaxNewTokens: 20})
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotType)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, float64(20), payload["parameters"].(map[string]interface{})["max_new_tokens"])
}

func TestHuggingFaceClient_CaptionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	c, _ := NewHuggingFaceClient(HuggingFaceConfig{Model: "m", BaseURL: srv.URL})
	_, err := c.Caption(context.Background(), solidInput(1, 1, color.Black), Options{})
	assert.Error(t, err)
}

func TestHuggingFaceClient_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/models/good/captioner":
			_, _ = w.Write([]byte(`{"pipeline_tag":"image-to-text"}`))
		case "/api/models/untagged":
			_, _ = w.Write([]byte(`{}`))
		case "/api/models/bert":
			_, _ = w.Write([]byte(`{"pipeline_tag":"fill-mask"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	probe := func(model string) error {
		c, err := NewHuggingFaceClient(HuggingFaceConfig{Model: model, HubURL: srv.URL})
		require.NoError(t, err)
		return c.Probe(context.Background())
	}
	assert.NoError(t, probe("good/captioner"))
	assert.NoError(t, probe("untagged"))
	assert.Error(t, probe("bert"))
	assert.Error(t, probe("missing/model"))
}

func TestOpenAIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/gpt-4o-mini":
			_, _ = w.Write([]byte(`{"id":"gpt-4o-mini"}`))
		case "/chat/completions":
			var req struct {
				N        int `json:"n"`
				Messages []struct {
					Content []map[string]interface{} `json:"content"`
				} `json:"messages"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 2, req.N)
			img := req.Messages[0].Content[1]["image_url"].(map[string]interface{})
			assert.Contains(t, img["url"], "data:image/png;base64,")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" a cat "}},{"message":{"content":"a dog"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{Model: "gpt-4o-mini", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, c.Probe(context.Background()))

	cands, err := c.Caption(context.Background(), solidInput(1, 1, color.Black), Options{NumCandidates: 2})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "a cat", cands[0].GeneratedText)

	missing, _ := NewOpenAIClient(OpenAIConfig{Model: "nope", APIKey: "k", BaseURL: srv.URL})
	assert.Error(t, missing.Probe(context.Background()))
}

func TestGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{Model: "gemini-1.5-flash"})
	assert.Error(t, err)
}

func TestRankCaptions(t *testing.T) {
	out := rankCaptions([]float32{0.1, 3, 1}, []string{"a", "b", "c"}, 0)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].GeneratedText)
	assert.Equal(t, "c", out[1].GeneratedText)
	var sum float64
	for _, c := range out {
		sum += c.Score
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	top := rankCaptions([]float32{0.1, 3, 1}, []string{"a", "b", "c"}, 1)
	assert.Len(t, top, 1)
}

func TestPreprocessCLIP(t *testing.T) {
	white := solidInput(20, 10, color.White).Image
	px := preprocessCLIP(white, 8, nil, nil)
	require.Len(t, px, 3*8*8)
	assert.InDelta(t, (1-clipMean[0])/clipStd[0], px[0], 1e-3)
	assert.InDelta(t, (1-clipMean[2])/clipStd[2], px[2*64+5], 1e-3)
}

func TestONNXMetadata(t *testing.T) {
	dir := t.TempDir()
	_, err := NewONNXClient(ONNXConfig{Model: "coco", ModelsDir: dir})
	assert.Error(t, err)

	modelDir := filepath.Join(dir, "coco")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "metadata.json"),
		[]byte(`{"image_size":16,"captions":["a dog","a cat"]}`), 0o644))

	meta, err := loadONNXMetadata(modelDir)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 16, 16}, meta.InputShape)
	assert.Equal(t, []int64{1, 2}, meta.OutputShape)

	// model.onnx 缺失
	_, err = NewONNXClient(ONNXConfig{Model: "coco", ModelsDir: dir})
	assert.Error(t, err)
}

type countingClient struct {
	active, peak int32
}

func (c *countingClient) Name() string { return "counting" }

func (c *countingClient) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	n := atomic.AddInt32(&c.active, 1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&c.active, -1)
	return []Candidate{{GeneratedText: "ok"}}, nil
}

func TestRateLimitedClient_Concurrency(t *testing.T) {
	inner := &countingClient{}
	limiter := NewRateLimiter(map[string]LimitConfig{"static": {MaxConcurrent: 1}})
	c := NewRateLimitedClient(inner, "static", limiter)
	assert.Equal(t, "counting", c.Name())

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			_, err := c.Caption(context.Background(), nil, Options{})
			assert.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.peak))
	assert.NoError(t, c.Close())
}

type optsRecorder struct {
	got Options
}

func (r *optsRecorder) Name() string { return "rec" }

func (r *optsRecorder) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	r.got = opts
	return []Candidate{{GeneratedText: "x"}}, nil
}

func TestWithDefaults(t *testing.T) {
	rec := &optsRecorder{}
	assert.Same(t, Client(rec), WithDefaults(rec, Options{}))

	c := WithDefaults(rec, Options{MaxNewTokens: 30, NumCandidates: 3})
	_, err := c.Caption(context.Background(), nil, Options{NumCandidates: 1})
	require.NoError(t, err)
	assert.Equal(t, Options{MaxNewTokens: 30, NumCandidates: 1}, rec.got)
}

func TestOptions_UnmarshalRejectsUnknown(t *testing.T) {
	var o Options
	require.NoError(t, json.Unmarshal([]byte(`{"max_new_tokens":12,"temperature":0.5}`), &o))
	assert.Equal(t, Options{MaxNewTokens: 12, Temperature: 0.5}, o)

	var req struct {
		Parameters Options `json:"parameters"`
	}
	err := json.Unmarshal([]byte(`{"parameters":{"num_beams":4}}`), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_beams")

	require.NoError(t, json.Unmarshal([]byte(`{"parameters":null}`), &req))
}
