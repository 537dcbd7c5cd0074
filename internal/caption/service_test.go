package caption

import (
	"context"
	"encoding/base64"
	"fmt"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-gateway/internal/model"
	"caption-gateway/internal/model/vision"
	"caption-gateway/internal/storage/cache"
	"caption-gateway/pkg/errors"
)

// recordingClient 记录调用次数；failAt 为第几次调用（从 1 开始）返回错误
type recordingClient struct {
	name   string
	mu     sync.Mutex
	calls  int
	failAt int
}

func (c *recordingClient) Name() string { return c.name }

func (c *recordingClient) Caption(ctx context.Context, in *vision.Input, opts vision.Options) ([]vision.Candidate, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if c.failAt > 0 && n == c.failAt {
		return nil, fmt.Errorf("backend exploded")
	}
	w, _ := in.Bounds()
	return []vision.Candidate{
		{GeneratedText: fmt.Sprintf("%s caption %d (w=%d)", c.name, n, w), Score: 0.9},
		{GeneratedText: "runner up", Score: 0.1},
	}, nil
}

func (c *recordingClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type staticLoader map[string]*recordingClient

func (l staticLoader) Load(ctx context.Context, id string) (vision.Client, error) {
	c, ok := l[id]
	if !ok {
		return nil, errors.E(errors.KindModelLoad, "load model", fmt.Errorf("unknown %s", id))
	}
	return c, nil
}

func newTestService(t *testing.T, client *recordingClient, store cache.Store, cfg Config) (*Service, *model.Binding) {
	t.Helper()
	b := model.NewBinding(staticLoader{client.name: client}, nil)
	require.NoError(t, b.Init(context.Background(), client.name))
	return NewService(b, store, cfg, nil), b
}

func TestPredict_SingleRedImage(t *testing.T) {
	client := &recordingClient{name: "m"}
	svc, _ := newTestService(t, client, nil, Config{})

	out, err := svc.Predict(context.Background(), PredictInput{Data: []string{redPNGBase64(t)}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "m caption 1 (w=10)", out[0])
}

func TestPredict_EmptyBatch(t *testing.T) {
	client := &recordingClient{name: "m"}
	svc, _ := newTestService(t, client, nil, Config{})

	out, err := svc.Predict(context.Background(), PredictInput{Data: []string{}})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Equal(t, 0, client.count())
}

func TestPredict_OrderPreserved(t *testing.T) {
	client := &recordingClient{name: "m"}
	svc, _ := newTestService(t, client, nil, Config{})

	imgs := []string{
		base64.StdEncoding.EncodeToString(solidPNG(t, 1, 1, color.White)),
		base64.StdEncoding.EncodeToString(solidPNG(t, 2, 1, color.White)),
		base64.StdEncoding.EncodeToString(solidPNG(t, 3, 1, color.White)),
	}
	out, err := svc.Predict(context.Background(), PredictInput{Data: imgs})
	require.NoError(t, err)
	assert.Equal(t, []string{"m caption 1 (w=1)", "m caption 2 (w=2)", "m caption 3 (w=3)"}, out)
}

func TestPredict_InvalidInputSkipsModel(t *testing.T) {
	client := &recordingClient{name: "m"}
	svc, _ := newTestService(t, client, nil, Config{})

	_, err := svc.Predict(context.Background(), PredictInput{Data: []string{redPNGBase64(t), "not-base64!!"}})
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidEncoding, errors.KindOf(err))

	notImage := base64.StdEncoding.EncodeToString([]byte("plain text"))
	_, err = svc.Predict(context.Background(), PredictInput{Data: []string{notImage}})
	assert.Equal(t, errors.KindInvalidImage, errors.KindOf(err))

	assert.Equal(t, 0, client.count())
}

func TestPredict_FailureAbortsBatch(t *testing.T) {
	client := &recordingClient{name: "m", failAt: 2}
	svc, _ := newTestService(t, client, nil, Config{})

	imgs := []string{
		base64.StdEncoding.EncodeToString(solidPNG(t, 1, 1, color.White)),
		base64.StdEncoding.EncodeToString(solidPNG(t, 2, 1, color.White)),
		base64.StdEncoding.EncodeToString(solidPNG(t, 3, 1, color.White)),
	}
	out, err := svc.Predict(context.Background(), PredictInput{Data: imgs})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, errors.KindInternal, errors.KindOf(err))
	assert.Equal(t, 2, client.count())
}

func TestPredict_MaxImages(t *testing.T) {
	client := &recordingClient{name: "m"}
	svc, _ := newTestService(t, client, nil, Config{MaxImages: 1})

	img := redPNGBase64(t)
	_, err := svc.Predict(context.Background(), PredictInput{Data: []string{img, img}})
	assert.Equal(t, errors.KindBadRequest, errors.KindOf(err))
	assert.Equal(t, 0, client.count())
}

func TestPredict_CacheHit(t *testing.T) {
	client := &recordingClient{name: "m"}
	svc, _ := newTestService(t, client, cache.NewMemoryStore(), Config{})
	img := redPNGBase64(t)

	first, err := svc.Predict(context.Background(), PredictInput{Data: []string{img}})
	require.NoError(t, err)
	second, err := svc.Predict(context.Background(), PredictInput{Data: []string{img}})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.count())

	// 参数不同则不命中
	_, err = svc.Predict(context.Background(), PredictInput{Data: []string{img}, Parameters: vision.Options{MaxNewTokens: 5}})
	require.NoError(t, err)
	assert.Equal(t, 2, client.count())
}

func TestPredict_UsesNewModelAfterSwitch(t *testing.T) {
	a := &recordingClient{name: "a"}
	bClient := &recordingClient{name: "b"}
	binding := model.NewBinding(staticLoader{"a": a, "b": bClient}, nil)
	require.NoError(t, binding.Init(context.Background(), "a"))
	svc := NewService(binding, cache.NewMemoryStore(), Config{}, nil)
	img := redPNGBase64(t)

	out, err := svc.Predict(context.Background(), PredictInput{Data: []string{img}})
	require.NoError(t, err)
	assert.Contains(t, out[0], "a caption")

	_, err = binding.SwitchModel(context.Background(), "b")
	require.NoError(t, err)
	out, err = svc.Predict(context.Background(), PredictInput{Data: []string{img}})
	require.NoError(t, err)
	assert.Contains(t, out[0], "b caption")
}

func TestGenerate_ReturnsAllCandidates(t *testing.T) {
	client := &recordingClient{name: "m"}
	svc, _ := newTestService(t, client, nil, Config{})

	cands, err := svc.Generate(context.Background(), GenerateInput{Image: redPNGBase64(t)})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "runner up", cands[1].GeneratedText)

	_, err = svc.Generate(context.Background(), GenerateInput{Image: "not-base64!!"})
	assert.Equal(t, errors.KindInvalidEncoding, errors.KindOf(err))
}
