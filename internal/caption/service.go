// Package caption 批量图片描述：解码校验、绑定租约、缓存与推理
package caption

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"caption-gateway/internal/model"
	"caption-gateway/internal/model/vision"
	"caption-gateway/internal/storage/cache"
	"caption-gateway/pkg/errors"
	"caption-gateway/pkg/log"
	"caption-gateway/pkg/metrics"
	"caption-gateway/pkg/tracing"
	"caption-gateway/pkg/utils"
)

// Config Service 配置
type Config struct {
	MaxImages     int           // 单次 predict 最多图片数，<=0 不限制
	MaxImageBytes int           // 单张图片解码后字节上限
	Timeout       time.Duration // 单次请求推理总超时，0 不限制
	CacheTTL      time.Duration
}

// PredictInput POST /predict 的业务输入
type PredictInput struct {
	Data       []string
	Parameters vision.Options
}

// GenerateInput POST /generate 的业务输入
type GenerateInput struct {
	Image      string
	Parameters vision.Options
}

// Service 图片描述服务
type Service struct {
	binding *model.Binding
	cache   cache.Store
	decoder Decoder
	cfg     Config
	logger  *log.Logger
}

// NewService 创建服务；store 为 nil 时不缓存
func NewService(binding *model.Binding, store cache.Store, cfg Config, logger *log.Logger) *Service {
	if store == nil {
		store = cache.NoopStore{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		binding: binding,
		cache:   store,
		decoder: Decoder{MaxImageBytes: cfg.MaxImageBytes},
		cfg:     cfg,
		logger:  logger,
	}
}

// Predict 为每张图片生成一条描述，顺序与输入一致。
// 所有图片先完成解码校验，任何一张无效都不会触发推理；推理失败终止整个批次，不返回部分结果。
func (s *Service) Predict(ctx context.Context, in PredictInput) ([]string, error) {
	if s.cfg.MaxImages > 0 && len(in.Data) > s.cfg.MaxImages {
		return nil, errors.E(errors.KindBadRequest, "predict", fmt.Errorf("%d images exceed the limit of %d", len(in.Data), s.cfg.MaxImages))
	}
	inputs, err := s.decoder.DecodeBatch(in.Data)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return []string{}, nil
	}

	lease, err := s.binding.Acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	captions := make([]string, 0, len(inputs))
	for i, img := range inputs {
		cands, err := s.caption(ctx, lease, img, i, in.Parameters)
		if err != nil {
			return nil, err
		}
		text, err := vision.Top(cands)
		if err != nil {
			return nil, errors.AtIndex(errors.KindInternal, "caption", i, err)
		}
		captions = append(captions, text)
	}
	s.logger.Debug("predict done", "model", lease.ID(), "images", len(inputs))
	return captions, nil
}

// Generate 单张图片，返回完整的候选列表
func (s *Service) Generate(ctx context.Context, in GenerateInput) ([]vision.Candidate, error) {
	img, err := s.decoder.Decode(in.Image)
	if err != nil {
		return nil, err
	}
	lease, err := s.binding.Acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.caption(ctx, lease, img, 0, in.Parameters)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// caption 单张图片：查缓存，未命中则推理并回填
func (s *Service) caption(ctx context.Context, lease *model.Lease, img *vision.Input, index int, opts vision.Options) ([]vision.Candidate, error) {
	modelID := lease.ID()
	key := cacheKey(modelID, img.Hash, opts)

	var cached []vision.Candidate
	switch err := s.cache.Get(ctx, key, &cached); {
	case err == nil && len(cached) > 0:
		metrics.CacheTotal.WithLabelValues("hit").Inc()
		metrics.ImageTotal.WithLabelValues(modelID, "cache_hit").Inc()
		return cached, nil
	case err != nil && !stderrors.Is(err, cache.ErrMiss):
		s.logger.Warn("caption cache read failed", "error", err)
	}
	metrics.CacheTotal.WithLabelValues("miss").Inc()

	ctx, span := tracing.StartCaptionSpan(ctx, modelID, index)
	start := time.Now()
	cands, err := lease.Client().Caption(ctx, img, opts)
	metrics.InferenceDuration.WithLabelValues(modelID).Observe(time.Since(start).Seconds())
	if err == nil && len(cands) == 0 {
		err = vision.ErrNoCandidates
	}
	tracing.EndSpan(span, err)
	if err != nil {
		metrics.ImageTotal.WithLabelValues(modelID, "error").Inc()
		s.logger.Error("caption failed", "model", modelID, "index", index, "error", err)
		return nil, errors.AtIndex(errors.KindInternal, "caption", index, err)
	}
	metrics.ImageTotal.WithLabelValues(modelID, "ok").Inc()
	s.logger.Debug("caption", "model", modelID, "index", index, "text", utils.Truncate(cands[0].GeneratedText, 80))

	if err := s.cache.Set(ctx, key, cands, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("caption cache write failed", "error", err)
	}
	return cands, nil
}

// cacheKey 模型标识 + 图片 hash + 参数 hash
func cacheKey(modelID, imageHash string, opts vision.Options) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(imageHash))
	h.Write([]byte{0})
	if !opts.IsZero() {
		b, _ := json.Marshal(opts)
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}
