package vision

import (
	"context"
	"io"
)

// DefaultsClient 为未设置的生成参数补默认值
type DefaultsClient struct {
	inner    Client
	defaults Options
}

// WithDefaults 包装 c；defaults 为零值时原样返回
func WithDefaults(c Client, defaults Options) Client {
	if defaults.IsZero() {
		return c
	}
	return &DefaultsClient{inner: c, defaults: defaults}
}

// Name 返回内部模型名称
func (c *DefaultsClient) Name() string { return c.inner.Name() }

// Caption 合并参数后调用内部客户端
func (c *DefaultsClient) Caption(ctx context.Context, in *Input, opts Options) ([]Candidate, error) {
	if opts.MaxNewTokens == 0 {
		opts.MaxNewTokens = c.defaults.MaxNewTokens
	}
	if opts.Prompt == "" {
		opts.Prompt = c.defaults.Prompt
	}
	if opts.Temperature == 0 {
		opts.Temperature = c.defaults.Temperature
	}
	if opts.NumCandidates == 0 {
		opts.NumCandidates = c.defaults.NumCandidates
	}
	return c.inner.Caption(ctx, in, opts)
}

// Probe 透传
func (c *DefaultsClient) Probe(ctx context.Context) error { return Probe(ctx, c.inner) }

// Close 透传
func (c *DefaultsClient) Close() error {
	if cl, ok := c.inner.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
