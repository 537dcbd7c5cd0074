// Copyright 2026 fanjia1024
// Tests for model registry

package model

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-gateway/internal/model/vision"
	"caption-gateway/pkg/errors"
)

type probingClient struct {
	name     string
	probeErr error
	closed   int
}

func (c *probingClient) Name() string { return c.name }

func (c *probingClient) Caption(ctx context.Context, in *vision.Input, opts vision.Options) ([]vision.Candidate, error) {
	return []vision.Candidate{{GeneratedText: "caption from " + c.name}}, nil
}

func (c *probingClient) Probe(ctx context.Context) error { return c.probeErr }

func (c *probingClient) Close() error {
	c.closed++
	return nil
}

func newTestRegistry() *Registry {
	r := NewRegistry("static")
	r.Register("static", func(ctx context.Context, m string) (vision.Client, error) {
		return vision.NewStaticClient(m)
	})
	return r
}

func TestRegistry_Parse(t *testing.T) {
	r := newTestRegistry()
	r.Register("huggingface", nil)

	tests := []struct {
		raw  string
		want Identifier
	}{
		{"static:echo", Identifier{"static", "echo"}},
		{"huggingface:Salesforce/blip", Identifier{"huggingface", "Salesforce/blip"}},
		{"plain-model", Identifier{"static", "plain-model"}},
		{"unknown:model", Identifier{"static", "unknown:model"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := r.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := r.Parse("  ")
	assert.True(t, errors.Is(err, errors.KindBadRequest))
	_, err = r.Parse("static:")
	assert.True(t, errors.Is(err, errors.KindBadRequest))
	assert.Equal(t, []string{"huggingface", "static"}, r.Providers())
}

func TestLoader_Load(t *testing.T) {
	r := newTestRegistry()
	l := NewLoader(r, nil)

	c, err := l.Load(context.Background(), "static:echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", c.Name())

	_, err = l.Load(context.Background(), "static:fail")
	require.Error(t, err)
	assert.Equal(t, errors.KindModelLoad, errors.KindOf(err))
}

func TestLoader_Allowlist(t *testing.T) {
	r := NewRegistry("static")
	r.Register("static", func(ctx context.Context, m string) (vision.Client, error) {
		return vision.NewStaticClient(m)
	}, "approved")
	l := NewLoader(r, nil)

	_, err := l.Load(context.Background(), "static:approved")
	require.NoError(t, err)

	_, err = l.Load(context.Background(), "static:other")
	assert.True(t, errors.Is(err, errors.KindModelLoad))
}

func TestLoader_ProbeFailureClosesClient(t *testing.T) {
	created := &probingClient{name: "broken", probeErr: fmt.Errorf("not an image-to-text model")}
	r := NewRegistry("fake")
	r.Register("fake", func(ctx context.Context, m string) (vision.Client, error) {
		return created, nil
	})

	_, err := NewLoader(r, nil).Load(context.Background(), "fake:broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindModelLoad))
	assert.Contains(t, err.Error(), "image-to-text")
	assert.Equal(t, 1, created.closed)
}
