package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "sub", "cache.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k", map[string]string{"caption": "a red square"}, 0))
	var got map[string]string
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, "a red square", got["caption"])

	// upsert
	require.NoError(t, s.Set(ctx, "k", map[string]string{"caption": "a blue square"}, time.Hour))
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, "a blue square", got["caption"])

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Set(ctx, "old", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var v string
	assert.ErrorIs(t, s.Get(ctx, "old", &v), ErrMiss)

	require.NoError(t, s.Delete(ctx, "k"))
	assert.ErrorIs(t, s.Get(ctx, "k", &got), ErrMiss)

	require.NoError(t, s.Set(ctx, "a", 1, 0))
	require.NoError(t, s.Clear(ctx))
	ok, err = s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
