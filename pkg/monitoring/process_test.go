package monitoring

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	stats, err := Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), stats.PID)
	assert.Greater(t, stats.Goroutines, 0)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, int64(0))
}
