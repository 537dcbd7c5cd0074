package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-gateway/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Log.File = filepath.Join(t.TempDir(), "gateway.log")
	cfg.Secrets.Provider = "memory"
	cfg.Model.Vision.Default = "static:default"
	return cfg
}

func TestBootstrap_GeneratedTokenOnlyOnConsole(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Enable = true
	cfg.Auth.GenerateIfMissing = true

	var console bytes.Buffer
	b, err := newBootstrap(context.Background(), cfg, &console)
	require.NoError(t, err)
	defer b.Close()

	line := strings.TrimSpace(console.String())
	require.NotEmpty(t, line)
	token := line[strings.LastIndex(line, " ")+1:]
	assert.Len(t, token, 64)
	assert.NoError(t, b.Gate.Check(token))
	assert.Error(t, b.Gate.Check(""))

	logText, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.NotContains(t, string(logText), token)
}

func TestBootstrap_MissingTokenWithoutGeneration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Enable = true
	cfg.Auth.GenerateIfMissing = false

	_, err := newBootstrap(context.Background(), cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBootstrap_TokenFromEnv(t *testing.T) {
	t.Setenv("CAPTION_TEST_TOKEN", "from-env")
	cfg := testConfig(t)
	cfg.Secrets.Provider = "env"
	cfg.Auth.Enable = true
	cfg.Auth.TokenKey = "CAPTION_TEST_TOKEN"

	var console bytes.Buffer
	b, err := newBootstrap(context.Background(), cfg, &console)
	require.NoError(t, err)
	defer b.Close()
	assert.Empty(t, console.String())
	assert.NoError(t, b.Gate.Check("from-env"))
}

func TestBootstrap_BadDefaultModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.Vision.Default = "static:fail"
	_, err := newBootstrap(context.Background(), cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestBootstrap_UnprefixedModelUsesDefaultProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.Vision.DefaultProvider = "static"
	cfg.Model.Vision.Default = "plain"

	b, err := newBootstrap(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "plain", b.Binding.CurrentModel())

	lease, err := b.Binding.Acquire()
	require.NoError(t, err)
	defer lease.Release()
	assert.Equal(t, "plain", lease.Client().Name())
}
