package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/back2front/back2front-go/config"
	"github.com/back2front/back2front-go/manifest"
)

func TestEngineOptionsCacheFollowsManifest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.Env = config.EnvDev
	require.NoError(t, cfg.Finalize())
	require.True(t, cfg.IsProduction())

	opts := engineOptions(cfg, nil, logger)
	assert.False(t, opts.Cache, "sources compiled on request must not be cached")
	assert.NotNil(t, opts.Minifier)

	bundle := manifest.New("/", nil, nil)
	opts = engineOptions(cfg, bundle, logger)
	assert.True(t, opts.Cache)
	assert.Same(t, bundle, opts.Manifest)

	local := config.Default()
	opts = engineOptions(local, nil, logger)
	assert.False(t, opts.Cache)
	assert.Nil(t, opts.Minifier)
}
