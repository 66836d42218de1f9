package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingConfigMeansDevelopment(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "asset-config.json"), "")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Nil(t, m.Assets("pages/a.page.xtpl"))
	assert.Equal(t, "", m.Prefix())
	_, ok := m.Hash("style.css")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "asset-config.json")
	md5 := filepath.Join(dir, "md5-map.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{
		"url_prefix": "//cdn.example.com/assets",
		"map": {
			"pages/example/tabs-ssr/tabs-ssr.page.xtpl": {
				"js": ["pages/example/tabs-ssr/tabs-ssr.bundle.js"],
				"css": []
			}
		}
	}`), 0o644))
	require.NoError(t, os.WriteFile(md5, []byte(`{"style.css": "abc123"}`), 0o644))

	m, err := Load(cfg, md5)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "//cdn.example.com/assets/", m.Prefix())
	assets := m.Assets("pages/example/tabs-ssr/tabs-ssr.page.xtpl")
	assert.Equal(t, []string{"pages/example/tabs-ssr/tabs-ssr.bundle.js"}, assets["js"])
	assert.Equal(t, []string{"css", "js"}, m.AssetTypes("pages/example/tabs-ssr/tabs-ssr.page.xtpl"))

	assets["js"][0] = "mutated"
	assert.Equal(t, "pages/example/tabs-ssr/tabs-ssr.bundle.js", m.Assets("pages/example/tabs-ssr/tabs-ssr.page.xtpl")["js"][0])

	h, ok := m.Hash("style.css")
	assert.True(t, ok)
	assert.Equal(t, "abc123", h)
}

func TestLoadMalformed(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "asset-config.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{`), 0o644))
	_, err := Load(cfg, "")
	assert.ErrorContains(t, err, "parse asset config")
}
