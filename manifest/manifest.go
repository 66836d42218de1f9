// Package manifest reads the build output that describes bundled assets in
// production: a per-template list of bundled files and a content-hash map.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Manifest is the production asset configuration.
type Manifest struct {
	Templates map[string]map[string][]string `json:"map"`
	URLPrefix string                         `json:"url_prefix"`

	hashes map[string]string
}

// Load reads the asset configuration at configPath and the hash map at
// md5Path. It returns nil without error when the asset configuration does
// not exist, which is the development setup. A missing hash map is allowed.
func Load(configPath, md5Path string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read asset config: %w", err)
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse asset config: %w", err)
	}
	if m.Templates == nil {
		m.Templates = make(map[string]map[string][]string)
	}

	if md5Path != "" {
		hashes, err := LoadHashes(md5Path)
		if err != nil {
			return nil, err
		}
		m.hashes = hashes
	}
	return m, nil
}

// LoadHashes reads a JSON object mapping asset paths relative to the asset
// root onto hash fragments. A missing file yields an empty map.
func LoadHashes(path string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read md5 map: %w", err)
	}
	hashes := map[string]string{}
	if err := json.Unmarshal(data, &hashes); err != nil {
		return nil, fmt.Errorf("parse md5 map: %w", err)
	}
	return hashes, nil
}

// New builds a manifest in memory.
func New(urlPrefix string, templates map[string]map[string][]string, hashes map[string]string) *Manifest {
	if templates == nil {
		templates = make(map[string]map[string][]string)
	}
	return &Manifest{Templates: templates, URLPrefix: urlPrefix, hashes: hashes}
}

// Prefix returns the asset URL prefix, always ending with "/".
func (m *Manifest) Prefix() string {
	if m == nil {
		return ""
	}
	if strings.HasSuffix(m.URLPrefix, "/") {
		return m.URLPrefix
	}
	return m.URLPrefix + "/"
}

// Assets returns a copy of the bundled files declared for template, keyed by
// asset type ("css", "js", ...).
func (m *Manifest) Assets(template string) map[string][]string {
	if m == nil {
		return nil
	}
	declared, ok := m.Templates[strings.TrimPrefix(filepath.ToSlash(template), "/")]
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(declared))
	for kind, files := range declared {
		out[kind] = append([]string(nil), files...)
	}
	return out
}

// AssetTypes lists the asset types declared for template in sorted order.
func (m *Manifest) AssetTypes(template string) []string {
	assets := m.Assets(template)
	types := make([]string, 0, len(assets))
	for kind := range assets {
		types = append(types, kind)
	}
	sort.Strings(types)
	return types
}

// Hash returns the content hash fragment for a path relative to the asset
// root.
func (m *Manifest) Hash(rel string) (string, bool) {
	if m == nil || m.hashes == nil {
		return "", false
	}
	h, ok := m.hashes[strings.TrimPrefix(rel, "/")]
	return h, ok
}
