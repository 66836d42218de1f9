package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Known environment names after alias normalisation.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvTest  = "test"
	EnvPre   = "pre"
	EnvProd  = "prod"
)

var envAliases = map[string]string{
	"":            EnvLocal,
	"development": EnvDev,
	"pre-release": EnvPre,
	"production":  EnvProd,
}

// Config encapsulates runtime options.
type Config struct {
	Env             string        `json:"env"`
	Listen          string        `json:"listen"`
	StaticDir       string        `json:"staticDir"`
	BuiltStaticDir  string        `json:"builtStaticDir"`
	AssetDirname    string        `json:"assetDirname"`
	IsStaticServer  bool          `json:"isStaticServer"`
	StaticMaxAgeSec int           `json:"staticMaxAgeSec"`
	ManifestPath    string        `json:"manifestPath"`
	MD5MapPath      string        `json:"md5MapPath"`
	TemplateExt     string        `json:"templateExt"`
	SassConfig      string        `json:"sassConfig"`
	LogLevel        string        `json:"logLevel"`
	EnableTLS       bool          `json:"enableTLS"`
	TLSCert         string        `json:"tlsCert"`
	TLSKey          string        `json:"tlsKey"`
	StaticMaxAge    time.Duration `json:"-"`
	production      bool          `json:"-"`
}

// Load reads configuration from disk and applies sane defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(bytes, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, as if loaded
// from an empty file.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.Finalize()
	return cfg
}

// Finalize applies defaults and validates the result. It must be called again
// after fields such as Env are overridden.
func (c *Config) Finalize() error {
	if err := c.applyDefaults(); err != nil {
		return err
	}
	return c.validate()
}

func (c *Config) applyDefaults() error {
	env, err := NormalizeEnv(c.Env)
	if err != nil {
		return err
	}
	c.Env = env
	c.production = env != EnvLocal

	if c.Listen == "" {
		c.Listen = ":3000"
	}
	if c.StaticDir == "" {
		c.StaticDir = "./public"
	}
	if c.BuiltStaticDir == "" {
		c.BuiltStaticDir = "./~public"
	}
	c.AssetDirname = strings.Trim(strings.TrimSpace(strings.ReplaceAll(c.AssetDirname, "\\", "/")), "/")
	if c.AssetDirname == "" {
		c.AssetDirname = "assets"
	}
	if c.ManifestPath == "" {
		c.ManifestPath = "./asset-config.json"
	}
	if c.MD5MapPath == "" {
		c.MD5MapPath = "./md5-map.json"
	}
	c.TemplateExt = strings.TrimSpace(c.TemplateExt)
	if c.TemplateExt == "" {
		c.TemplateExt = ".xtpl"
	}
	if !strings.HasPrefix(c.TemplateExt, ".") {
		c.TemplateExt = "." + c.TemplateExt
	}
	if c.SassConfig == "" {
		c.SassConfig = "./sass.config.yml"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.StaticMaxAgeSec <= 0 {
		if c.production {
			c.StaticMaxAgeSec = 3 * 24 * 60 * 60
		} else {
			c.StaticMaxAgeSec = 0
		}
	}
	c.StaticMaxAge = time.Duration(c.StaticMaxAgeSec) * time.Second
	return nil
}

func (c *Config) validate() error {
	if c.EnableTLS {
		if c.TLSCert == "" || c.TLSKey == "" {
			return fmt.Errorf("tls enabled but certificates missing")
		}
	}
	if strings.Contains(c.AssetDirname, "/") {
		return fmt.Errorf("assetDirname must be a single path segment: %q", c.AssetDirname)
	}
	if strings.HasPrefix(c.AssetDirname, "~") {
		return fmt.Errorf("assetDirname cannot start with '~': %q", c.AssetDirname)
	}
	if path.Ext(c.TemplateExt) != c.TemplateExt {
		return fmt.Errorf("templateExt must be a single extension: %q", c.TemplateExt)
	}
	return nil
}

// NormalizeEnv maps environment aliases onto the canonical names.
func NormalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := envAliases[env]; ok {
		env = alias
	}
	switch env {
	case EnvLocal, EnvDev, EnvTest, EnvPre, EnvProd:
		return env, nil
	default:
		return "", fmt.Errorf("unknown environment %q", raw)
	}
}

// IsProduction reports whether the process runs in production mode, which is
// every environment except local development.
func (c *Config) IsProduction() bool {
	return c.production
}

// AssetRoot returns the on-disk directory holding template and asset sources.
func (c *Config) AssetRoot() string {
	return filepath.Join(c.StaticDir, c.AssetDirname)
}
