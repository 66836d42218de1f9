package compiler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SassOptions is the project preprocessor configuration read from
// sass.config.yml.
type SassOptions struct {
	Binary       string   `yaml:"binary"`
	IncludePaths []string `yaml:"includePaths"`
	OutputStyle  string   `yaml:"outputStyle"`
}

// LoadSassOptions reads the preprocessor configuration. A missing file yields
// zero options.
func LoadSassOptions(path string) (SassOptions, error) {
	var opts SassOptions
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return opts, nil
		}
		return opts, fmt.Errorf("read sass config: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse sass config: %w", err)
	}
	base := filepath.Dir(path)
	for i, p := range opts.IncludePaths {
		if !filepath.IsAbs(p) {
			opts.IncludePaths[i] = filepath.Join(base, p)
		}
	}
	return opts, nil
}

// Preprocessor turns SCSS into CSS.
type Preprocessor interface {
	Preprocess(ctx context.Context, source string, opts SassOptions) (string, error)
}

// Style compiles SCSS. Failures are returned as the compiled text so that
// they show up in the browser instead of failing the request.
type Style struct {
	ConfigPath   string
	Preprocessor Preprocessor
}

// MediaType implements MediaTyper.
func (s *Style) MediaType() string {
	return MediaCSS
}

// Compile implements Handler.
func (s *Style) Compile(ctx context.Context, src Source) ([]byte, error) {
	text := RewriteLineComments(string(src.Text))

	opts, err := LoadSassOptions(s.ConfigPath)
	if err != nil {
		return []byte(err.Error()), nil
	}
	if src.SourcePath != "" {
		opts.IncludePaths = append([]string{filepath.Dir(src.SourcePath)}, opts.IncludePaths...)
	}
	if s.Preprocessor == nil {
		return []byte("sass preprocessor not configured"), nil
	}
	css, err := s.Preprocessor.Preprocess(ctx, text, opts)
	if err != nil {
		return []byte(err.Error()), nil
	}
	return []byte(css), nil
}

// RewriteLineComments turns "// note" into "/* note */", escaping slashes in
// the comment body. Strings, block comments and url(...) arguments are left
// untouched.
func RewriteLineComments(src string) string {
	var b strings.Builder
	b.Grow(len(src) + 16)

	var quote byte
	inBlock := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inBlock:
			b.WriteByte(c)
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				b.WriteByte('/')
				i++
				inBlock = false
			}
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				b.WriteByte(src[i+1])
				i++
			} else if c == quote || c == '\n' {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			inBlock = true
			b.WriteString("/*")
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '/' && !insideURL(src, i):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src)
			} else {
				end += i
			}
			body := src[i+2 : end]
			cr := strings.HasSuffix(body, "\r")
			body = strings.TrimSuffix(body, "\r")
			b.WriteString("/*")
			b.WriteString(strings.ReplaceAll(body, "/", `\/`))
			b.WriteString(" */")
			if cr {
				b.WriteByte('\r')
			}
			i = end - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// insideURL reports whether the "//" at i belongs to a URL rather than a
// comment: either a scheme separator or an unquoted url( argument.
func insideURL(src string, i int) bool {
	if i > 0 && src[i-1] == ':' {
		return true
	}
	lineStart := strings.LastIndexByte(src[:i], '\n') + 1
	segment := strings.ToLower(src[lineStart:i])
	open := strings.LastIndex(segment, "url(")
	return open >= 0 && !strings.Contains(segment[open:], ")")
}
