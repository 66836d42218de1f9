// Package compiler turns asset sources into browser-ready artifacts. Each
// handler is registered under the full multi-part extension it serves, so
// ".xtpl.js" and ".js" are distinct entries and ".raw.js" matches neither.
package compiler

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/back2front/back2front-go/pathutil"
)

// Media types a handler may declare for its output.
const (
	MediaJS   = "application/javascript; charset=utf-8"
	MediaCSS  = "text/css; charset=utf-8"
	MediaHTML = "text/html; charset=utf-8"
)

// ErrNoHandler is returned when no handler serves an extension.
var ErrNoHandler = errors.New("no handler registered for extension")

// Source is the input of a single compilation.
type Source struct {
	Text        []byte
	RequestPath string
	SourcePath  string
	DestPath    string
}

// Handler compiles one kind of asset. Handlers may additionally implement
// SourcePather, CompiledPather and MediaTyper.
type Handler interface {
	Compile(ctx context.Context, src Source) ([]byte, error)
}

// SourcePather maps a request path to the URL-style path of its source when
// the two differ, e.g. "a.xtpl.js" is compiled from "a.xtpl".
type SourcePather interface {
	SourcePath(urlPath string) string
}

// CompiledPather maps a request path to the URL of the compiled artifact
// before the shadow prefix is applied.
type CompiledPather interface {
	CompiledPath(urlPath string) string
}

// MediaTyper declares the Content-Type of compiled output.
type MediaTyper interface {
	MediaType() string
}

// Registry maps multi-part extensions to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds ext (for example ".xtpl.js") to h, replacing any previous
// binding.
func (r *Registry) Register(ext string, h Handler) {
	r.handlers[strings.ToLower(ext)] = h
}

// Lookup returns the handler registered for exactly ext.
func (r *Registry) Lookup(ext string) (Handler, bool) {
	h, ok := r.handlers[strings.ToLower(ext)]
	return h, ok
}

// Match extracts the multi-part extension of urlPath and looks it up.
func (r *Registry) Match(urlPath string) (Handler, string, bool) {
	ext, ok := pathutil.ExtractExtension(urlPath)
	if !ok {
		return nil, "", false
	}
	h, ok := r.Lookup(ext)
	return h, ext, ok
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.handlers))
	for ext := range r.handlers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// SourcePathFor returns the URL-style source path for urlPath under h.
func SourcePathFor(h Handler, urlPath string) string {
	if sp, ok := h.(SourcePather); ok {
		return sp.SourcePath(urlPath)
	}
	return urlPath
}

// CompiledPathFor returns the shadow URL path of the artifact for urlPath.
func CompiledPathFor(h Handler, urlPath string) string {
	compiled := urlPath
	if cp, ok := h.(CompiledPather); ok {
		compiled = cp.CompiledPath(urlPath)
	}
	return pathutil.ShadowPath(compiled)
}

// MediaTypeOf returns the declared media type of h, or "".
func MediaTypeOf(h Handler) string {
	if mt, ok := h.(MediaTyper); ok {
		return mt.MediaType()
	}
	return ""
}

// Options configures the default handler set.
type Options struct {
	// AssetDirname is the first URL segment of asset requests, e.g. "assets".
	AssetDirname string
	// TemplateExt is the template source extension, e.g. ".xtpl".
	TemplateExt string
	// SassConfig points at the project's preprocessor configuration.
	SassConfig string
	// Sass runs the SCSS preprocessor. Defaults to Dart Sass.
	Sass Preprocessor
}

// Default builds the registry used by the development asset pipeline.
func Default(opts Options) *Registry {
	if opts.TemplateExt == "" {
		opts.TemplateExt = ".xtpl"
	}
	if opts.Sass == nil {
		opts.Sass = NewDartSass()
	}
	reg := NewRegistry()
	reg.Register(opts.TemplateExt+".js", &TemplateModule{
		AssetDirname: opts.AssetDirname,
		TemplateExt:  opts.TemplateExt,
	})
	reg.Register(".js", &ModuleJS{})
	reg.Register(".scss", &Style{
		ConfigPath:   opts.SassConfig,
		Preprocessor: opts.Sass,
	})
	return reg
}
