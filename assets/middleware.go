// Package assets compiles asset sources on request during development and
// rewrites the request to the generated file in the shadow tree.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/back2front/back2front-go/compiler"
	"github.com/back2front/back2front-go/fsutil"
	"github.com/back2front/back2front-go/pathutil"
)

// ErrorHandler receives compile failures.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, status int, err error)

// Middleware intercepts requests for compilable assets.
type Middleware struct {
	root     string
	registry *compiler.Registry
	cache    *MtimeCache
	logger   *slog.Logger
	group    singleflight.Group
}

// New builds a middleware serving sources below root, the static directory
// that contains the asset directory.
func New(root string, registry *compiler.Registry, cache *MtimeCache, logger *slog.Logger) *Middleware {
	if cache == nil {
		cache = NewMtimeCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		root:     root,
		registry: registry,
		cache:    cache,
		logger:   logger,
	}
}

// Cache exposes the compile cache.
func (m *Middleware) Cache() *MtimeCache {
	return m.cache
}

// Wrap returns a handler that compiles matching assets and passes the
// rewritten request to next, which is expected to serve static files.
func (m *Middleware) Wrap(next http.Handler, onError ErrorHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlPath := pathutil.NormalizePath(r.URL.Path)
		handler, _, ok := m.registry.Match(urlPath)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		sourceURL := compiler.SourcePathFor(handler, urlPath)
		sourcePath, ok := m.localPath(sourceURL)
		if !ok || !fsutil.Exists(sourcePath) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, "%q does not exist", sourceURL)
			return
		}

		compiledURL := compiler.CompiledPathFor(handler, urlPath)
		destPath, ok := m.localPath(compiledURL)
		if !ok {
			onError(w, r, http.StatusBadRequest, fmt.Errorf("invalid asset path %q", urlPath))
			return
		}

		if mediaType := compiler.MediaTypeOf(handler); mediaType != "" {
			w.Header().Set("Content-Type", mediaType)
		}

		if err := m.ensure(r.Context(), handler, urlPath, sourcePath, destPath); err != nil {
			w.Header().Del("Content-Type")
			onError(w, r, http.StatusInternalServerError, err)
			return
		}

		rewritten := r.Clone(r.Context())
		rewritten.URL.Path = compiledURL
		rewritten.URL.RawPath = ""
		next.ServeHTTP(w, rewritten)
	})
}

// ensure compiles the source unless the artifact is current. Concurrent
// callers for the same artifact share one compilation.
func (m *Middleware) ensure(ctx context.Context, handler compiler.Handler, requestPath, sourcePath, destPath string) error {
	ctx = context.WithoutCancel(ctx)
	_, err, _ := m.group.Do(destPath, func() (any, error) {
		stale, stamp, err := m.cache.ShouldRecompile(sourcePath)
		if err != nil {
			return nil, err
		}
		if !stale && fsutil.Exists(destPath) {
			return nil, nil
		}

		text, err := os.ReadFile(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
		out, err := handler.Compile(ctx, compiler.Source{
			Text:        text,
			RequestPath: requestPath,
			SourcePath:  sourcePath,
			DestPath:    destPath,
		})
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", requestPath, err)
		}
		if err := fsutil.OutputFile(destPath, out); err != nil {
			return nil, fmt.Errorf("write %s: %w", destPath, err)
		}
		m.cache.Record(sourcePath, stamp)
		m.logger.Debug("asset compiled", "path", requestPath, "output", destPath, "bytes", len(out))
		return nil, nil
	})
	return err
}

func (m *Middleware) localPath(urlPath string) (string, bool) {
	root, err := filepath.Abs(m.root)
	if err != nil {
		return "", false
	}
	candidate := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(urlPath, "/")))
	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return candidate, true
}
