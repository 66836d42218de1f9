package templatex

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/back2front/back2front-go/manifest"
	"github.com/back2front/back2front-go/pathutil"
	"github.com/back2front/back2front-go/renderer"
)

// ErrTemplateNotFound is returned when a referenced template does not exist.
var ErrTemplateNotFound = errors.New("template not found")

// maxDepth bounds include and extend nesting.
const maxDepth = 64

// placeholderExt is completed with the template extension, so "a.page"
// resolves to "a.page.xtpl".
const placeholderExt = ".page"

// Minifier shrinks rendered pages.
type Minifier interface {
	HTML(raw []byte) ([]byte, error)
}

// Options configures an Engine.
type Options struct {
	// Root is the asset root holding templates and their assets.
	Root string
	// AssetDirname is the URL segment the asset root is served under.
	AssetDirname string
	// Ext is the template extension, ".xtpl" by default.
	Ext string
	// Manifest switches asset output to the bundled form when set.
	Manifest *manifest.Manifest
	// Cache keeps compiled templates for the process lifetime.
	Cache    bool
	Markdown *renderer.Markdown
	Minifier Minifier
	Logger   *slog.Logger
}

// Engine renders templates and injects the assets they reference.
type Engine struct {
	root         string
	assetDirname string
	ext          string
	manifest     *manifest.Manifest
	cache        bool
	markdown     *renderer.Markdown
	minifier     Minifier
	logger       *slog.Logger

	mu    sync.RWMutex
	units map[string]*unit
}

// unit is a compiled template. Its template set is never executed directly;
// every render works on a clone.
type unit struct {
	file     string
	mode     Mode
	entry    string
	preamble []string
	tmpl     *template.Template
}

// New creates an engine for the templates below opts.Root.
func New(opts Options) (*Engine, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("template root not configured")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve template root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("template root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template root %s is not a directory", root)
	}

	ext := opts.Ext
	if ext == "" {
		ext = ".xtpl"
	}
	assetDirname := opts.AssetDirname
	if assetDirname == "" {
		assetDirname = filepath.Base(root)
	}
	markdown := opts.Markdown
	if markdown == nil {
		markdown = renderer.NewMarkdown()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		root:         root,
		assetDirname: assetDirname,
		ext:          ext,
		manifest:     opts.Manifest,
		cache:        opts.Cache,
		markdown:     markdown,
		minifier:     opts.Minifier,
		logger:       logger,
		units:        make(map[string]*unit),
	}, nil
}

// Root returns the absolute asset root.
func (e *Engine) Root() string {
	return e.root
}

// Manifest returns the production manifest, or nil in development.
func (e *Engine) Manifest() *manifest.Manifest {
	return e.manifest
}

// URLPrefix returns the prefix of asset URLs, always ending with "/".
func (e *Engine) URLPrefix() string {
	if e.manifest != nil {
		return e.manifest.Prefix()
	}
	return "/" + e.assetDirname + "/"
}

// Render executes the template name, relative to the asset root, and writes
// the page with its assets injected. Nothing is written on failure.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	page, _, err := e.render(name, data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, page)
	return err
}

// RenderAssets renders name and also returns the collected asset list.
func (e *Engine) RenderAssets(name string, data any) (string, *AssetList, error) {
	return e.render(name, data)
}

func (e *Engine) render(name string, data any) (string, *AssetList, error) {
	u, err := e.load(name, "", ModeFull, nil)
	if err != nil {
		return "", nil, err
	}

	rc := &renderContext{engine: e, data: data, assets: NewAssetList()}
	var buf bytes.Buffer
	if err := rc.execute(&buf, u, data); err != nil {
		return "", nil, err
	}

	page := rc.inject(buf.String(), e.relName(u.file))
	if e.minifier != nil {
		minified, err := e.minifier.HTML([]byte(page))
		if err != nil {
			e.logger.Warn("minify page", "template", name, "err", err)
		} else {
			page = string(minified)
		}
	}
	return page, rc.assets, nil
}

// ResolveURL maps an asset reference to its public URL, inserting the content
// hash when the manifest knows one.
func (e *Engine) ResolveURL(ref, from string) string {
	if pathutil.IsURL(ref) {
		return ref
	}
	abs := e.localPath(pathutil.ExpandVersion(ref), from)
	if e.external(abs) {
		return e.shorten(abs)
	}
	rel := pathutil.RelativeTo(e.root, abs)
	if hash, ok := e.manifest.Hash(rel); ok {
		rel = pathutil.InsertHash(rel, hash)
	}
	return e.URLPrefix() + rel
}

// resolveAsset turns a directive argument into an absolute path or URL.
func (e *Engine) resolveAsset(ref, from string, kind Kind) string {
	if pathutil.IsURL(ref) {
		return ref
	}
	ref = pathutil.WithDefaultExtension(pathutil.ExpandVersion(ref), defaultExt[kind])
	return e.localPath(ref, from)
}

// shorten returns the root-relative form of an asset path.
func (e *Engine) shorten(p string) string {
	return pathutil.RelativeTo(e.root, p)
}

// external reports whether p is served from outside the asset root: a URL
// or a root-absolute path that is emitted verbatim.
func (e *Engine) external(p string) bool {
	rel := e.shorten(p)
	return pathutil.IsURL(rel) || path.IsAbs(rel) || filepath.IsAbs(rel)
}

func (e *Engine) localPath(ref, from string) string {
	ref = pathutil.NormalizePath(ref)
	if from == "" {
		from = filepath.Join(e.root, "index")
	}
	return filepath.Clean(pathutil.ToLocalPath(e.root, ref, from))
}

// templatePath resolves a template reference and completes its extension.
func (e *Engine) templatePath(ref, from string) string {
	file := e.localPath(ref, from)
	if ext := filepath.Ext(file); ext == "" || ext == placeholderExt {
		file += e.ext
	}
	return file
}

func (e *Engine) relName(file string) string {
	return pathutil.RelativeTo(e.root, file)
}

// TemplateName returns the root-relative name a reference resolves to, the
// key used by the production manifest.
func (e *Engine) TemplateName(ref string) string {
	name, _ := splitMode(ref)
	return e.relName(e.templatePath(name, ""))
}

func (e *Engine) load(ref, from string, inherited Mode, chain []string) (*unit, error) {
	name, mode := splitMode(ref)
	if mode == ModeFull {
		mode = inherited
	}
	file := e.templatePath(name, from)
	if slices.Contains(chain, file) {
		return nil, fmt.Errorf("template %s extends itself", e.relName(file))
	}
	if len(chain) >= maxDepth {
		return nil, fmt.Errorf("template %s: extend chain too deep", e.relName(file))
	}

	key := file + "?" + string(mode)
	if u := e.cached(key); u != nil {
		return u, nil
	}

	src, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, e.relName(file))
		}
		return nil, fmt.Errorf("read template: %w", err)
	}
	p, err := prepare(file, string(src), mode, prepareOptions{ext: e.ext, companion: e.manifest == nil})
	if err != nil {
		return nil, err
	}

	u := &unit{file: file, mode: mode, entry: file}
	if p.parent != "" {
		parent, err := e.load(p.parent, file, mode, append(chain, file))
		if err != nil {
			return nil, err
		}
		base, err := parent.tmpl.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout %s: %w", e.relName(parent.file), err)
		}
		if u.tmpl, err = base.New(file).Parse(p.text); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", e.relName(file), err)
		}
		u.entry = parent.entry
		u.preamble = append([]string{file}, parent.preamble...)
	} else {
		if u.tmpl, err = template.New(file).Funcs(e.baseFuncs()).Parse(p.text); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", e.relName(file), err)
		}
	}

	e.logger.Debug("template compiled", "template", e.relName(file), "mode", string(mode))
	e.store(key, u)
	return u, nil
}

// scriptDeps builds a unit that includes, in client-only mode, every
// template a module script references.
func (e *Engine) scriptDeps(jsFile string) (*unit, error) {
	key := jsFile + "?deps"
	if u := e.cached(key); u != nil {
		return u, nil
	}
	src, err := os.ReadFile(jsFile)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	text := nonEmpty + injectFileIdentity(jsFile, templateDepIncludes(string(src), e.ext))
	tmpl, err := template.New(jsFile).Funcs(e.baseFuncs()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse script dependencies %s: %w", e.relName(jsFile), err)
	}
	u := &unit{file: jsFile, mode: ModeClientOnly, entry: jsFile, tmpl: tmpl}
	e.store(key, u)
	return u, nil
}

func (e *Engine) cached(key string) *unit {
	if !e.cache {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.units[key]
}

func (e *Engine) store(key string, u *unit) {
	if !e.cache {
		return
	}
	e.mu.Lock()
	e.units[key] = u
	e.mu.Unlock()
}
