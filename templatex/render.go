package templatex

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/back2front/back2front-go/fsutil"
	"github.com/back2front/back2front-go/pathutil"
)

var errUnbound = errors.New("directive called outside of a render")

// fileRef carries the path of the file that wrote a directive call.
type fileRef string

// renderContext is the state shared by every template executed for one
// page: the page data and the asset list that nested includes add to.
type renderContext struct {
	engine *Engine
	data   any
	assets *AssetList
	depth  int
}

func (rc *renderContext) execute(w io.Writer, u *unit, data any) error {
	if rc.depth >= maxDepth {
		return fmt.Errorf("template %s: include depth exceeds %d", rc.engine.relName(u.file), maxDepth)
	}
	rc.depth++
	defer func() { rc.depth-- }()

	clone, err := u.tmpl.Clone()
	if err != nil {
		return fmt.Errorf("clone template %s: %w", rc.engine.relName(u.file), err)
	}
	clone.Funcs(rc.funcs(clone, u))

	for _, name := range u.preamble {
		if err := clone.ExecuteTemplate(io.Discard, name, data); err != nil {
			return err
		}
	}
	return clone.ExecuteTemplate(w, u.entry, data)
}

// funcs binds the directives to this render and to the executing unit.
func (rc *renderContext) funcs(self *template.Template, u *unit) template.FuncMap {
	funcs := template.FuncMap{
		"include":      rc.includer(u, true),
		"parse":        rc.includer(u, false),
		"resolvePath":  rc.resolvePath(u),
		"markdownFile": rc.markdownFile(u),
	}
	for _, kind := range Kinds {
		funcs[string(kind)] = rc.importer(kind, u)
		funcs[string(kind)+"Block"] = rc.blockImporter(kind, self, u)
	}
	return funcs
}

func splitFrom(args []any, def string) (string, []any) {
	if len(args) > 0 {
		if f, ok := args[0].(fileRef); ok {
			return string(f), args[1:]
		}
	}
	return def, args
}

func stringArgs(directive string, args []any) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			out = append(out, v)
		case []string:
			out = append(out, v...)
		default:
			return nil, fmt.Errorf("%s: unexpected argument %v (%T)", directive, arg, arg)
		}
	}
	return out, nil
}

// addAsset resolves ref and records it. A module script inserted for the
// first time pulls in the assets of the templates it references.
func (rc *renderContext) addAsset(kind Kind, ref, from string) (string, error) {
	resolved := rc.engine.resolveAsset(ref, from, kind)
	if !rc.assets.Add(kind, resolved) {
		return resolved, nil
	}
	if kind != KindModJS || pathutil.IsURL(resolved) || !strings.HasSuffix(resolved, ".js") || !fsutil.Exists(resolved) {
		return resolved, nil
	}
	deps, err := rc.engine.scriptDeps(resolved)
	if err != nil {
		return "", err
	}
	if err := rc.execute(io.Discard, deps, map[string]any{}); err != nil {
		return "", err
	}
	return resolved, nil
}

func (rc *renderContext) importer(kind Kind, u *unit) func(args ...any) (string, error) {
	return func(args ...any) (string, error) {
		from, rest := splitFrom(args, u.file)
		refs, err := stringArgs(string(kind), rest)
		if err != nil {
			return "", err
		}
		for _, ref := range refs {
			if _, err := rc.addAsset(kind, ref, from); err != nil {
				return "", err
			}
		}
		return "", nil
	}
}

// blockImporter captures the body of a block directive. Its declared paths
// are recorded first, then the body as an inline entry.
func (rc *renderContext) blockImporter(kind Kind, self *template.Template, u *unit) func(args ...any) (string, error) {
	directive := string(kind) + "Block"
	return func(args ...any) (string, error) {
		from, rest := splitFrom(args, u.file)
		if len(rest) < 2 {
			return "", fmt.Errorf("%s: missing body", directive)
		}
		name, ok := rest[0].(string)
		if !ok {
			return "", fmt.Errorf("%s: invalid body reference %v", directive, rest[0])
		}
		dot := rest[1]
		refs, err := stringArgs(directive, rest[2:])
		if err != nil {
			return "", err
		}

		params := make([]string, 0, len(refs))
		for _, ref := range refs {
			resolved, err := rc.addAsset(kind, ref, from)
			if err != nil {
				return "", err
			}
			params = append(params, resolved)
		}

		var body bytes.Buffer
		if err := self.ExecuteTemplate(&body, name, dot); err != nil {
			return "", err
		}
		rc.assets.AddInline(kind, InlineAsset{
			Params:  params,
			Content: strings.TrimSpace(body.String()),
		})
		return "", nil
	}
}

// includer renders another template in place. include hands over the page
// data unless data is given, parse starts from empty data.
func (rc *renderContext) includer(u *unit, pageData bool) func(args ...any) (template.HTML, error) {
	directive := "parse"
	if pageData {
		directive = "include"
	}
	return func(args ...any) (template.HTML, error) {
		from, rest := splitFrom(args, u.file)
		if len(rest) == 0 {
			return "", fmt.Errorf("%s: missing template name", directive)
		}
		name, ok := rest[0].(string)
		if !ok {
			return "", fmt.Errorf("%s: invalid template name %v", directive, rest[0])
		}

		var data any = map[string]any{}
		switch {
		case len(rest) > 1:
			data = rest[1]
		case pageData && u.mode != ModeClientOnly:
			data = rc.data
		}

		child, err := rc.engine.load(name, from, u.mode, nil)
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := rc.execute(&buf, child, data); err != nil {
			return "", err
		}
		return template.HTML(buf.String()), nil
	}
}

func (rc *renderContext) resolvePath(u *unit) func(args ...any) (string, error) {
	return func(args ...any) (string, error) {
		from, rest := splitFrom(args, u.file)
		refs, err := stringArgs("resolvePath", rest)
		if err != nil {
			return "", err
		}
		if len(refs) != 1 {
			return "", fmt.Errorf("resolvePath: want one path, got %d", len(refs))
		}
		return rc.engine.ResolveURL(refs[0], from), nil
	}
}

func (rc *renderContext) markdownFile(u *unit) func(args ...any) (template.HTML, error) {
	return func(args ...any) (template.HTML, error) {
		from, rest := splitFrom(args, u.file)
		refs, err := stringArgs("markdownFile", rest)
		if err != nil {
			return "", err
		}
		if len(refs) != 1 {
			return "", fmt.Errorf("markdownFile: want one path, got %d", len(refs))
		}
		src, err := os.ReadFile(rc.engine.localPath(refs[0], from))
		if err != nil {
			return "", fmt.Errorf("markdownFile: %w", err)
		}
		doc, err := rc.engine.markdown.Render(src)
		if err != nil {
			return "", fmt.Errorf("markdownFile: %w", err)
		}
		return template.HTML(doc.HTML), nil
	}
}
