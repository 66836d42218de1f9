package templatex

import (
	"encoding/json"
	"html"
	"strings"

	"github.com/back2front/back2front-go/pathutil"
)

// inject replaces each hook marker once with the markup for its asset kind.
// Markers without assets are removed.
func (rc *renderContext) inject(page, template string) string {
	bundled := rc.engine.manifest.Assets(template)
	for _, kind := range Kinds {
		page = strings.Replace(page, hookMarkers[kind], rc.markup(kind, bundled[string(kind)]), 1)
	}
	return page
}

func (rc *renderContext) markup(kind Kind, bundled []string) string {
	e := rc.engine
	production := e.manifest != nil

	var b strings.Builder
	for _, file := range bundled {
		src := file
		if !pathutil.IsURL(src) {
			src = e.URLPrefix() + strings.TrimPrefix(src, "/")
		}
		b.WriteString(`<script src="` + html.EscapeString(src) + `"></script>`)
	}

	entries := rc.assets.Entries(kind)
	if kind == KindModJS {
		rc.writeModules(&b, entries)
		return b.String()
	}

	var lookups []string
	flush := func() {
		if len(lookups) > 0 {
			b.WriteString("<script>" + strings.Join(lookups, "\n") + "</script>")
			lookups = lookups[:0]
		}
	}
	for _, entry := range entries {
		if entry.Inline != nil {
			flush()
			if kind == KindCSS {
				b.WriteString("<style>" + entry.Inline.Content + "</style>")
			} else {
				b.WriteString("<script>" + entry.Inline.Content + "</script>")
			}
			continue
		}

		switch {
		case production && !e.external(entry.Path) && kind == KindCSS:
			lookups = append(lookups, `document.write("<style>" + cssFiles[`+jsString(e.shorten(entry.Path))+`] + "</style>");`)
		case production && !e.external(entry.Path):
			lookups = append(lookups, `jsFiles[`+jsString(e.shorten(entry.Path))+`](window);`)
		case kind == KindCSS:
			flush()
			b.WriteString(`<link rel="stylesheet" href="` + html.EscapeString(rc.publicURL(entry.Path)) + `" />`)
		default:
			flush()
			b.WriteString(`<script src="` + html.EscapeString(rc.publicURL(entry.Path)) + `"></script>`)
		}
	}
	flush()
	return b.String()
}

// writeModules emits one loader call for all module paths, followed by a
// loader call per inline module.
func (rc *renderContext) writeModules(b *strings.Builder, entries []Entry) {
	var ids []string
	for _, entry := range entries {
		if entry.Inline == nil {
			ids = append(ids, rc.engine.shorten(entry.Path))
		}
	}
	if len(ids) > 0 {
		b.WriteString("<script>require(" + jsString(ids) + ");</script>")
	}
	for _, entry := range entries {
		if entry.Inline == nil {
			continue
		}
		deps := make([]string, 0, len(entry.Inline.Params))
		for _, p := range entry.Inline.Params {
			deps = append(deps, rc.engine.shorten(p))
		}
		b.WriteString("<script>require(" + jsString(deps) +
			", function(require, exports, module) {" + entry.Inline.Content + "});</script>")
	}
}

// publicURL is the unbundled URL of an asset path. Paths outside the asset
// root are already URLs.
func (rc *renderContext) publicURL(p string) string {
	if rc.engine.external(p) {
		return rc.engine.shorten(p)
	}
	return "/" + rc.engine.assetDirname + "/" + rc.engine.shorten(p)
}

func jsString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(data)
}
