package templatex

import (
	"encoding/json"
	"html"
	"html/template"
	"strings"
)

// baseFuncs is the function map templates are parsed with. Directives that
// depend on the render are placeholders here and rebound on every clone.
func (e *Engine) baseFuncs() template.FuncMap {
	unbound := func(...any) (string, error) { return "", errUnbound }
	unboundHTML := func(...any) (template.HTML, error) { return "", errUnbound }

	funcs := template.FuncMap{
		"templateFile":   func(p string) fileRef { return fileRef(p) },
		"hook":           hook,
		"assetURLPrefix": e.URLPrefix,
		"jsonEncode":     jsonEncode,
		"nl2br":          nl2br,
		"space2nbsp":     space2nbsp,
		"markdown":       e.renderMarkdown,
		"include":        unboundHTML,
		"parse":          unboundHTML,
		"markdownFile":   unboundHTML,
		"resolvePath":    unbound,
	}
	for _, kind := range Kinds {
		funcs[string(kind)] = unbound
		funcs[string(kind)+"Block"] = unbound
	}
	return funcs
}

// hook re-emits a marker comment that html/template would otherwise strip.
func hook(kind string) template.HTML {
	return template.HTML(hookMarkers[Kind(kind)])
}

func jsonEncode(v any) (template.JS, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(data), nil
}

func nl2br(s string) template.HTML {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return template.HTML(strings.ReplaceAll(html.EscapeString(s), "\n", "<br />"))
}

func space2nbsp(s string) template.HTML {
	return template.HTML(strings.ReplaceAll(html.EscapeString(s), " ", "&nbsp;"))
}

func (e *Engine) renderMarkdown(src string) (template.HTML, error) {
	doc, err := e.markdown.Render([]byte(src))
	if err != nil {
		return "", err
	}
	return template.HTML(doc.HTML), nil
}
