package compiler

import (
	"regexp"
	"strings"
)

// Reference kinds found by ScanReferences.
const (
	RefRequire  = "require"
	RefTemplate = "_tpl"
)

// Reference is a literal module reference found in script source.
type Reference struct {
	Kind      string
	Specifier string
}

var (
	referencePattern = regexp.MustCompile(`(?:^|[^\w$.])(require|_tpl)\(\s*(?:"([^"\\\n]*)"|'([^'\\\n]*)')\s*\)`)
	tplCallPattern   = regexp.MustCompile(`(^|[^\w$.])_tpl\(\s*(?:"([^"\\\n]*)"|'([^'\\\n]*)')\s*\)`)
)

// ScanReferences lists require("...") and _tpl("...") calls with literal
// arguments in source order. This is a lexical heuristic: references built at
// runtime are not found.
func ScanReferences(src string) []Reference {
	matches := referencePattern.FindAllStringSubmatch(src, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		spec := m[2]
		if spec == "" {
			spec = m[3]
		}
		if spec == "" {
			continue
		}
		refs = append(refs, Reference{Kind: m[1], Specifier: spec})
	}
	return refs
}

// RewriteTemplateRefs turns _tpl("path") calls into require.resolve("path")
// so template references become module identifiers at runtime.
func RewriteTemplateRefs(src string) string {
	indexes := tplCallPattern.FindAllStringSubmatchIndex(src, -1)
	if len(indexes) == 0 {
		return src
	}
	var b strings.Builder
	b.Grow(len(src) + len(indexes)*16)
	last := 0
	for _, idx := range indexes {
		b.WriteString(src[last:idx[0]])
		b.WriteString(src[idx[2]:idx[3]])
		spec := ""
		if idx[4] >= 0 {
			spec = src[idx[4]:idx[5]]
		} else if idx[6] >= 0 {
			spec = src[idx[6]:idx[7]]
		}
		quoted, err := jsonString(spec)
		if err != nil {
			quoted = `""`
		}
		b.WriteString("require.resolve(")
		b.WriteString(quoted)
		b.WriteString(")")
		last = idx[1]
	}
	b.WriteString(src[last:])
	return b.String()
}
