package templatex

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/back2front/back2front-go/compiler"
)

// Mode selects how a template is compiled.
type Mode string

const (
	// ModeFull renders the whole template.
	ModeFull Mode = ""
	// ModeClientOnly keeps only the directives that declare assets. It is
	// used for templates that are rendered in the browser.
	ModeClientOnly Mode = "client-only"
)

// splitMode separates a "name?client-only" reference into its parts.
func splitMode(ref string) (string, Mode) {
	i := strings.IndexByte(ref, '?')
	if i < 0 {
		return ref, ModeFull
	}
	if strings.TrimSpace(ref[i+1:]) == string(ModeClientOnly) {
		return ref[:i], ModeClientOnly
	}
	return ref[:i], ModeFull
}

// Hook markers placed in root templates.
var hookMarkers = map[Kind]string{
	KindCSS:    "<!-- CSS Hook -->",
	KindJS:     "<!-- JS Hook -->",
	KindHeadJS: "<!-- Headjs Hook -->",
	KindModJS:  "<!-- Modjs Hook -->",
}

// nonEmpty leads every prepared source. html/template refuses to execute
// templates without actions, which stripped or define-only files would be.
const nonEmpty = `{{""}}`

const stringLit = `"(?:[^"\\\n]|\\.)*"|` + "`[^`]*`"

var (
	actionPattern    = regexp.MustCompile(`(?s)\{\{.*?\}\}`)
	extendPattern    = regexp.MustCompile(`\{\{-?\s*extend\s+(` + stringLit + `)\s*-?\}\}`)
	identityPattern  = regexp.MustCompile(`(\{\{-?\s*|\(\s*)(css|js|headjs|modjs|resolvePath|include|parse|markdownFile)\b`)
	stringLitPattern = regexp.MustCompile(stringLit)
	directivePattern = regexp.MustCompile(`(?s)^\{\{-?\s*(css|js|headjs|modjs|include|parse)\b(.*?)-?\}\}$`)
	blockPatterns    = map[Kind]*regexp.Regexp{}
)

func init() {
	for _, kind := range Kinds {
		k := string(kind)
		blockPatterns[kind] = regexp.MustCompile(`(?s)\{\{-?\s*#` + k + `\b(.*?)-?\}\}(.*?)\{\{-?\s*/` + k + `\s*-?\}\}`)
	}
}

// prepared is template source ready for html/template.
type prepared struct {
	text   string
	parent string
}

type prepareOptions struct {
	ext       string
	companion bool
}

// prepare runs the lexical passes that map directive syntax onto
// html/template actions.
func prepare(file, src string, mode Mode, opts prepareOptions) (prepared, error) {
	text := src
	parent := ""
	if m := extendPattern.FindStringSubmatchIndex(text); m != nil {
		p, err := strconv.Unquote(text[m[2]:m[3]])
		if err != nil {
			return prepared{}, fmt.Errorf("%s: invalid extend argument: %w", file, err)
		}
		parent = p
		text = text[:m[0]] + text[m[1]:]
	}

	if mode == ModeClientOnly {
		text = extractClientOnly(text)
		if parent != "" {
			text = "{{include " + strconv.Quote(parent) + "}}" + text
			parent = ""
		}
		if opts.companion {
			text += "{{modjs " + strconv.Quote("./"+filepath.Base(file)+".js") + "}}"
		}
	}

	text = injectTemplateDeps(text, opts.ext)
	text = replaceHookMarkers(text)
	text = rewriteBlocks(file, text)
	text = injectFileIdentity(file, text)
	return prepared{text: nonEmpty + text, parent: parent}, nil
}

// injectTemplateDeps prepends a client-only include for every template
// referenced through require("...") or _tpl("...") so that the assets of
// templates rendered in the browser are registered with the page.
func injectTemplateDeps(text, ext string) string {
	return templateDepIncludes(text, ext) + text
}

func templateDepIncludes(text, ext string) string {
	var b strings.Builder
	seen := make(map[string]struct{})
	for _, ref := range compiler.ScanReferences(text) {
		if !isTemplateRef(ref.Specifier, ext) {
			continue
		}
		if _, ok := seen[ref.Specifier]; ok {
			continue
		}
		seen[ref.Specifier] = struct{}{}
		b.WriteString("{{include ")
		b.WriteString(strconv.Quote(ref.Specifier + "?" + string(ModeClientOnly)))
		b.WriteString("}}")
	}
	return b.String()
}

func isTemplateRef(spec, ext string) bool {
	return ext != "" && strings.HasSuffix(spec, ext)
}

func replaceHookMarkers(text string) string {
	for _, kind := range Kinds {
		text = strings.ReplaceAll(text, hookMarkers[kind], `{{hook "`+string(kind)+`"}}`)
	}
	return text
}

// rewriteBlocks turns {{#js args}}body{{/js}} into a call to jsBlock and
// moves the body into a named template appended to the source.
func rewriteBlocks(file, text string) string {
	n := 0
	quotedFile := strconv.Quote(file)
	for _, kind := range Kinds {
		pattern := blockPatterns[kind]
		var defs strings.Builder
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			name := strconv.Quote(fmt.Sprintf("%s#inline%d", file, n))
			n++
			defs.WriteString("{{define " + name + "}}" + sub[2] + "{{end}}")
			call := "{{" + string(kind) + "Block (templateFile " + quotedFile + ") " + name + " ."
			if args := strings.TrimSpace(sub[1]); args != "" {
				call += " " + args
			}
			return call + "}}"
		})
		text += defs.String()
	}
	return text
}

// injectFileIdentity passes the defining file to directives that resolve
// relative references, so "./x" keeps pointing next to the file that wrote it
// even when the action runs inside an extended layout.
func injectFileIdentity(file, text string) string {
	ref := "(templateFile " + strconv.Quote(file) + ")"
	return actionPattern.ReplaceAllStringFunc(text, func(action string) string {
		inner := strings.TrimLeft(strings.TrimPrefix(strings.TrimPrefix(action, "{{"), "-"), " \t")
		if strings.HasPrefix(inner, "/*") {
			return action
		}
		return identityPattern.ReplaceAllStringFunc(action, func(call string) string {
			return call + " " + ref
		})
	})
}

// extractClientOnly keeps block directives and the string arguments of
// directive and include actions. Everything else is dropped.
func extractClientOnly(text string) string {
	type piece struct {
		pos  int
		text string
	}
	var spans [][2]int
	for _, kind := range Kinds {
		for _, loc := range blockPatterns[kind].FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	var pieces []piece
	end := -1
	for _, span := range spans {
		if span[0] < end {
			continue
		}
		pieces = append(pieces, piece{pos: span[0], text: text[span[0]:span[1]]})
		end = span[1]
	}
	covered := func(pos int) bool {
		for _, p := range pieces {
			if pos >= p.pos && pos < p.pos+len(p.text) {
				return true
			}
		}
		return false
	}

	for _, loc := range actionPattern.FindAllStringIndex(text, -1) {
		if covered(loc[0]) {
			continue
		}
		m := directivePattern.FindStringSubmatch(text[loc[0]:loc[1]])
		if m == nil {
			continue
		}
		lits := stringLitPattern.FindAllString(m[2], -1)
		if len(lits) == 0 {
			continue
		}
		if m[1] == "include" || m[1] == "parse" {
			lits = lits[:1]
		}
		pieces = append(pieces, piece{pos: loc[0], text: "{{" + m[1] + " " + strings.Join(lits, " ") + "}}"})
	}

	sort.SliceStable(pieces, func(i, j int) bool { return pieces[i].pos < pieces[j].pos })
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(p.text)
	}
	return b.String()
}
