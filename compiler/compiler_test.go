package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSass struct {
	source string
	opts   SassOptions
	err    error
}

func (f *fakeSass) Preprocess(_ context.Context, source string, opts SassOptions) (string, error) {
	f.source = source
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return "/* compiled */\n" + source, nil
}

func TestRegistryMatchesFullExtension(t *testing.T) {
	reg := Default(Options{AssetDirname: "assets", Sass: &fakeSass{}})

	h, ext, ok := reg.Match("/assets/tabs.xtpl.js")
	require.True(t, ok)
	assert.Equal(t, ".xtpl.js", ext)
	assert.IsType(t, &TemplateModule{}, h)

	h, _, ok = reg.Match("/assets/app.js?v=1")
	require.True(t, ok)
	assert.IsType(t, &ModuleJS{}, h)

	_, ext, ok = reg.Match("/assets/vendor.raw.js")
	assert.False(t, ok)
	assert.Equal(t, ".raw.js", ext)

	_, _, ok = reg.Match("/assets/README")
	assert.False(t, ok)

	assert.Equal(t, []string{".js", ".scss", ".xtpl.js"}, reg.Extensions())
}

func TestPathMapping(t *testing.T) {
	reg := Default(Options{AssetDirname: "assets", Sass: &fakeSass{}})

	h, _, _ := reg.Match("/assets/a/b.xtpl.js")
	assert.Equal(t, "/assets/a/b.xtpl", SourcePathFor(h, "/assets/a/b.xtpl.js"))
	assert.Equal(t, "/~assets/a/b.xtpl.js", CompiledPathFor(h, "/assets/a/b.xtpl.js"))
	assert.Equal(t, MediaJS, MediaTypeOf(h))

	h, _, _ = reg.Match("/assets/a/b.js")
	assert.Equal(t, "/assets/a/b.js", SourcePathFor(h, "/assets/a/b.js"))
	assert.Equal(t, "/~assets/a/b.defined.js", CompiledPathFor(h, "/assets/a/b.js"))
	assert.Equal(t, MediaJS, MediaTypeOf(h))

	h, _, _ = reg.Match("/assets/s.scss")
	assert.Equal(t, MediaCSS, MediaTypeOf(h))
}

var templateModulePattern = regexp.MustCompile(`(?s)^define\(("[^"]*"), null, function\(require, exports, module\) \{\nmodule\.exports = (.*);\n\}\);$`)

func TestTemplateModuleRoundTrip(t *testing.T) {
	text := "<div class=\"tabs\">{{ .title }}</div>\n<script>a < b && c > d</script>\n 'quote'"
	h := &TemplateModule{AssetDirname: "assets", TemplateExt: ".xtpl"}

	out, err := h.Compile(context.Background(), Source{
		Text:        []byte(text),
		RequestPath: "/assets/components/tabs/tabs.xtpl.js",
	})
	require.NoError(t, err)

	m := templateModulePattern.FindStringSubmatch(string(out))
	require.NotNil(t, m, string(out))

	var id, exported string
	require.NoError(t, json.Unmarshal([]byte(m[1]), &id))
	require.NoError(t, json.Unmarshal([]byte(m[2]), &exported))
	assert.Equal(t, "components/tabs/tabs.xtpl.js", id)
	assert.Equal(t, text, exported)
	assert.Contains(t, string(out), `a < b && c > d`, "html is not escaped")
}

func TestRewriteTemplateRefs(t *testing.T) {
	src := `var a = _tpl("x/y.xtpl");
var b = my_tpl("x/y.xtpl");
var c = obj._tpl('z.xtpl');
var d = "_tpl(\"x/y.xtpl\")";
var e = _tpl( 'w.xtpl' );`

	out := RewriteTemplateRefs(src)
	assert.Contains(t, out, `var a = require.resolve("x/y.xtpl");`)
	assert.Contains(t, out, `var b = my_tpl("x/y.xtpl");`)
	assert.Contains(t, out, `var c = obj._tpl('z.xtpl');`)
	assert.Contains(t, out, `var d = "_tpl(\"x/y.xtpl\")";`)
	assert.Contains(t, out, `var e = require.resolve("w.xtpl");`)
	assert.Equal(t, 2, strings.Count(out, "require.resolve("))
}

func TestScanReferences(t *testing.T) {
	src := `var t = require("./tabs.xtpl");
var u = require('lib/util');
var v = _tpl("list.xtpl");
var w = require(name);`

	refs := ScanReferences(src)
	assert.Equal(t, []Reference{
		{Kind: RefRequire, Specifier: "./tabs.xtpl"},
		{Kind: RefRequire, Specifier: "lib/util"},
		{Kind: RefTemplate, Specifier: "list.xtpl"},
	}, refs)
}

func TestModuleJSTranspilesAndWraps(t *testing.T) {
	h := &ModuleJS{}
	out, err := h.Compile(context.Background(), Source{
		Text:        []byte("const tpl = _tpl(\"x/y.xtpl\");\nlet add = (a, b) => a + b;\nclass Tabs { #index = 0; }\nvar n = a ?? b;\n"),
		RequestPath: "/assets/app.js",
	})
	require.NoError(t, err)

	s := string(out)
	assert.True(t, strings.HasPrefix(s, "define(function(require, exports, module) { \"use strict\";\n"), s)
	assert.True(t, strings.HasSuffix(s, "\n});"), s)
	assert.Contains(t, s, `require.resolve("x/y.xtpl")`)
	assert.NotContains(t, s, "_tpl(")
	assert.NotContains(t, s, "??")
	assert.NotContains(t, s, "#index")
}

func TestModuleJSFailureBecomesThrowingModule(t *testing.T) {
	h := &ModuleJS{}
	out, err := h.Compile(context.Background(), Source{
		Text:        []byte("var a = 1;\nvar = ;\n"),
		RequestPath: "/assets/broken.js",
	})
	require.NoError(t, err)

	s := string(out)
	assert.True(t, strings.HasPrefix(s, "define(function(require, exports, module) {"), s)
	assert.Contains(t, s, "throw new Error(\"/assets/broken.js:2:")
}

func TestRewriteLineComments(t *testing.T) {
	src := "// header a/b\n" +
		".a { color: red; } // trailing\n" +
		".b { background: url(http://x.test/i.png); }\n" +
		".c { background: url(//cdn.test/i.png); }\n" +
		".d::after { content: \"// not a comment\"; }\n" +
		"/* block // stays */\n"

	out := RewriteLineComments(src)
	assert.Equal(t, "/* header a\\/b */\n"+
		".a { color: red; } /* trailing */\n"+
		".b { background: url(http://x.test/i.png); }\n"+
		".c { background: url(//cdn.test/i.png); }\n"+
		".d::after { content: \"// not a comment\"; }\n"+
		"/* block // stays */\n", out)
}

func TestStyleRewritesCommentsBeforePreprocessing(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "sass.config.yml")
	require.NoError(t, os.WriteFile(cfg, []byte("outputStyle: compressed\nincludePaths:\n  - shared\n"), 0o644))

	fake := &fakeSass{}
	h := &Style{ConfigPath: cfg, Preprocessor: fake}
	out, err := h.Compile(context.Background(), Source{
		Text:       []byte("// colors\n$c: red;\n.a { color: $c; }\n"),
		SourcePath: filepath.Join(dir, "assets", "s.scss"),
	})
	require.NoError(t, err)

	assert.NotContains(t, fake.source, "//")
	assert.True(t, strings.HasPrefix(fake.source, "/* colors */\n"))
	assert.Equal(t, "compressed", fake.opts.OutputStyle)
	assert.Equal(t, []string{filepath.Join(dir, "assets"), filepath.Join(dir, "shared")}, fake.opts.IncludePaths)
	assert.Contains(t, string(out), "/* compiled */")
}

func TestStyleFailsSoft(t *testing.T) {
	h := &Style{Preprocessor: &fakeSass{err: errors.New("Undefined variable: $missing")}}
	out, err := h.Compile(context.Background(), Source{Text: []byte(".a { color: $missing; }")})
	require.NoError(t, err)
	assert.Equal(t, "Undefined variable: $missing", string(out))
}

func TestLoadSassOptionsMissingFile(t *testing.T) {
	opts, err := LoadSassOptions(filepath.Join(t.TempDir(), "none.yml"))
	require.NoError(t, err)
	assert.Equal(t, SassOptions{}, opts)
}
