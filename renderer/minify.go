package renderer

import (
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

// Minifier shrinks rendered pages including their inline styles and scripts.
type Minifier struct {
	m *minify.M
}

// NewMinifier keeps document tags, end tags and attribute quotes so that
// pages stay valid for the injected asset markup.
func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
		KeepDefaultAttrVals: true,
	})
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return &Minifier{m: m}
}

// HTML minifies a full page.
func (mi *Minifier) HTML(raw []byte) ([]byte, error) {
	return mi.m.Bytes("text/html", raw)
}
