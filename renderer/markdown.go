// Package renderer turns markdown into HTML for the markdown template
// directives and minifies rendered pages in production.
package renderer

import (
	"bytes"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	htmlRenderer "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Heading is a heading found in a document.
type Heading struct {
	ID    string
	Text  string
	Level int
}

// Document is rendered markdown.
type Document struct {
	HTML     []byte
	Meta     map[string]any
	Headings []Heading
}

// Markdown renders GitHub flavoured markdown with highlighted code blocks.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown constructs a renderer. Raw HTML in the source is kept, since
// sources are project files rather than user input.
func NewMarkdown() *Markdown {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.DefinitionList,
			extension.Footnote,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
					chromahtml.ClassPrefix("hl-"),
					chromahtml.PreventSurroundingPre(true),
				),
				highlighting.WithWrapperRenderer(codeWrapper),
			),
			meta.Meta,
		),
		goldmark.WithParserOptions(
			parser.WithAttribute(),
		),
		goldmark.WithRendererOptions(
			htmlRenderer.WithUnsafe(),
		),
	)
	return &Markdown{md: md}
}

// Render converts src to HTML. Front matter is returned as Meta and headings
// receive stable ids.
func (m *Markdown) Render(src []byte) (*Document, error) {
	ctx := parser.NewContext()
	doc := m.md.Parser().Parse(text.NewReader(src), parser.WithContext(ctx))

	var headings []Heading
	slugs := make(map[string]int)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		heading, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		title := headingText(heading, src)
		id := ""
		if attr, ok := heading.AttributeString("id"); ok {
			id = attributeString(attr)
		}
		if id == "" {
			base := slugify(title)
			id = base
			if count := slugs[base]; count > 0 {
				id = fmt.Sprintf("%s-%d", base, count)
			}
			slugs[base]++
			heading.SetAttributeString("id", []byte(id))
		}
		headings = append(headings, Heading{ID: id, Text: title, Level: heading.Level})
		return ast.WalkSkipChildren, nil
	})

	var buf bytes.Buffer
	if err := m.md.Renderer().Render(&buf, src, doc); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return &Document{HTML: buf.Bytes(), Meta: meta.Get(ctx), Headings: headings}, nil
}

func headingText(root ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			sb.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func attributeString(value any) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return ""
	}
}

func slugify(input string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(input)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if sb.Len() > 0 && !dash {
				sb.WriteByte('-')
				dash = true
			}
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if slug == "" {
		return "section"
	}
	return slug
}

func codeWrapper(w util.BufWriter, ctx highlighting.CodeBlockContext, entering bool) {
	if !entering {
		_, _ = w.WriteString("</code></pre>\n")
		return
	}
	lang := "text"
	if raw, ok := ctx.Language(); ok && len(raw) > 0 {
		lang = string(util.EscapeHTML(raw))
	}
	_, _ = fmt.Fprintf(w, `<pre class="hl-chroma"><code class="language-%s">`, lang)
}
