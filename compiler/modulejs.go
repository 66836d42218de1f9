package compiler

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ModuleJS transpiles modern script syntax and wraps the result as an AMD
// style module. Transpile failures produce a module that throws when loaded.
type ModuleJS struct {
	// Target defaults to ES2015. Lower targets cannot lower const/let.
	Target api.Target
}

// CompiledPath maps "a/b.js" to "a/b.defined.js".
func (m *ModuleJS) CompiledPath(urlPath string) string {
	return strings.TrimSuffix(urlPath, ".js") + ".defined.js"
}

// MediaType implements MediaTyper.
func (m *ModuleJS) MediaType() string {
	return MediaJS
}

// Compile implements Handler.
func (m *ModuleJS) Compile(ctx context.Context, src Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := m.Target
	if target == api.DefaultTarget {
		target = api.ES2015
	}

	code := RewriteTemplateRefs(string(src.Text))
	result := api.Transform(code, api.TransformOptions{
		Loader:     api.LoaderJS,
		Target:     target,
		Sourcefile: src.RequestPath,
		Charset:    api.CharsetUTF8,
	})
	if len(result.Errors) > 0 {
		return throwingModule(src.RequestPath, result.Errors[0])
	}
	return wrapModule(result.Code), nil
}

func wrapModule(body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(body) + 80)
	buf.WriteString("define(function(require, exports, module) { \"use strict\";\n")
	buf.Write(bytes.TrimRight(body, "\n"))
	buf.WriteString("\n});")
	return buf.Bytes()
}

func throwingModule(file string, msg api.Message) ([]byte, error) {
	text := msg.Text
	if loc := msg.Location; loc != nil {
		text = fmt.Sprintf("%s:%d:%d: %s", file, loc.Line, loc.Column, msg.Text)
	}
	quoted, err := jsonString(text)
	if err != nil {
		return nil, err
	}
	return wrapModule([]byte("throw new Error(" + quoted + ");")), nil
}
