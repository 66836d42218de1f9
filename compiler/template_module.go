package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// TemplateModule wraps raw template text as a module whose export is the
// template string, so the same template can be rendered in the browser.
type TemplateModule struct {
	AssetDirname string
	TemplateExt  string
}

// SourcePath maps "name.xtpl.js" to "name.xtpl".
func (t *TemplateModule) SourcePath(urlPath string) string {
	suffix := t.TemplateExt + ".js"
	if len(urlPath) >= len(suffix) && strings.EqualFold(urlPath[len(urlPath)-len(suffix):], suffix) {
		return urlPath[:len(urlPath)-len(".js")]
	}
	return urlPath
}

// MediaType implements MediaTyper.
func (t *TemplateModule) MediaType() string {
	return MediaJS
}

// Compile implements Handler.
func (t *TemplateModule) Compile(_ context.Context, src Source) ([]byte, error) {
	id, err := jsonString(t.moduleID(src.RequestPath))
	if err != nil {
		return nil, err
	}
	body, err := jsonString(string(src.Text))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("define(")
	buf.WriteString(id)
	buf.WriteString(", null, function(require, exports, module) {\n")
	buf.WriteString("module.exports = ")
	buf.WriteString(body)
	buf.WriteString(";\n});")
	return buf.Bytes(), nil
}

func (t *TemplateModule) moduleID(urlPath string) string {
	id := strings.TrimPrefix(urlPath, "/")
	if t.AssetDirname != "" {
		id = strings.TrimPrefix(id, t.AssetDirname+"/")
	}
	return id
}

// jsonString encodes s as a JSON string literal without HTML escaping.
func jsonString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
