package route

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/back2front/back2front-go/manifest"
)

type htmlHelper struct {
	basicHelper
	renderer Renderer
	manifest *manifest.Manifest
}

func newHTMLHelper(renderer Renderer, m *manifest.Manifest, template string) *htmlHelper {
	h := &htmlHelper{renderer: renderer, manifest: m}
	h.init(template)
	return h
}

func (h *htmlHelper) Type() Type {
	return TypeHTML
}

// Render executes the page template. Bundled files the manifest lists for
// the template are exposed as "<type>Files".
func (h *htmlHelper) Render(w http.ResponseWriter, r *http.Request) error {
	template, status, data := h.snapshot()
	if template == "" {
		return fmt.Errorf("render: no template set")
	}
	for assetType, files := range h.manifest.Assets(template) {
		data[assetType+"Files"] = files
	}

	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, template, data); err != nil {
		return fmt.Errorf("render %s: %w", template, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	h.markRendered()
	return err
}

// RenderInfo switches to the info template and renders info with it.
func (h *htmlHelper) RenderInfo(w http.ResponseWriter, r *http.Request, info Info) error {
	if info.BackURL == "" && r != nil {
		info.BackURL = r.Referer()
	}
	h.Set("info", info.values())
	h.SetTemplate(InfoTemplate)
	return h.Render(w, r)
}
