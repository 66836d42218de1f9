// Package route holds the per-request helpers that collect view data and
// finalize the response as an HTML page or a JSON envelope.
package route

import (
	"io"
	"maps"
	"net/http"
	"sync"

	"github.com/back2front/back2front-go/manifest"
)

// Type is the response type of a route.
type Type string

const (
	TypeHTML Type = "html"
	TypeJSON Type = "json"
)

// InfoTemplate renders error and notice pages.
const InfoTemplate = "pages/_info/_info.page.xtpl"

// Info describes an error or notice shown to the user.
type Info struct {
	Status     int
	HTTPStatus int
	Message    string
	Stack      string
	BackURL    string
}

func (i Info) values() map[string]any {
	if i.Status == 0 {
		i.Status = 1
	}
	out := map[string]any{
		"status":  i.Status,
		"message": i.Message,
	}
	if i.HTTPStatus != 0 {
		out["httpStatus"] = i.HTTPStatus
	}
	if i.Stack != "" {
		out["stack"] = i.Stack
	}
	if i.BackURL != "" {
		out["backURL"] = i.BackURL
	}
	return out
}

// Renderer executes a template with its assets injected.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

// Helper accumulates the view data of one request.
type Helper interface {
	Type() Type
	SetTemplate(name string)
	Template() string
	SetStatus(code int)
	Get(key string) any
	Set(key string, value any)
	Merge(values map[string]any)
	Render(w http.ResponseWriter, r *http.Request) error
	RenderInfo(w http.ResponseWriter, r *http.Request, info Info) error
	Rendered() bool
}

// Factory creates helpers bound to one template engine.
type Factory struct {
	renderer Renderer
	manifest *manifest.Manifest
}

// NewFactory returns a factory. m may be nil outside production.
func NewFactory(renderer Renderer, m *manifest.Manifest) *Factory {
	return &Factory{renderer: renderer, manifest: m}
}

// New returns a helper for the response type t.
func (f *Factory) New(t Type, template string) Helper {
	if t == TypeJSON {
		return newJSONHelper(template)
	}
	return newHTMLHelper(f.renderer, f.manifest, template)
}

type basicHelper struct {
	mu       sync.Mutex
	template string
	status   int
	viewData map[string]any
	rendered bool
}

func (h *basicHelper) init(template string) {
	h.template = template
	h.status = http.StatusOK
	h.viewData = make(map[string]any)
}

func (h *basicHelper) SetTemplate(name string) {
	h.mu.Lock()
	h.template = name
	h.mu.Unlock()
}

func (h *basicHelper) Template() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.template
}

func (h *basicHelper) SetStatus(code int) {
	h.mu.Lock()
	h.status = code
	h.mu.Unlock()
}

func (h *basicHelper) Get(key string) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewData[key]
}

func (h *basicHelper) Set(key string, value any) {
	h.mu.Lock()
	h.viewData[key] = value
	h.mu.Unlock()
}

func (h *basicHelper) Merge(values map[string]any) {
	h.mu.Lock()
	maps.Copy(h.viewData, values)
	h.mu.Unlock()
}

func (h *basicHelper) Rendered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rendered
}

func (h *basicHelper) markRendered() {
	h.mu.Lock()
	h.rendered = true
	h.mu.Unlock()
}

func (h *basicHelper) snapshot() (string, int, map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.template, h.status, maps.Clone(h.viewData)
}
