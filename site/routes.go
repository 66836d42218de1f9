// Package site declares the page routes and runs their callbacks.
package site

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/back2front/back2front-go/route"
)

// Callback prepares a response. Callbacks may render the response
// themselves, which ends the chain.
type Callback func(w http.ResponseWriter, r *http.Request, h route.Helper) error

// Page is one route of a group.
type Page struct {
	// Path is the sub path below the group mount.
	Path string
	// Method defaults to GET.
	Method string
	// Template overrides the derived page template, relative to pages/
	// and without the ".page.xtpl" suffix.
	Template string
	// Type defaults to HTML.
	Type      route.Type
	Callbacks []Callback
}

// Group is a set of pages mounted below one path. The name "__" mounts the
// group at "/".
type Group struct {
	Name  string
	Pages []Page
}

// Route is a resolved page ready to be registered.
type Route struct {
	Method    string
	Path      string
	Template  string
	Type      route.Type
	Callbacks []Callback
}

// Pattern returns the ServeMux pattern of the route.
func (rt Route) Pattern() string {
	return rt.Method + " " + rt.Path
}

// ErrorHandler finalizes a failed request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, h route.Helper, err error)

// Router turns route groups into HTTP handlers.
type Router struct {
	env     string
	factory *route.Factory
	routes  []Route
	now     func() time.Time
}

// NewRouter resolves groups. env is exposed to every page as ENV.
func NewRouter(env string, factory *route.Factory, groups []Group) (*Router, error) {
	rt := &Router{env: env, factory: factory, now: time.Now}
	seen := make(map[string]struct{})
	for _, g := range groups {
		mount := mountPath(g.Name)
		for _, p := range g.Pages {
			urlPath, err := pagePath(mount, p.Path)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", g.Name, err)
			}
			method := strings.ToUpper(strings.TrimSpace(p.Method))
			if method == "" {
				method = http.MethodGet
			}
			resType := p.Type
			if resType == "" {
				resType = route.TypeHTML
			}
			r := Route{
				Method:    method,
				Path:      urlPath,
				Type:      resType,
				Callbacks: p.Callbacks,
			}
			if resType == route.TypeHTML {
				r.Template = templateFor(mount, p.Path, p.Template)
			}
			if _, dup := seen[r.Pattern()]; dup {
				return nil, fmt.Errorf("group %q: duplicate route %s", g.Name, r.Pattern())
			}
			seen[r.Pattern()] = struct{}{}
			rt.routes = append(rt.routes, r)
		}
	}
	return rt, nil
}

// Routes returns the resolved routes in declaration order.
func (rt *Router) Routes() []Route {
	return append([]Route(nil), rt.routes...)
}

// Register adds a handler per route to mux.
func (rt *Router) Register(mux *http.ServeMux, onError ErrorHandler) {
	for _, r := range rt.routes {
		mux.Handle(r.Pattern(), rt.handler(r, onError))
	}
}

// NewHelper returns a helper seeded with the values every page receives.
func (rt *Router) NewHelper(t route.Type, template string) route.Helper {
	h := rt.factory.New(t, template)
	h.Merge(map[string]any{
		"ENV":         rt.env,
		"currentYear": rt.now().Year(),
	})
	return h
}

func (rt *Router) handler(r Route, onError ErrorHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w = route.Track(w)
		h := rt.NewHelper(r.Type, r.Template)
		for _, cb := range r.Callbacks {
			if h.Rendered() || route.HeadersSent(w) {
				return
			}
			if err := cb(w, req, h); err != nil {
				onError(w, req, h, err)
				return
			}
		}
		// A callback that redirected or wrote the body itself owns the
		// response.
		if h.Rendered() || route.HeadersSent(w) {
			return
		}
		if err := h.Render(w, req); err != nil {
			onError(w, req, h, err)
		}
	})
}
