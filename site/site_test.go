package site

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/back2front/back2front-go/route"
)

type pageRenderer struct {
	data map[string]any
}

func (p *pageRenderer) Render(w io.Writer, name string, data any) error {
	p.data = data.(map[string]any)
	_, err := fmt.Fprintf(w, "%s|%v", name, p.data["title"])
	return err
}

func newRouter(t *testing.T, groups ...Group) (*Router, *pageRenderer) {
	t.Helper()
	pr := &pageRenderer{}
	rt, err := NewRouter("local", route.NewFactory(pr, nil), groups)
	require.NoError(t, err)
	rt.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return rt, pr
}

func TestTemplateDerivation(t *testing.T) {
	assert.Equal(t, "pages/example/tabs-ssr/tabs-ssr.page.xtpl", templateFor("/example", "tabs-ssr", ""))
	assert.Equal(t, "pages/about/about.page.xtpl", templateFor("/", "about", ""))
	assert.Equal(t, "pages/a/b__c/b__c.page.xtpl", templateFor("/a", "b/c", ""))
	assert.Equal(t, "pages/custom/x.page.xtpl", templateFor("/a", "b", "custom/x"))
}

func TestPagePath(t *testing.T) {
	p, err := pagePath(mountPath("__"), "about")
	require.NoError(t, err)
	assert.Equal(t, "/about", p)

	p, err = pagePath(mountPath("example"), "/tabs-csr")
	require.NoError(t, err)
	assert.Equal(t, "/example/tabs-csr", p)

	_, err = pagePath("/", "../etc")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestExampleRoutes(t *testing.T) {
	rt, _ := newRouter(t, Groups()...)
	routes := rt.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "GET /example/tabs-ssr", routes[0].Pattern())
	assert.Equal(t, "pages/example/tabs-ssr-and-csr/tabs-ssr-and-csr.page.xtpl", routes[1].Template)
	assert.Equal(t, route.TypeHTML, routes[2].Type)
}

func TestDuplicateRoute(t *testing.T) {
	_, err := NewRouter("local", route.NewFactory(&pageRenderer{}, nil), []Group{{
		Name:  "__",
		Pages: []Page{{Path: "a"}, {Path: "/a"}},
	}})
	assert.ErrorContains(t, err, "duplicate route GET /a")
}

func TestHandlerRendersPage(t *testing.T) {
	rt, pr := newRouter(t, Example())
	mux := http.NewServeMux()
	rt.Register(mux, func(w http.ResponseWriter, r *http.Request, h route.Helper, err error) {
		t.Fatalf("unexpected error: %v", err)
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/example/tabs-ssr", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pages/example/tabs-ssr/tabs-ssr.page.xtpl|Back2Front", rec.Body.String())
	assert.Equal(t, "local", pr.data["ENV"])
	assert.Equal(t, 2024, pr.data["currentYear"])
	assert.Equal(t, []string{"Tab A", "Tab B", "Tab C", "Tab D"}, pr.data["tabsNav"])
}

func TestCallbackRenderingStopsChain(t *testing.T) {
	called := false
	group := Group{Name: "__", Pages: []Page{{
		Path: "api",
		Type: route.TypeJSON,
		Callbacks: []Callback{
			func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
				h.Set("ok", true)
				return h.Render(w, r)
			},
			func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
				called = true
				return nil
			},
		},
	}}}
	rt, _ := newRouter(t, group)
	mux := http.NewServeMux()
	rt.Register(mux, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))
	assert.False(t, called)
	assert.JSONEq(t, `{"status":1,"data":{"ENV":"local","currentYear":2024,"ok":true}}`, rec.Body.String())
}

func TestRedirectingCallbackEndsResponse(t *testing.T) {
	called := false
	group := Group{Name: "__", Pages: []Page{{
		Path: "go",
		Callbacks: []Callback{
			func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
				http.Redirect(w, r, "/elsewhere", http.StatusFound)
				return nil
			},
			func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
				called = true
				return nil
			},
		},
	}}}
	rt, pr := newRouter(t, group)
	mux := http.NewServeMux()
	rt.Register(mux, func(w http.ResponseWriter, r *http.Request, h route.Helper, err error) {
		t.Fatalf("unexpected error: %v", err)
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/go", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/elsewhere", rec.Header().Get("Location"))
	assert.False(t, called)
	assert.Nil(t, pr.data, "page template must not render")
	assert.NotContains(t, rec.Body.String(), "go.page.xtpl")
}

func TestCallbackErrorReachesHandler(t *testing.T) {
	boom := WithStatus(http.StatusForbidden, errors.New("no access"))
	group := Group{Name: "__", Pages: []Page{{
		Path: "secret",
		Callbacks: []Callback{func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
			return boom
		}},
	}}}
	rt, _ := newRouter(t, group)
	mux := http.NewServeMux()

	var got error
	rt.Register(mux, func(w http.ResponseWriter, r *http.Request, h route.Helper, err error) {
		got = err
		w.WriteHeader(StatusOf(err))
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/secret", nil))

	assert.Same(t, boom, got)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(NotFound("/x")))
	assert.Equal(t, http.StatusNotFound, StatusOf(fmt.Errorf("wrapped: %w", ErrNotFound)))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
	assert.ErrorIs(t, NotFound("/x"), ErrNotFound)
	assert.Nil(t, WithStatus(http.StatusTeapot, nil))
}
