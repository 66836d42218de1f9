package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/back2front/back2front-go/assets"
	"github.com/back2front/back2front-go/compiler"
	"github.com/back2front/back2front-go/config"
	"github.com/back2front/back2front-go/route"
	"github.com/back2front/back2front-go/site"
	"github.com/back2front/back2front-go/templatex"
)

type noSass struct{}

func (noSass) Preprocess(_ context.Context, src string, _ compiler.SassOptions) (string, error) {
	return src, nil
}

var siteFiles = map[string]string{
	"assets/layouts/root.xtpl": `<html><head><title>{{.title}}</title><!-- CSS Hook --></head>` +
		`<body>{{block "body" .}}{{end}}<!-- JS Hook --><!-- Modjs Hook --></body></html>`,
	"assets/pages/_info/_info.page.xtpl": `{{extend "layouts/root"}}{{define "body"}}` +
		`<p class="status-{{.info.status}}">{{.info.httpStatus}} {{.info.message}}</p>` +
		`{{with .info.stack}}<pre>{{.}}</pre>{{end}}{{end}}`,
	"assets/pages/example/tabs-ssr/tabs-ssr.page.xtpl": `{{extend "layouts/root"}}{{define "body"}}` +
		`{{css "./tabs-ssr.css"}}<ul>{{range .tabsNav}}<li>{{.}}</li>{{end}}</ul>{{end}}`,
	"assets/components/tabs/tabs.xtpl": `<div class="c-tabs"></div>`,
	"robots.txt":                        "User-agent: *",
}

type testServer struct {
	cfg     *config.Config
	handler http.Handler
	logs    *bytes.Buffer
}

func newTestServer(t *testing.T, production bool, extra ...site.Group) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	if production {
		cfg.Env = config.EnvProd
		require.NoError(t, cfg.Finalize())
	}
	cfg.StaticDir = filepath.Join(dir, "public")
	cfg.BuiltStaticDir = filepath.Join(dir, "~public")
	for name, content := range siteFiles {
		p := filepath.Join(cfg.StaticDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine, err := templatex.New(templatex.Options{
		Root:         cfg.AssetRoot(),
		AssetDirname: cfg.AssetDirname,
		Logger:       logger,
	})
	require.NoError(t, err)

	router, err := site.NewRouter(cfg.Env, route.NewFactory(engine, nil), append(site.Groups(), extra...))
	require.NoError(t, err)

	registry := compiler.Default(compiler.Options{AssetDirname: cfg.AssetDirname, TemplateExt: cfg.TemplateExt, Sass: noSass{}})
	srv := New(Options{
		Config:       cfg,
		Router:       router,
		Assets:       assets.New(cfg.StaticDir, registry, nil, logger),
		Development:  !production,
		Logger:       logger,
		ServerHeader: "Back2Front-Go/test",
	})
	return &testServer{cfg: cfg, handler: srv.Handler(), logs: logs}
}

func (ts *testServer) get(path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestPageRender(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.get("/example/tabs-ssr")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Back2Front</title>")
	assert.Contains(t, body, "<li>Tab A</li>")
	assert.Contains(t, body, `<link rel="stylesheet" href="/assets/pages/example/tabs-ssr/tabs-ssr.css" />`)
	assert.Equal(t, "Back2Front-Go/test", rec.Header().Get("Server"))
	assert.Contains(t, ts.logs.String(), "path=/example/tabs-ssr")
}

func TestUnknownPageRendersInfo(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.get("/nowhere", "Referer", "http://localhost/example/tabs-ssr")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<p class="status-2">404 the page you requested does not exist: /nowhere</p>`)
	assert.Contains(t, body, "<title>Notice</title>")
	assert.NotContains(t, ts.logs.String(), "request failed", "404s are not logged as errors")
}

func TestCallbackErrorShowsStackOutsideProduction(t *testing.T) {
	failing := site.Group{Name: "__", Pages: []site.Page{{
		Path:     "broken",
		Template: "_info/_info",
		Callbacks: []site.Callback{func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
			return errors.New("database unavailable")
		}},
	}}}

	dev := newTestServer(t, false, failing)
	rec := dev.get("/broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "500 database unavailable")
	assert.Contains(t, rec.Body.String(), "<pre>database unavailable</pre>")
	assert.Contains(t, dev.logs.String(), "request failed")

	prod := newTestServer(t, true, failing)
	rec = prod.get("/broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<pre>")
}

func TestJSONRouteError(t *testing.T) {
	api := site.Group{Name: "api", Pages: []site.Page{{
		Path: "items",
		Type: route.TypeJSON,
		Callbacks: []site.Callback{func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
			return site.WithStatus(http.StatusBadRequest, errors.New("bad page number"))
		}},
	}}}
	ts := newTestServer(t, true, api)
	rec := ts.get("/api/items")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad page number", body["message"])
	assert.Equal(t, float64(2), body["status"])
	assert.Nil(t, body["data"])
}

func TestPanicIsRecovered(t *testing.T) {
	group := site.Group{Name: "__", Pages: []site.Page{{
		Path: "panic",
		Callbacks: []site.Callback{func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
			panic("out of range")
		}},
	}}}
	ts := newTestServer(t, false, group)
	rec := ts.get("/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "panic: out of range")
	assert.Contains(t, rec.Body.String(), "goroutine")
}

func TestNoInfoPageAfterResponseStarted(t *testing.T) {
	group := site.Group{Name: "__", Pages: []site.Page{
		{
			Path: "partial",
			Callbacks: []site.Callback{func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write([]byte("streamed"))
				return errors.New("stream interrupted")
			}},
		},
		{
			Path: "late-panic",
			Callbacks: []site.Callback{func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
				_, _ = w.Write([]byte("streamed"))
				panic("after write")
			}},
		},
	}}
	ts := newTestServer(t, false, group)

	rec := ts.get("/partial")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "streamed", rec.Body.String())
	assert.Contains(t, ts.logs.String(), "stream interrupted")

	rec = ts.get("/late-panic")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "streamed", rec.Body.String())
	assert.Contains(t, ts.logs.String(), "panic: after write")
}

func TestFavicon(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.get("/favicon.ico")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
	assert.NotContains(t, ts.logs.String(), "favicon")
}

func TestStaticFilesInDevelopment(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.get("/robots.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User-agent: *", rec.Body.String())
	assert.Equal(t, "public, max-age=0", rec.Header().Get("Cache-Control"))

	assert.False(t, isWithin(ts.cfg.StaticDir, filepath.Join(ts.cfg.StaticDir, "..", "secret.txt")))
}

func TestCompiledAssetInDevelopment(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.get("/assets/components/tabs/tabs.xtpl.js")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), `define("components/tabs/tabs.xtpl.js"`))
	assert.Equal(t, compiler.MediaJS, rec.Header().Get("Content-Type"))
	assert.FileExists(t, filepath.Join(ts.cfg.StaticDir, "~assets", "components", "tabs", "tabs.xtpl.js"))

	rec = ts.get("/assets/components/none/none.xtpl.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not exist")
}

func TestProductionServesNoStaticFiles(t *testing.T) {
	ts := newTestServer(t, true)
	rec := ts.get("/robots.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.get("/assets/components/tabs/tabs.xtpl.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoDirExists(t, filepath.Join(ts.cfg.StaticDir, "~assets"))
}

func TestInfoPageFallback(t *testing.T) {
	ts := newTestServer(t, false)
	require.NoError(t, os.Remove(filepath.Join(ts.cfg.StaticDir, "assets", "pages", "_info", "_info.page.xtpl")))

	rec := ts.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "the page you requested does not exist: /nowhere", rec.Body.String())
	assert.Contains(t, ts.logs.String(), "render info page")
}

func TestErrorStack(t *testing.T) {
	err := site.WithStatus(http.StatusBadGateway, errors.New("upstream"))
	assert.Equal(t, "upstream\n  caused by: upstream", errorStack(err))
}
