package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/back2front/back2front-go/route"
	"github.com/back2front/back2front-go/site"
)

// handleError renders the info page for err. h is the helper of the failed
// route, or nil when no route matched.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, h route.Helper, err error) {
	status := site.StatusOf(err)
	if status != http.StatusNotFound {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	if route.HeadersSent(w) || (h != nil && h.Rendered()) {
		s.logger.Warn("response already started, dropping error page", "path", r.URL.Path, "status", status)
		return
	}
	if h == nil {
		h = s.router.NewHelper(route.TypeHTML, "")
	}

	info := route.Info{Status: 2, HTTPStatus: status, Message: err.Error()}
	if !s.cfg.IsProduction() {
		info.Stack = errorStack(err)
	}
	h.SetStatus(status)
	h.Set("title", "Notice")
	if renderErr := h.RenderInfo(w, r, info); renderErr != nil {
		s.logger.Error("render info page", "path", r.URL.Path, "error", renderErr)
		writeError(w, status, err.Error())
	}
}

func (s *Server) handleAssetError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.handleError(w, r, nil, site.WithStatus(status, err))
}

// errorStack describes how err was produced: the goroutine stack for a
// recovered panic, otherwise the chain of wrapped errors.
func errorStack(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return string(pe.stack)
	}
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, e.Error())
	}
	return strings.Join(lines, "\n  caused by: ")
}
