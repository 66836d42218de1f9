package route

import "net/http"

type headerTracker interface {
	HeadersSent() bool
}

type trackingWriter struct {
	http.ResponseWriter
	sent bool
}

func (tw *trackingWriter) WriteHeader(code int) {
	tw.sent = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	tw.sent = true
	return tw.ResponseWriter.Write(b)
}

func (tw *trackingWriter) HeadersSent() bool {
	return tw.sent
}

func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

// Track returns w wrapped so that HeadersSent can tell whether a status line
// or body has gone out. Writers that already report it are returned as is.
func Track(w http.ResponseWriter) http.ResponseWriter {
	if _, ok := w.(headerTracker); ok {
		return w
	}
	return &trackingWriter{ResponseWriter: w}
}

// HeadersSent reports whether any writer in the chain of w has written its
// header.
func HeadersSent(w http.ResponseWriter) bool {
	for w != nil {
		if t, ok := w.(headerTracker); ok && t.HeadersSent() {
			return true
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
	return false
}
