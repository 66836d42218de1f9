package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/back2front/back2front-go/assets"
	"github.com/back2front/back2front-go/config"
	"github.com/back2front/back2front-go/site"
)

// Options wires the server to the rest of the application.
type Options struct {
	Config *config.Config
	Router *site.Router
	// Assets compiles sources on request. It is only set in development.
	Assets *assets.Middleware
	// Development serves unbundled sources from the static directory.
	Development  bool
	Logger       *slog.Logger
	ServerHeader string
}

// Server ties HTTP handlers to the page routes.
type Server struct {
	cfg          *config.Config
	router       *site.Router
	assets       *assets.Middleware
	logger       *slog.Logger
	mux          *http.ServeMux
	staticRoot   string
	serverHeader string
}

// New constructs a server instance.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	srv := &Server{
		cfg:          opts.Config,
		router:       opts.Router,
		logger:       logger,
		mux:          http.NewServeMux(),
		serverHeader: strings.TrimSpace(opts.ServerHeader),
	}
	switch {
	case opts.Development:
		srv.staticRoot = opts.Config.StaticDir
		srv.assets = opts.Assets
	case opts.Config.IsStaticServer:
		srv.staticRoot = opts.Config.BuiltStaticDir
	}
	srv.routes()
	return srv
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.serve)
	if s.assets != nil {
		h = s.assets.Wrap(h, s.handleAssetError)
	}
	h = s.recoverPanics(h)
	h = s.logRequests(h)
	h = skipFavicon(h)
	return s.withServerHeader(h)
}

// Start launches the HTTP server and attaches graceful shutdown behaviour.
func (s *Server) Start(ctx context.Context) error {
	listener, err := s.listen(s.cfg.Listen)
	if err != nil {
		return err
	}
	s.logger.Info("listening", "addr", listener.Addr().String(), "env", s.cfg.Env, "production", s.cfg.IsProduction())

	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxShutdown)
		close(shutdownDone)
	}()

	var serveErr error
	if s.cfg.EnableTLS {
		serveErr = server.ServeTLS(listener, s.cfg.TLSCert, s.cfg.TLSKey)
	} else {
		serveErr = server.Serve(listener)
	}

	if errors.Is(serveErr, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return serveErr
}

func (s *Server) routes() {
	s.router.Register(s.mux, s.handleError)
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.handleError(w, r, nil, site.NotFound(r.URL.Path))
	})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.tryStatic(w, r) {
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) listen(address string) (net.Listener, error) {
	if after, ok := strings.CutPrefix(address, "unix:"); ok {
		_ = os.Remove(after)
		return net.Listen("unix", after)
	}
	return net.Listen("tcp", address)
}

func (s *Server) withServerHeader(next http.Handler) http.Handler {
	if s.serverHeader == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverHeader)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Info("http", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", time.Since(start))
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.handleError(w, r, nil, &panicError{value: v, stack: debug.Stack()})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// skipFavicon answers favicon requests with an empty page.
func skipFavicon(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/favicon.ico" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tryStatic(w http.ResponseWriter, r *http.Request) bool {
	if s.staticRoot == "" {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	clean := sanitizeRequestPath(r.URL.Path)
	if clean == "/" {
		return false
	}
	target := filepath.Join(s.staticRoot, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if !isWithin(s.staticRoot, target) {
		return false
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return false
	}
	maxAge := int(s.cfg.StaticMaxAge / time.Second)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
	http.ServeFile(w, r, target)
	return true
}

func isWithin(base, target string) bool {
	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	return true
}

func sanitizeRequestPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	clean := path.Clean(p)
	if clean == "." {
		return "/"
	}
	return clean
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
