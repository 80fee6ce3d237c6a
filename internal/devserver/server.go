// Package devserver serves the build output during development, with live
// reload wired in.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/sitesmith/internal/livereload"
	"github.com/dshills/sitesmith/internal/logging"
)

// Config configures a Server.
type Config struct {
	// Dir is the directory served at "/".
	Dir string
	// Host defaults to "localhost".
	Host string
	// Port 0 picks a free port.
	Port int
}

// Server is a static file server over the output directory. HTML pages get
// the live-reload client injected; the hub's endpoints are mounted under
// /__sitesmith/.
type Server struct {
	config Config
	hub    *livereload.Hub
	log    *logging.Logger
	router chi.Router

	srv      *http.Server
	listener net.Listener
}

// New creates a server. hub may be nil to serve without live reload.
func New(config Config, hub *livereload.Hub, log *logging.Logger) *Server {
	if config.Host == "" {
		config.Host = "localhost"
	}
	if log == nil {
		log = logging.Nop()
	}
	s := &Server{config: config, hub: hub, log: log.WithComponent("server")}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	if s.hub != nil {
		r.Method(http.MethodGet, livereload.EventsPath, s.hub.Handler())
		r.Method(http.MethodGet, livereload.ScriptPath, s.hub.ScriptHandler())
	}
	r.Get("/*", s.handleStatic)
	r.Head("/*", s.handleStatic)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens and serves in the background. It returns once the listener
// is bound so URL reports the real port.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	// No write timeout: event streams stay open for the whole session.
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve: %v", err)
		}
	}()
	s.log.Info("serving %s at %s", s.config.Dir, s.URL())
	return nil
}

// URL returns the base URL, valid after Start.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Shutdown disconnects live-reload clients and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if s.hub != nil {
		s.hub.Close()
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	urlPath := path.Clean("/" + chi.URLParam(r, "*"))
	file := filepath.Join(s.config.Dir, filepath.FromSlash(urlPath))

	info, err := os.Stat(file)
	if err == nil && info.IsDir() {
		file = filepath.Join(file, "index.html")
		info, err = os.Stat(file)
	}
	if err != nil && path.Ext(urlPath) == "" {
		// Extensionless URLs map onto pages: /about -> about.html.
		file = filepath.Join(s.config.Dir, filepath.FromSlash(urlPath)+".html")
		info, err = os.Stat(file)
	}
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if s.hub == nil || !strings.EqualFold(filepath.Ext(file), ".html") {
		http.ServeFile(w, r, file)
		return
	}

	data, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, "reading page", http.StatusInternalServerError)
		return
	}
	data = livereload.Inject(data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

// requestLogger logs every request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.log.Enabled(logging.LevelDebug) {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("%s %s %d %dB %s", r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start).Round(time.Microsecond))
	})
}
