// Package dashboard serves the local web UI and its JSON API.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/batch"
	"github.com/hongwen000/NSSM-GUI/internal/health"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/manager"
	"github.com/hongwen000/NSSM-GUI/internal/monitor"
	"github.com/hongwen000/NSSM-GUI/internal/templates"
)

var log = logging.L("dashboard")

// PipePrefix selects a Windows named pipe listener, e.g. "pipe:nssm-gui".
const PipePrefix = "pipe:"

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxBodyBytes      = 1 << 20
)

//go:embed static
var staticFiles embed.FS

// Deps are the components the dashboard exposes.
type Deps struct {
	Manager   *manager.Manager
	Batch     *batch.Runner
	Monitor   *monitor.Monitor
	Templates *templates.Store
	Health    *health.Monitor
	Audit     *audit.Logger
	// Host reads machine-wide metrics for /api/health. Defaults to
	// monitor.CollectHost.
	Host func() monitor.HostMetrics
}

// Server is the dashboard HTTP server.
type Server struct {
	deps Deps
	mux  *http.ServeMux

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New builds the routes.
func New(deps Deps) *Server {
	if deps.Host == nil {
		deps.Host = monitor.CollectHost
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/services", s.listServices)
	s.mux.HandleFunc("POST /api/services", s.installService)
	s.mux.HandleFunc("POST /api/services/refresh", s.refreshServices)
	s.mux.HandleFunc("GET /api/services/{name}", s.getService)
	s.mux.HandleFunc("PUT /api/services/{name}", s.editService)
	s.mux.HandleFunc("DELETE /api/services/{name}", s.removeService)
	s.mux.HandleFunc("GET /api/services/{name}/config", s.serviceConfig)
	s.mux.HandleFunc("GET /api/services/{name}/logs", s.serviceLogs)
	s.mux.HandleFunc("POST /api/services/{name}/{action}", s.serviceAction)

	s.mux.HandleFunc("POST /api/batch", s.runBatch)

	s.mux.HandleFunc("GET /api/stats", s.allStats)
	s.mux.HandleFunc("GET /api/stats/stream", s.streamStats)
	s.mux.HandleFunc("GET /api/stats/{name}", s.serviceStats)

	s.mux.HandleFunc("GET /api/templates", s.listTemplates)
	s.mux.HandleFunc("POST /api/templates", s.saveTemplate)
	s.mux.HandleFunc("GET /api/templates/{name}", s.getTemplate)
	s.mux.HandleFunc("DELETE /api/templates/{name}", s.deleteTemplate)
	s.mux.HandleFunc("POST /api/templates/{name}/instantiate", s.instantiateTemplate)

	s.mux.HandleFunc("GET /api/health", s.healthReport)
	s.mux.HandleFunc("GET /api/logs", s.recentLogs)

	if sub, err := fs.Sub(staticFiles, "static"); err == nil {
		s.mux.Handle("GET /", http.FileServerFS(sub))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !safeMethod(r.Method) {
		if status, msg := checkMutation(r); status != 0 {
			log.Warn("mutation rejected", "method", r.Method, "path", r.URL.Path, "origin", r.Header.Get("Origin"), "status", status)
			writeJSON(w, status, map[string]string{"error": msg})
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// checkMutation returns a non-zero status for a state-changing request that
// is not JSON or whose Origin is neither this host nor loopback.
func checkMutation(r *http.Request) (int, string) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return http.StatusUnsupportedMediaType, "content type must be application/json"
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return 0, ""
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return http.StatusForbidden, "origin not allowed"
	}
	if strings.EqualFold(u.Host, r.Host) || isLoopback(u.Hostname()) {
		return 0, ""
	}
	return http.StatusForbidden, "origin not allowed"
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Listen opens addr. Addresses starting with PipePrefix listen on a named
// pipe. maxConns > 0 caps concurrent connections.
func Listen(addr string, maxConns int) (net.Listener, error) {
	var (
		ln  net.Listener
		err error
	)
	if name, ok := strings.CutPrefix(addr, PipePrefix); ok {
		ln, err = listenPipe(name)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.srv, s.ln = srv, ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info("dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("dashboard shutdown error", logging.KeyError, err.Error())
	}
	log.Info("dashboard stopped")
	return nil
}

// Addr reports the listen address while serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}
