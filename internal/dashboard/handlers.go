package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/backup"
	"github.com/hongwen000/NSSM-GUI/internal/batch"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/manager"
	"github.com/hongwen000/NSSM-GUI/internal/nssm"
	"github.com/hongwen000/NSSM-GUI/internal/privilege"
	"github.com/hongwen000/NSSM-GUI/internal/svcquery"
	"github.com/hongwen000/NSSM-GUI/internal/templates"
	"github.com/hongwen000/NSSM-GUI/internal/workerpool"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

// requestError carries an explicit HTTP status.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{status: http.StatusBadRequest, err: err} }

func notFound(format string, args ...any) error {
	return &requestError{status: http.StatusNotFound, err: fmt.Errorf(format, args...)}
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	var reqErr *requestError
	var privErr *nssm.PrivilegeError
	var cmdErr *nssm.CommandError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.As(err, &privErr), errors.Is(err, privilege.ErrNotElevated):
		return http.StatusForbidden
	case errors.As(err, &cmdErr):
		return http.StatusBadGateway
	case errors.Is(err, templates.ErrNotFound), errors.Is(err, svcquery.ErrNotFound),
		errors.Is(err, backup.ErrNoBackups), errors.Is(err, nssm.ErrNoLogPath):
		return http.StatusNotFound
	case errors.Is(err, templates.ErrInvalidName), errors.Is(err, manager.ErrUnknownAction),
		errors.Is(err, batch.ErrNoServices):
		return http.StatusBadRequest
	case errors.Is(err, templates.ErrExists):
		return http.StatusConflict
	case errors.Is(err, workerpool.ErrQueueFull), errors.Is(err, workerpool.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug("response encode failed", logging.KeyError, err.Error())
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Warn("request failed", "status", status, logging.KeyError, err.Error())
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// dispatch runs fn on the worker pool and waits for it.
func (s *Server) dispatch(r *http.Request, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if err := s.deps.Manager.Submit(fn, func(err error) { done <- err }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-r.Context().Done():
		return r.Context().Err()
	}
}

func (s *Server) trackAll() {
	if s.deps.Monitor != nil {
		s.deps.Monitor.SetTracked(s.deps.Manager.Names())
	}
}

// serviceRequest is a ServiceConfig plus the account password, which the
// config itself never serializes.
type serviceRequest struct {
	models.ServiceConfig
	Password string `json:"password,omitempty"`
}

func (req serviceRequest) config() models.ServiceConfig {
	cfg := req.ServiceConfig
	cfg.Password = req.Password
	return cfg
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	services := batch.Filter(s.deps.Manager.Services(), r.URL.Query().Get("filter"))
	if services == nil {
		services = []models.ServiceInfo{}
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) refreshServices(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.trackAll()
	writeJSON(w, http.StatusOK, s.deps.Manager.Services())
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, ok := s.deps.Manager.Get(name)
	if !ok {
		writeError(w, notFound("service %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) installService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg := req.config()
	if err := cfg.Validate(); err != nil {
		writeError(w, badRequest(err))
		return
	}
	if err := s.dispatch(r, func(ctx context.Context) error { return s.deps.Manager.Install(ctx, cfg) }); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Monitor != nil {
		s.deps.Monitor.Track(cfg.ServiceName)
	}
	info, _ := s.deps.Manager.Get(cfg.ServiceName)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) editService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req serviceRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg := req.config()
	if cfg.ServiceName == "" {
		cfg.ServiceName = name
	}
	if cfg.ServiceName != name {
		writeError(w, badRequest(fmt.Errorf("body names service %q, path names %q", cfg.ServiceName, name)))
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, badRequest(err))
		return
	}
	if err := s.dispatch(r, func(ctx context.Context) error { return s.deps.Manager.Edit(ctx, cfg) }); err != nil {
		writeError(w, err)
		return
	}
	info, _ := s.deps.Manager.Get(name)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) removeService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := models.ValidateServiceName(name); err != nil {
		writeError(w, badRequest(err))
		return
	}
	if err := s.dispatch(r, func(ctx context.Context) error { return s.deps.Manager.Remove(ctx, name) }); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Monitor != nil {
		s.deps.Monitor.Untrack(name)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) serviceAction(w http.ResponseWriter, r *http.Request) {
	name, action := r.PathValue("name"), r.PathValue("action")
	switch action {
	case manager.ActionStart, manager.ActionStop, manager.ActionRestart, manager.ActionEnable, manager.ActionDisable:
	default:
		writeError(w, notFound("unknown action %q", action))
		return
	}
	if err := models.ValidateServiceName(name); err != nil {
		writeError(w, badRequest(err))
		return
	}
	if err := s.dispatch(r, func(ctx context.Context) error { return s.deps.Manager.Apply(ctx, action, name) }); err != nil {
		writeError(w, err)
		return
	}
	info, _ := s.deps.Manager.Get(name)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) serviceConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Manager.Config(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) serviceLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stream := q.Get("stream")
	if stream == "" {
		stream = nssm.StreamStdout
	}
	if stream != nssm.StreamStdout && stream != nssm.StreamStderr {
		writeError(w, badRequest(fmt.Errorf("stream must be %s or %s", nssm.StreamStdout, nssm.StreamStderr)))
		return
	}
	var maxBytes int64
	if v := q.Get("bytes"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, badRequest(fmt.Errorf("invalid bytes %q", v)))
			return
		}
		maxBytes = n
	}
	text, err := s.deps.Manager.Logs(r.Context(), r.PathValue("name"), stream, maxBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stream": stream, "content": text})
}

type batchRequest struct {
	Action   string   `json:"action"`
	Services []string `json:"services"`
	// Select adds every service currently "running" or "stopped".
	Select   string `json:"select,omitempty"`
	Filter   string `json:"filter,omitempty"`
	Parallel bool   `json:"parallel"`
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	names := req.Services
	if req.Select != "" {
		if req.Select != models.StateRunning && req.Select != models.StateStopped {
			writeError(w, badRequest(fmt.Errorf("select must be %s or %s", models.StateRunning, models.StateStopped)))
			return
		}
		pool := batch.Filter(s.deps.Manager.Services(), req.Filter)
		names = append(names, batch.SelectState(pool, req.Select)...)
	}
	sum, err := s.deps.Batch.Run(r.Context(), req.Action, names, req.Parallel)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Action == manager.ActionDelete {
		s.trackAll()
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) allStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": []models.ServiceStatus{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"interval":  s.deps.Monitor.Interval().String(),
		"snapshots": s.deps.Monitor.Latest(),
		"stats":     s.deps.Monitor.AllStats(),
	})
}

func (s *Server) serviceStats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.deps.Monitor == nil {
		writeError(w, notFound("no statistics for %q", name))
		return
	}
	st, ok := s.deps.Monitor.Stats(name)
	if !ok {
		writeError(w, notFound("no statistics for %q", name))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Templates.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []models.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) saveTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.Template
	if err := decodeBody(r, w, &t); err != nil {
		writeError(w, err)
		return
	}
	saved, err := s.deps.Templates.Save(t)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deps.Audit.Log(audit.EventTemplateChange, audit.NewOpID(), "", map[string]any{"action": "save", "template": saved.Name})
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Templates.Load(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.deps.Templates.Delete(name); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Audit.Log(audit.EventTemplateChange, audit.NewOpID(), "", map[string]any{"action": "delete", "template": name})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type instantiateRequest struct {
	ServiceName string `json:"serviceName"`
	Install     bool   `json:"install"`
	Password    string `json:"password,omitempty"`
}

func (s *Server) instantiateTemplate(w http.ResponseWriter, r *http.Request) {
	var req instantiateRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := models.ValidateServiceName(req.ServiceName); err != nil {
		writeError(w, badRequest(err))
		return
	}
	cfg, err := s.deps.Templates.Instantiate(r.PathValue("name"), req.ServiceName)
	if err != nil {
		writeError(w, err)
		return
	}
	if !req.Install {
		writeJSON(w, http.StatusOK, cfg)
		return
	}

	cfg.Password = req.Password
	if err := cfg.Validate(); err != nil {
		writeError(w, badRequest(err))
		return
	}
	if err := s.dispatch(r, func(ctx context.Context) error { return s.deps.Manager.Install(ctx, cfg) }); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Monitor != nil {
		s.deps.Monitor.Track(cfg.ServiceName)
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) healthReport(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"host": s.deps.Host()}
	if s.deps.Health != nil {
		resp["health"] = s.deps.Health.Summary()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recentLogs(w http.ResponseWriter, r *http.Request) {
	n := 200
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, badRequest(fmt.Errorf("invalid n %q", v)))
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, logging.Recent(n))
}
