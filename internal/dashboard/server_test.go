package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hongwen000/NSSM-GUI/internal/batch"
	"github.com/hongwen000/NSSM-GUI/internal/health"
	"github.com/hongwen000/NSSM-GUI/internal/manager"
	"github.com/hongwen000/NSSM-GUI/internal/monitor"
	"github.com/hongwen000/NSSM-GUI/internal/nssm"
	"github.com/hongwen000/NSSM-GUI/internal/svcquery"
	"github.com/hongwen000/NSSM-GUI/internal/templates"
	"github.com/hongwen000/NSSM-GUI/internal/workerpool"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

type fakeNSSM struct {
	mu   sync.Mutex
	fail map[string]error
}

func (f *fakeNSSM) err(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *fakeNSSM) Install(context.Context, models.ServiceConfig) error { return f.err("install") }
func (f *fakeNSSM) Edit(context.Context, models.ServiceConfig) error    { return f.err("edit") }
func (f *fakeNSSM) Remove(context.Context, string) error                { return f.err("remove") }
func (f *fakeNSSM) Start(context.Context, string) error                 { return f.err("start") }
func (f *fakeNSSM) Stop(context.Context, string) error                  { return f.err("stop") }
func (f *fakeNSSM) Restart(context.Context, string) error               { return f.err("restart") }
func (f *fakeNSSM) SetStartup(context.Context, string, bool) error      { return f.err("startup") }

func (f *fakeNSSM) Status(context.Context, string) (string, error) {
	return models.StateUnknown, f.err("status")
}

func (f *fakeNSSM) Dump(_ context.Context, name string) (string, error) {
	return "nssm.exe install " + name + ` C:\app.exe`, f.err("dump")
}

func (f *fakeNSSM) Config(_ context.Context, name string) (models.ServiceConfig, error) {
	return models.ServiceConfig{ServiceName: name, ApplicationPath: `C:\app.exe`}, f.err("config")
}

func (f *fakeNSSM) Logs(_ context.Context, name, stream string, _ int64) (string, error) {
	return stream + " of " + name, f.err("logs")
}

type testEnv struct {
	server  *Server
	nssm    *fakeNSSM
	manager *manager.Manager
	monitor *monitor.Monitor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pool := workerpool.New(2, 8)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })

	f := &fakeNSSM{fail: map[string]error{}}
	m := manager.New(manager.Options{
		Client: f,
		List: func() ([]models.ServiceInfo, error) {
			return []models.ServiceInfo{
				{Name: "web", DisplayName: "Web Server", State: models.StateRunning, IsNSSM: true},
				{Name: "worker", DisplayName: "Queue Worker", State: models.StateStopped, IsNSSM: true},
			}, nil
		},
		Pool: pool,
	})
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	resolver := monitor.PIDResolverFunc(func(name string) (uint32, error) {
		if name == "web" {
			return 42, nil
		}
		return 0, svcquery.ErrNotRunning
	})
	mon := monitor.New(resolver, samplerFunc(func(context.Context, uint32) (monitor.Sample, error) {
		return monitor.Sample{CPUPercent: 12.5, RSSBytes: 64 << 20}, nil
	}))
	mon.SetTracked(m.Names())

	hm := health.NewMonitor()
	hm.Update(health.ComponentNSSM, health.Healthy, "")

	s := New(Deps{
		Manager:   m,
		Batch:     batch.New(m, pool, nil),
		Monitor:   mon,
		Templates: templates.NewStore(t.TempDir()),
		Health:    hm,
		Host:      func() monitor.HostMetrics { return monitor.HostMetrics{CPUPercent: 5, Hostname: "test"} },
	})
	return &testEnv{server: s, nssm: f, manager: m, monitor: mon}
}

type samplerFunc func(ctx context.Context, pid uint32) (monitor.Sample, error)

func (f samplerFunc) Sample(ctx context.Context, pid uint32) (monitor.Sample, error) { return f(ctx, pid) }

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestListServicesFilter(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/services?filter=queue", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := decode[[]models.ServiceInfo](t, rr)
	if len(got) != 1 || got[0].Name != "worker" {
		t.Fatalf("services = %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/api/services?filter=zzz", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty filter result should be [], got %s", rr.Body.String())
	}
}

func TestServiceActionUpdatesList(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/services/web/stop", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if got := decode[models.ServiceInfo](t, rr); got.State != models.StateStopped {
		t.Fatalf("state = %q", got.State)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		fail   map[string]error
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown action", nil, http.MethodPost, "/api/services/web/explode", "", http.StatusNotFound},
		{"missing service", nil, http.MethodGet, "/api/services/nope", "", http.StatusNotFound},
		{"nssm failure", map[string]error{"start": &nssm.CommandError{Args: []string{"start", "web"}, ExitCode: 1, Stderr: "Can't open service!"}},
			http.MethodPost, "/api/services/web/start", "", http.StatusBadGateway},
		{"not elevated", map[string]error{"stop": &nssm.PrivilegeError{Operation: "stop", Service: "web"}},
			http.MethodPost, "/api/services/web/stop", "", http.StatusForbidden},
		{"bad body", nil, http.MethodPost, "/api/services", "{", http.StatusBadRequest},
		{"invalid config", nil, http.MethodPost, "/api/services", `{"serviceName":"bad name!"}`, http.StatusBadRequest},
		{"name mismatch", nil, http.MethodPut, "/api/services/web", `{"serviceName":"other","applicationPath":"C:\\a.exe"}`, http.StatusBadRequest},
		{"no log path", map[string]error{"logs": nssm.ErrNoLogPath}, http.MethodGet, "/api/services/web/logs?stream=stderr", "", http.StatusNotFound},
		{"bad stream", nil, http.MethodGet, "/api/services/web/logs?stream=both", "", http.StatusBadRequest},
		{"missing template", nil, http.MethodGet, "/api/templates/none", "", http.StatusNotFound},
		{"bad batch action", nil, http.MethodPost, "/api/batch", `{"action":"format","services":["web"]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			for op, err := range tt.fail {
				env.nssm.fail[op] = err
			}
			rr := env.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
			if got := decode[map[string]string](t, rr); got["error"] == "" {
				t.Fatal("error body missing")
			}
		})
	}
}

func TestCommandErrorTextReturned(t *testing.T) {
	env := newTestEnv(t)
	env.nssm.fail["restart"] = &nssm.CommandError{Args: []string{"restart", "web"}, ExitCode: 3, Stderr: "Unexpected status SERVICE_PAUSED"}

	rr := env.do(t, http.MethodPost, "/api/services/web/restart", "")
	if got := decode[map[string]string](t, rr)["error"]; !strings.Contains(got, "SERVICE_PAUSED") {
		t.Fatalf("error = %q", got)
	}
	if s, _ := env.manager.Get("web"); s.State != models.StateRunning {
		t.Fatalf("failed restart changed state to %q", s.State)
	}
}

func TestInstallTracksService(t *testing.T) {
	env := newTestEnv(t)
	body := `{"serviceName":"api","displayName":"API","applicationPath":"C:\\api.exe","password":"secret"}`

	rr := env.do(t, http.MethodPost, "/api/services", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if _, ok := env.manager.Get("api"); !ok {
		t.Fatal("installed service not in list")
	}
	found := false
	for _, name := range env.monitor.Tracked() {
		if name == "api" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tracked = %v", env.monitor.Tracked())
	}
}

func TestRemoveService(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodDelete, "/api/services/worker", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if _, ok := env.manager.Get("worker"); ok {
		t.Fatal("removed service still listed")
	}
}

func TestTemplateLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/templates", `{"name":"node app","config":{"serviceName":"","applicationPath":"C:\\node.exe","arguments":"server.js"}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("save status = %d body = %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/templates", "")
	if list := decode[[]models.Template](t, rr); len(list) != 1 || list[0].Name != "node app" {
		t.Fatalf("templates = %+v", list)
	}

	rr = env.do(t, http.MethodPost, "/api/templates/node%20app/instantiate", `{"serviceName":"site"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("instantiate status = %d body = %s", rr.Code, rr.Body.String())
	}
	cfg := decode[models.ServiceConfig](t, rr)
	if cfg.ServiceName != "site" || cfg.Arguments != "server.js" {
		t.Fatalf("config = %+v", cfg)
	}

	rr = env.do(t, http.MethodDelete, "/api/templates/node%20app", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
}

func TestBatchEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.nssm.fail["stop"] = &nssm.CommandError{Args: []string{"stop"}, ExitCode: 1}

	rr := env.do(t, http.MethodPost, "/api/batch", `{"action":"stop","select":"running","services":["worker"],"parallel":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	sum := decode[batch.Summary](t, rr)
	if sum.Total != 2 || sum.Failed != 2 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestStatsAndHealth(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.monitor.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	rr := env.do(t, http.MethodGet, "/api/stats/web", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rr.Code)
	}
	if st := decode[monitor.Stats](t, rr); st.Current.CPUPercent != 12.5 {
		t.Fatalf("stats = %+v", st)
	}

	rr = env.do(t, http.MethodGet, "/api/stats/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing stats status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"hostname":"test"`) {
		t.Fatalf("health = %d %s", rr.Code, rr.Body.String())
	}
}

func TestStatsStream(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.monitor.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(env.server)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stats/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshots []models.ServiceStatus
	if err := conn.ReadJSON(&snapshots); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("snapshots = %+v", snapshots)
	}
	byName := map[string]models.ServiceStatus{}
	for _, s := range snapshots {
		byName[s.Service] = s
	}
	if byName["web"].NoData || !byName["worker"].NoData {
		t.Fatalf("snapshots = %+v", snapshots)
	}
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "NSSM Services") {
		t.Fatalf("index = %d", rr.Code)
	}
}

func TestListenLimitsConnections(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	if !strings.HasPrefix(ln.Addr().String(), "127.0.0.1:") {
		t.Fatalf("addr = %s", ln.Addr())
	}
}

func TestMutationGuards(t *testing.T) {
	body := `{"serviceName":"api","applicationPath":"C:\\api.exe"}`
	tests := []struct {
		name        string
		method      string
		contentType string
		origin      string
		want        int
	}{
		{"text plain rejected", http.MethodPost, "text/plain", "", http.StatusUnsupportedMediaType},
		{"form rejected", http.MethodPost, "application/x-www-form-urlencoded", "", http.StatusUnsupportedMediaType},
		{"missing type rejected", http.MethodDelete, "", "", http.StatusUnsupportedMediaType},
		{"foreign origin rejected", http.MethodPost, "application/json", "https://evil.example", http.StatusForbidden},
		{"text plain from foreign origin", http.MethodPost, "text/plain", "https://evil.example", http.StatusUnsupportedMediaType},
		{"same host allowed", http.MethodPost, "application/json; charset=utf-8", "http://example.com", http.StatusCreated},
		{"loopback allowed", http.MethodPost, "application/json", "http://127.0.0.1:8080", http.StatusCreated},
		{"localhost allowed", http.MethodPost, "application/json", "http://localhost:8080", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			path := "/api/services"
			if tt.method == http.MethodDelete {
				path = "/api/services/web"
			}
			req := httptest.NewRequest(tt.method, path, strings.NewReader(body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			env.server.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
			if _, ok := env.manager.Get("api"); tt.want >= 400 && ok {
				t.Fatal("rejected request still installed the service")
			}
		})
	}
}

func TestReadsIgnoreOrigin(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}
