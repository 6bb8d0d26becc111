// Package manager holds the in-memory service list and applies the result
// of every NSSM operation to it once the operation has succeeded.
package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/backup"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/workerpool"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var log = logging.L("manager")

// Actions accepted by Apply.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
	ActionEnable  = "enable"
	ActionDisable = "disable"
	ActionDelete  = "delete"
)

// Actions lists every action Apply accepts.
var Actions = []string{ActionStart, ActionStop, ActionRestart, ActionEnable, ActionDisable, ActionDelete}

// ErrUnknownAction is returned by Apply for an unsupported action.
var ErrUnknownAction = errors.New("unknown action")

// NSSM is the subset of the NSSM client the manager drives.
type NSSM interface {
	Install(ctx context.Context, cfg models.ServiceConfig) error
	Edit(ctx context.Context, cfg models.ServiceConfig) error
	Remove(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	SetStartup(ctx context.Context, name string, enabled bool) error
	Status(ctx context.Context, name string) (string, error)
	Dump(ctx context.Context, name string) (string, error)
	Config(ctx context.Context, name string) (models.ServiceConfig, error)
	Logs(ctx context.Context, name, stream string, maxBytes int64) (string, error)
}

// Lister enumerates NSSM-managed services.
type Lister func() ([]models.ServiceInfo, error)

// Options wires a Manager.
type Options struct {
	Client NSSM
	List   Lister
	Audit  *audit.Logger
	// Backups is nil when config backups are disabled.
	Backups    *backup.Store
	BackupKeep int
	Pool       *workerpool.Pool
	// OnAccess is told about every service an operation touches.
	OnAccess func(name string)
}

// Manager owns the service list.
type Manager struct {
	opts Options

	mu          sync.RWMutex
	services    map[string]models.ServiceInfo
	refreshedAt time.Time
}

// New returns a manager with an empty list.
func New(opts Options) *Manager {
	return &Manager{opts: opts, services: make(map[string]models.ServiceInfo)}
}

// Refresh replaces the list with the current NSSM services. On failure the
// list is left unchanged.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.opts.List == nil {
		return errors.New("no service lister configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	list, err := m.opts.List()
	if err != nil {
		return fmt.Errorf("refresh services: %w", err)
	}

	next := make(map[string]models.ServiceInfo, len(list))
	for _, s := range list {
		next[s.Name] = s
	}
	m.mu.Lock()
	m.services = next
	m.refreshedAt = time.Now()
	m.mu.Unlock()
	log.Debug("service list refreshed", "count", len(next))
	return nil
}

// RefreshedAt returns the time of the last successful Refresh.
func (m *Manager) RefreshedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshedAt
}

// Services returns the list sorted by name.
func (m *Manager) Services() []models.ServiceInfo {
	m.mu.RLock()
	out := make([]models.ServiceInfo, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.ServiceInfo) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

// Names returns the sorted service names.
func (m *Manager) Names() []string {
	list := m.Services()
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}
	return names
}

// Get returns one service from the list.
func (m *Manager) Get(name string) (models.ServiceInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[name]
	return s, ok
}

func (m *Manager) update(name string, fn func(*models.ServiceInfo)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[name]
	if !ok {
		s = models.ServiceInfo{Name: name, State: models.StateUnknown, IsNSSM: true}
	}
	fn(&s)
	m.services[name] = s
}

func (m *Manager) touch(name string) {
	if m.opts.OnAccess != nil && name != "" {
		m.opts.OnAccess(name)
	}
}

// record writes the audit entry for one finished operation.
func (m *Manager) record(event, opID, service string, start time.Time, err error, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details[logging.KeyDurationMs] = time.Since(start).Milliseconds()
	if err != nil {
		details["result"] = "error"
		details[logging.KeyError] = err.Error()
	} else {
		details["result"] = "ok"
	}
	m.opts.Audit.Log(event, opID, service, details)
}

// backupBefore snapshots the current NSSM config of name. Failures are
// logged; they never block the operation.
func (m *Manager) backupBefore(ctx context.Context, name, reason string) {
	if m.opts.Backups == nil {
		return
	}
	dump, err := m.opts.Client.Dump(ctx, name)
	if err != nil {
		log.Warn("backup skipped, dump failed", logging.KeyService, name, logging.KeyError, err.Error())
		return
	}
	cfg, err := m.opts.Client.Config(ctx, name)
	if err != nil {
		log.Warn("backup skipped, config unreadable", logging.KeyService, name, logging.KeyError, err.Error())
		return
	}
	if _, err := m.opts.Backups.Save(cfg, dump, reason); err != nil {
		log.Warn("backup failed", logging.KeyService, name, logging.KeyError, err.Error())
		return
	}
	if m.opts.BackupKeep > 0 {
		if _, err := m.opts.Backups.Prune(name, m.opts.BackupKeep); err != nil {
			log.Warn("backup prune failed", logging.KeyService, name, logging.KeyError, err.Error())
		}
	}
}

// Install installs cfg and adds it to the list. A service that was created
// but not fully configured is listed with an unknown state and the error is
// still returned.
func (m *Manager) Install(ctx context.Context, cfg models.ServiceConfig) error {
	opID, start := audit.OpIDFrom(ctx), time.Now()
	err := m.opts.Client.Install(ctx, cfg)
	m.record(audit.EventServiceInstall, opID, cfg.ServiceName, start, err, map[string]any{"application": cfg.ApplicationPath})
	if errors.Is(err, models.ErrIncompleteInstall) {
		log.Warn("service left partially configured", logging.KeyService, cfg.ServiceName, logging.KeyError, err.Error())
		m.update(cfg.ServiceName, func(s *models.ServiceInfo) {
			s.DisplayName = cfg.DisplayName
			s.State = models.StateUnknown
			s.IsNSSM = true
		})
		m.refreshState(ctx, cfg.ServiceName)
		return err
	}
	if err != nil {
		return err
	}
	m.touch(cfg.ServiceName)

	m.update(cfg.ServiceName, func(s *models.ServiceInfo) {
		s.DisplayName = cfg.DisplayName
		s.StartType = cfg.Start
		s.State = models.StateStopped
		s.IsNSSM = true
	})
	m.refreshState(ctx, cfg.ServiceName)
	return nil
}

// Edit applies cfg to an existing service.
func (m *Manager) Edit(ctx context.Context, cfg models.ServiceConfig) error {
	opID, start := audit.OpIDFrom(ctx), time.Now()
	m.backupBefore(ctx, cfg.ServiceName, "edit")
	err := m.opts.Client.Edit(ctx, cfg)
	m.record(audit.EventServiceEdit, opID, cfg.ServiceName, start, err, nil)
	if err != nil {
		return err
	}
	m.touch(cfg.ServiceName)

	m.update(cfg.ServiceName, func(s *models.ServiceInfo) {
		s.DisplayName = cfg.DisplayName
		if cfg.Start != "" {
			s.StartType = cfg.Start
		}
	})
	return nil
}

// Remove deletes the service and drops it from the list.
func (m *Manager) Remove(ctx context.Context, name string) error {
	opID, start := audit.OpIDFrom(ctx), time.Now()
	m.backupBefore(ctx, name, "remove")
	err := m.opts.Client.Remove(ctx, name)
	m.record(audit.EventServiceRemove, opID, name, start, err, nil)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.services, name)
	m.mu.Unlock()
	return nil
}

func (m *Manager) control(ctx context.Context, action, name, state string, fn func(context.Context, string) error) error {
	opID, start := audit.OpIDFrom(ctx), time.Now()
	err := fn(ctx, name)
	m.record(audit.EventServiceControl, opID, name, start, err, map[string]any{"action": action})
	if err != nil {
		return err
	}
	m.touch(name)
	m.update(name, func(s *models.ServiceInfo) { s.State = state })
	m.refreshState(ctx, name)
	return nil
}

// refreshState asks NSSM for the post-operation state. A failed query keeps
// the state the operation implied.
func (m *Manager) refreshState(ctx context.Context, name string) {
	state, err := m.opts.Client.Status(ctx, name)
	if err != nil || state == models.StateUnknown {
		return
	}
	m.update(name, func(s *models.ServiceInfo) { s.State = state })
}

func (m *Manager) Start(ctx context.Context, name string) error {
	return m.control(ctx, ActionStart, name, models.StateRunning, m.opts.Client.Start)
}

func (m *Manager) Stop(ctx context.Context, name string) error {
	return m.control(ctx, ActionStop, name, models.StateStopped, m.opts.Client.Stop)
}

func (m *Manager) Restart(ctx context.Context, name string) error {
	return m.control(ctx, ActionRestart, name, models.StateRunning, m.opts.Client.Restart)
}

// SetStartup enables or disables automatic start.
func (m *Manager) SetStartup(ctx context.Context, name string, enabled bool) error {
	opID, start := audit.OpIDFrom(ctx), time.Now()
	err := m.opts.Client.SetStartup(ctx, name, enabled)
	m.record(audit.EventServiceStartup, opID, name, start, err, map[string]any{"enabled": enabled})
	if err != nil {
		return err
	}
	m.touch(name)
	m.update(name, func(s *models.ServiceInfo) {
		if enabled {
			s.StartType = models.StartAuto
		} else {
			s.StartType = models.StartDisabled
		}
	})
	return nil
}

// Apply runs one of the batch actions against name.
func (m *Manager) Apply(ctx context.Context, action, name string) error {
	switch action {
	case ActionStart:
		return m.Start(ctx, name)
	case ActionStop:
		return m.Stop(ctx, name)
	case ActionRestart:
		return m.Restart(ctx, name)
	case ActionEnable:
		return m.SetStartup(ctx, name, true)
	case ActionDisable:
		return m.SetStartup(ctx, name, false)
	case ActionDelete:
		return m.Remove(ctx, name)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Config reads the service's NSSM configuration.
func (m *Manager) Config(ctx context.Context, name string) (models.ServiceConfig, error) {
	cfg, err := m.opts.Client.Config(ctx, name)
	if err == nil {
		m.touch(name)
	}
	return cfg, err
}

// Dump returns the raw NSSM dump of the service.
func (m *Manager) Dump(ctx context.Context, name string) (string, error) {
	return m.opts.Client.Dump(ctx, name)
}

// Status queries the service state and records it in the list.
func (m *Manager) Status(ctx context.Context, name string) (string, error) {
	state, err := m.opts.Client.Status(ctx, name)
	if err != nil {
		return state, err
	}
	m.update(name, func(s *models.ServiceInfo) { s.State = state })
	return state, nil
}

// Logs returns the tail of the service's stdout or stderr file.
func (m *Manager) Logs(ctx context.Context, name, stream string, maxBytes int64) (string, error) {
	return m.opts.Client.Logs(ctx, name, stream, maxBytes)
}

// Submit runs fn on the worker pool and then calls done with its error.
// Without a pool fn runs synchronously.
func (m *Manager) Submit(fn func(ctx context.Context) error, done func(error)) error {
	if m.opts.Pool == nil {
		err := fn(context.Background())
		if done != nil {
			done(err)
		}
		return nil
	}
	return m.opts.Pool.TrySubmit(func(ctx context.Context) {
		err := fn(ctx)
		if done != nil {
			done(err)
		}
	})
}
