package main

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/backup"
	"github.com/hongwen000/NSSM-GUI/internal/batch"
	"github.com/hongwen000/NSSM-GUI/internal/executor"
	"github.com/hongwen000/NSSM-GUI/internal/fetch"
	"github.com/hongwen000/NSSM-GUI/internal/health"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/manager"
	"github.com/hongwen000/NSSM-GUI/internal/nssm"
	"github.com/hongwen000/NSSM-GUI/internal/privilege"
	"github.com/hongwen000/NSSM-GUI/internal/svcquery"
	"github.com/hongwen000/NSSM-GUI/internal/templates"
	"github.com/hongwen000/NSSM-GUI/internal/workerpool"
)

const (
	auditMaxSizeMB  = 10
	auditMaxBackups = 5
	drainTimeout    = 10 * time.Second
)

// app wires the components one command needs.
type app struct {
	client    *nssm.Client
	audit     *audit.Logger
	backups   *backup.Store
	templates *templates.Store
	pool      *workerpool.Pool
	manager   *manager.Manager
	batch     *batch.Runner
	health    *health.Monitor

	recent []string
}

func newApp(ctx context.Context) *app {
	a := &app{
		templates: templates.NewStore(cfg.TemplatesDir()),
		health:    health.NewMonitor(),
		recent:    cfg.Recent(),
	}

	a.audit = openAudit()

	path := a.resolveNSSMPath(ctx)
	opts := []nssm.Option{
		nssm.WithRunner(executor.New(time.Duration(cfg.CommandTimeoutSeconds) * time.Second)),
	}
	if cfg.NoAdminCheck {
		opts = append(opts, nssm.WithoutAdminCheck())
	}
	a.client = nssm.New(path, opts...)
	a.health.CheckNSSM(path)
	a.health.CheckElevation(privilege.IsElevated(), cfg.NoAdminCheck)

	if cfg.BackupServiceConfigs {
		a.backups = backup.NewStore(cfg.BackupDir())
	}

	a.pool = workerpool.New(cfg.MaxConcurrentCommands, cfg.CommandQueueSize)
	a.manager = manager.New(manager.Options{
		Client:     a.client,
		List:       svcquery.ListNSSMServices,
		Audit:      a.audit,
		Backups:    a.backups,
		BackupKeep: cfg.BackupKeep,
		Pool:       a.pool,
		OnAccess:   cfg.AddRecentService,
	})
	a.batch = batch.New(a.manager, a.pool, a.audit)
	return a
}

// openAudit opens the audit log. Failure is logged and yields a nil logger,
// which records nothing.
func openAudit() *audit.Logger {
	l, err := audit.NewLogger(cfg.AuditPath(), auditMaxSizeMB, auditMaxBackups)
	if err != nil {
		log.Warn("audit log unavailable", logging.KeyError, err.Error())
		return nil
	}
	return l
}

// close drains queued work, persists the recent-services list when it
// changed and closes the audit log.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	a.pool.Shutdown(ctx)

	if !slices.Equal(a.recent, cfg.Recent()) {
		if err := cfg.Save(); err != nil {
			log.Warn("failed to save recent services", logging.KeyError, err.Error())
		}
	}
	if err := a.audit.Close(); err != nil {
		log.Warn("failed to close audit log", logging.KeyError, err.Error())
	}
}

// resolveNSSMPath picks nssm.exe from the configured path, PATH, the config
// directory, or finally downloads it into the config directory.
func (a *app) resolveNSSMPath(ctx context.Context) string {
	if cfg.NSSMPath != "" {
		return cfg.NSSMPath
	}
	if p, err := exec.LookPath(fetch.ExeName); err == nil {
		return p
	}
	local := cfg.LocalNSSMPath()
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if runtime.GOOS != "windows" {
		return fetch.ExeName
	}

	p, err := downloadNSSM(ctx, a.audit, fetch.Options{URL: cfg.NSSMDownloadURL, DestDir: cfg.Dir})
	if err != nil {
		log.Warn("NSSM download failed", logging.KeyError, err.Error())
		return fetch.ExeName
	}
	return p
}
