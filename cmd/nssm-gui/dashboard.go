package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/config"
	"github.com/hongwen000/NSSM-GUI/internal/dashboard"
	"github.com/hongwen000/NSSM-GUI/internal/health"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/monitor"
	"github.com/hongwen000/NSSM-GUI/internal/svcquery"
)

var dashboardAddr string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the web dashboard",
	Long: `Serve the local web dashboard and its JSON API. The address may be a
TCP address such as 127.0.0.1:8787 or a named pipe such as pipe:nssm-gui.`,
	Args:        cobra.NoArgs,
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		addr := cfg.DashboardAddr
		if cmd.Flags().Changed("addr") {
			addr = dashboardAddr
		}
		return runDashboard(ctx, addr, func(a string) {
			fmt.Printf("Dashboard listening on %s\n", a)
		})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardAddr, "addr", "", "listen address (default: dashboard_addr)")
	rootCmd.AddCommand(dashboardCmd)
}

// runDashboard serves the dashboard until ctx is cancelled. It is shared by
// the dashboard command and the Windows service entry point. ready, when
// set, receives the bound address.
func runDashboard(ctx context.Context, addr string, ready func(string)) error {
	a := newApp(ctx)
	defer a.close()

	opID := audit.NewOpID()
	a.audit.Log(audit.EventAppStart, opID, "", map[string]any{"version": version, "addr": addr})
	defer a.audit.Log(audit.EventAppStop, opID, "", nil)

	ln, err := dashboard.Listen(addr, cfg.DashboardMaxConns)
	if err != nil {
		return err
	}

	mon := monitor.New(nil, nil,
		monitor.WithInterval(time.Duration(cfg.MonitoringIntervalSeconds)*time.Second),
		monitor.WithHistorySize(cfg.MonitorHistorySize))

	refresh := func() {
		err := a.manager.Refresh(ctx)
		switch {
		case errors.Is(err, svcquery.ErrUnsupported):
			a.health.Update(health.ComponentSCM, health.Unknown, "service enumeration unavailable on this platform")
		default:
			a.health.RecordError(health.ComponentSCM, err, health.Degraded)
		}
		if err != nil {
			log.Warn("service refresh failed", logging.KeyError, err.Error())
			return
		}
		if cfg.EnableServiceMonitoring {
			mon.SetTracked(a.manager.Names())
		}
	}
	refresh()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if cfg.EnableServiceMonitoring {
		go func() {
			a.health.Update(health.ComponentMonitor, health.Healthy, "")
			if err := mon.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.health.Update(health.ComponentMonitor, health.Unhealthy, err.Error())
			}
		}()
	} else {
		a.health.Update(health.ComponentMonitor, health.Degraded, "service monitoring disabled")
	}

	var refreshEvery atomic.Int64
	refreshEvery.Store(int64(time.Duration(cfg.RefreshIntervalSeconds) * time.Second))
	var autoRefresh atomic.Bool
	autoRefresh.Store(cfg.AutoRefresh)

	logFormatNow := cfg.LogFormat
	if err := cfg.Watch(func(next *config.Config) {
		if err := applyFlagOverrides(next); err != nil {
			log.Warn("config reload ignored", logging.KeyError, err.Error())
			return
		}
		if next.LogFormat != logFormatNow {
			logging.Init(next.LogFormat, next.LogLevel, logOutput)
			logFormatNow = next.LogFormat
		} else {
			logging.SetLevel(next.LogLevel)
		}
		refreshEvery.Store(int64(time.Duration(next.RefreshIntervalSeconds) * time.Second))
		autoRefresh.Store(next.AutoRefresh)
	}); err != nil {
		log.Debug("config watch unavailable", logging.KeyError, err.Error())
	}

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-time.After(time.Duration(refreshEvery.Load())):
				if autoRefresh.Load() {
					refresh()
				}
			}
		}
	}()

	srv := dashboard.New(dashboard.Deps{
		Manager:   a.manager,
		Batch:     a.batch,
		Monitor:   mon,
		Templates: a.templates,
		Health:    a.health,
		Audit:     a.audit,
	})
	if ready != nil {
		ready(ln.Addr().String())
	}
	return srv.Serve(ctx, ln)
}
