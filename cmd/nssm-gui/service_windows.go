//go:build windows

package main

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/svc"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
)

const dashboardServiceName = "NSSMGUIDashboard"

// isWindowsService reports whether the process was started by the Windows
// Service Control Manager. Must be called before any console I/O.
func isWindowsService() bool {
	ok, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return ok
}

// dashboardService implements svc.Handler for the Windows SCM.
type dashboardService struct {
	addr string
}

// runDashboardService loads the configuration, logs to file only and runs
// the dashboard under the Service Control Manager.
func runDashboardService() error {
	if err := loadConfig(); err != nil {
		return err
	}
	initLogging(nil)
	defer func() {
		if logWriter != nil {
			logWriter.Close()
		}
	}()
	return svc.Run(dashboardServiceName, &dashboardService{addr: cfg.DashboardAddr})
}

// Execute is the SCM callback. It reports Running once the dashboard is
// listening and blocks until the SCM sends Stop or Shutdown.
func (s *dashboardService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown

	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- runDashboard(ctx, s.addr, func(string) { close(ready) })
	}()

	select {
	case <-ready:
	case err := <-done:
		log.Error("dashboard start failed", logging.KeyError, fmt.Sprint(err))
		return true, 1
	}

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	log.Info("dashboard running as Windows service", "addr", s.addr)

	for {
		select {
		case err := <-done:
			if err != nil {
				log.Error("dashboard stopped", logging.KeyError, err.Error())
				return true, 1
			}
			return false, 0
		case cr := <-r:
			switch cr.Cmd {
			case svc.Interrogate:
				changes <- cr.CurrentStatus
			case svc.Stop, svc.Shutdown:
				log.Info("SCM requested stop")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				<-done
				return false, 0
			default:
				log.Warn(fmt.Sprintf("unexpected SCM control request #%d", cr.Cmd))
			}
		}
	}
}
