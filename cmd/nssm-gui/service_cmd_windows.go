//go:build windows

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

var dashboardServiceCmd = &cobra.Command{
	Use:         "dashboard-service",
	Short:       "Run the web dashboard as a Windows service",
	Annotations: elevatedAnnotation,
}

func init() {
	rootCmd.AddCommand(dashboardServiceCmd)
	dashboardServiceCmd.AddCommand(dashboardServiceInstallCmd)
	dashboardServiceCmd.AddCommand(dashboardServiceUninstallCmd)
	dashboardServiceCmd.AddCommand(dashboardServiceStartCmd)
	dashboardServiceCmd.AddCommand(dashboardServiceStopCmd)
}

func openDashboardService() (*mgr.Mgr, *mgr.Service, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to SCM (run as Administrator): %w", err)
	}
	s, err := m.OpenService(dashboardServiceName)
	if err != nil {
		m.Disconnect()
		return nil, nil, fmt.Errorf("failed to open service: %w", err)
	}
	return m, s, nil
}

var dashboardServiceInstallCmd = &cobra.Command{
	Use:         "install",
	Short:       "Install the dashboard as a Windows service",
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to determine executable path: %w", err)
		}

		m, err := mgr.Connect()
		if err != nil {
			return fmt.Errorf("failed to connect to SCM (run as Administrator): %w", err)
		}
		defer m.Disconnect()

		var svcArgs []string
		if configDir != "" {
			svcArgs = append(svcArgs, "--config-dir", configDir)
		}
		s, err := m.CreateService(dashboardServiceName, exePath, mgr.Config{
			DisplayName:  "NSSM GUI Dashboard",
			Description:  "Web dashboard for services managed by NSSM",
			StartType:    mgr.StartAutomatic,
			ErrorControl: mgr.ErrorNormal,
		}, svcArgs...)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer s.Close()

		err = s.SetRecoveryActions([]mgr.RecoveryAction{
			{Type: mgr.ServiceRestart, Delay: 5 * time.Second},
			{Type: mgr.ServiceRestart, Delay: 10 * time.Second},
			{Type: mgr.ServiceRestart, Delay: 30 * time.Second},
		}, 86400)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to set recovery actions: %v\n", err)
		}

		fmt.Printf("Service %q installed. It serves on %s.\n", dashboardServiceName, cfg.DashboardAddr)
		return nil
	},
}

var dashboardServiceUninstallCmd = &cobra.Command{
	Use:         "uninstall",
	Short:       "Uninstall the dashboard Windows service",
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, s, err := openDashboardService()
		if err != nil {
			return err
		}
		defer m.Disconnect()
		defer s.Close()

		status, err := s.Query()
		if err == nil && status.State != svc.Stopped {
			_, _ = s.Control(svc.Stop)
			deadline := time.Now().Add(15 * time.Second)
			for time.Now().Before(deadline) {
				st, qErr := s.Query()
				if qErr != nil || st.State == svc.Stopped {
					break
				}
				time.Sleep(500 * time.Millisecond)
			}
		}

		if err := s.Delete(); err != nil {
			return fmt.Errorf("failed to delete service: %w", err)
		}
		fmt.Printf("Service %q uninstalled.\n", dashboardServiceName)
		return nil
	},
}

var dashboardServiceStartCmd = &cobra.Command{
	Use:         "start",
	Short:       "Start the dashboard Windows service",
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, s, err := openDashboardService()
		if err != nil {
			return err
		}
		defer m.Disconnect()
		defer s.Close()

		if err := s.Start(); err != nil {
			return fmt.Errorf("failed to start service: %w", err)
		}
		fmt.Printf("Service %q started.\n", dashboardServiceName)
		return nil
	},
}

var dashboardServiceStopCmd = &cobra.Command{
	Use:         "stop",
	Short:       "Stop the dashboard Windows service",
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, s, err := openDashboardService()
		if err != nil {
			return err
		}
		defer m.Disconnect()
		defer s.Close()

		if _, err := s.Control(svc.Stop); err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}
		fmt.Printf("Service %q stop requested.\n", dashboardServiceName)
		return nil
	},
}
