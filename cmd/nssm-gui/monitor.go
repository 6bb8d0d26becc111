package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/monitor"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var (
	monitorInterval time.Duration
	monitorCount    int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [names...]",
	Short: "Print CPU, memory and I/O of services every interval",
	Long: `Sample the processes of the named services (all NSSM services when none
are named) and print one table per interval until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		names := args
		if len(names) == 0 {
			a := newApp(ctx)
			if err := a.manager.Refresh(ctx); err != nil {
				a.close()
				return err
			}
			names = a.manager.Names()
			a.close()
		}
		if len(names) == 0 {
			return errors.New("no NSSM services to monitor")
		}

		interval := monitorInterval
		if !cmd.Flags().Changed("interval") {
			interval = time.Duration(cfg.MonitoringIntervalSeconds) * time.Second
		}
		m := monitor.New(nil, nil, monitor.WithInterval(interval), monitor.WithHistorySize(cfg.MonitorHistorySize))
		m.Track(names...)

		updates, unsubscribe := m.Subscribe()
		defer unsubscribe()

		runCtx, stop := context.WithCancel(ctx)
		defer stop()
		go m.Run(runCtx)

		printed := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case snapshots := <-updates:
				if err := printSnapshots(snapshots); err != nil {
					return err
				}
				printed++
				if monitorCount > 0 && printed >= monitorCount {
					return nil
				}
			}
		}
	},
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", monitor.DefaultInterval, "sampling interval (default: monitoring_interval_seconds)")
	monitorCmd.Flags().IntVar(&monitorCount, "count", 0, "stop after this many samples (0 = until interrupted)")
	rootCmd.AddCommand(monitorCmd)
}

func printSnapshots(snapshots []models.ServiceStatus) error {
	if jsonOutput {
		return printJSON(snapshots)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\n", time.Now().Format(time.TimeOnly))
	fmt.Fprintln(w, "SERVICE\tSTATE\tPID\tCPU%\tMEM%\tMEM MB\tREAD/s\tWRITE/s\tRESTARTS")
	for _, s := range snapshots {
		if s.NoData {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\t-\t-\t%d\n", s.Service, s.State, s.Restarts)
			continue
		}
		cpu, mem, memMB := "-", "-", "-"
		if cfg.MonitorCPUUsage {
			cpu = fmt.Sprintf("%.1f", s.CPUPercent)
		}
		if cfg.MonitorMemoryUsage {
			mem = fmt.Sprintf("%.1f", s.MemoryPercent)
			memMB = fmt.Sprintf("%.1f", s.MemoryMB)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%d\n", s.Service, s.State, s.PID, cpu, mem, memMB,
			humanRate(s.IOReadBytesPerSec), humanRate(s.IOWriteBytesPerSec), s.Restarts)
	}
	fmt.Fprintln(w)
	return w.Flush()
}

func humanRate(bps float64) string {
	switch {
	case bps >= 1<<20:
		return fmt.Sprintf("%.1f MB", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.1f KB", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0f B", bps)
	}
}
