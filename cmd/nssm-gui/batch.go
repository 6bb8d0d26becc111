package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/batch"
	"github.com/hongwen000/NSSM-GUI/internal/manager"
)

var (
	batchParallel bool
	batchRunning  bool
	batchStopped  bool
	batchFilter   string
	batchYes      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <" + strings.Join(manager.Actions, "|") + "> [names...]",
	Short: "Apply one action to many services",
	Long: `Apply start, stop, restart, enable, disable or delete to the named
services and/or every running or stopped NSSM service (--running, --stopped),
optionally narrowed with --filter.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		action, names := args[0], args[1:]
		if !batch.ValidAction(action) {
			return fmt.Errorf("%w: %q (use %s)", manager.ErrUnknownAction, action, strings.Join(manager.Actions, ", "))
		}

		a := newApp(ctx)
		defer a.close()

		if batchRunning || batchStopped || batchFilter != "" {
			if err := a.manager.Refresh(ctx); err != nil {
				return err
			}
			pool := batch.Filter(a.manager.Services(), batchFilter)
			switch {
			case batchRunning:
				names = append(names, batch.SelectRunning(pool)...)
			case batchStopped:
				names = append(names, batch.SelectStopped(pool)...)
			default:
				for _, s := range pool {
					names = append(names, s.Name)
				}
			}
		}

		if action == manager.ActionDelete && cfg.ConfirmActions && !batchYes {
			if !confirm(os.Stdin, os.Stderr, fmt.Sprintf("Delete %d service(s)?", len(names))) {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		sum, err := a.batch.Run(ctx, action, names, batchParallel)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(sum)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tRESULT\tOP ID")
		for _, r := range sum.Results {
			result := "ok"
			if !r.Success {
				result = "failed: " + r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Service, result, r.OpID)
		}
		w.Flush()
		fmt.Printf("\n%s: %d succeeded, %d failed of %d.\n", action, sum.Succeeded, sum.Failed, sum.Total)
		if sum.Failed > 0 {
			return fmt.Errorf("%d of %d operations failed", sum.Failed, sum.Total)
		}
		return nil
	},
}

func init() {
	f := batchCmd.Flags()
	f.BoolVar(&batchParallel, "parallel", false, "run on the worker pool instead of one after another")
	f.BoolVar(&batchRunning, "running", false, "add every running service")
	f.BoolVar(&batchStopped, "stopped", false, "add every stopped service")
	f.StringVar(&batchFilter, "filter", "", "limit selected services to names containing this text")
	f.BoolVarP(&batchYes, "yes", "y", false, "do not ask before deleting")
	batchCmd.MarkFlagsMutuallyExclusive("running", "stopped")
	rootCmd.AddCommand(batchCmd)
}
