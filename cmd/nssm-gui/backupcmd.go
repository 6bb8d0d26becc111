package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/backup"
)

var (
	restoreApply bool
	restoreYes   bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List and restore service config backups",
}

var backupListCmd = &cobra.Command{
	Use:   "list [service]",
	Short: "List backups of a service, or the services that have backups",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := backup.NewStore(cfg.BackupDir())
		if len(args) == 0 {
			names, err := store.Services()
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(names)
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		}

		list, err := store.List(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Printf("No backups for %q.\n", args[0])
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSIZE\tPATH")
		for _, e := range list {
			fmt.Fprintf(w, "%s\t%d\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Size, e.Path)
		}
		return w.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <service|file>",
	Short: "Print or re-apply a backed up service config",
	Long: `Print the config stored in a backup file, or in the newest backup of a
service. With --apply the config is written back to the service.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := backup.NewStore(cfg.BackupDir())
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			latest, lerr := store.Latest(args[0])
			if lerr != nil {
				if errors.Is(lerr, backup.ErrNoBackups) {
					return lerr
				}
				return fmt.Errorf("%s is neither a backup file nor a service with backups: %w", args[0], lerr)
			}
			path = latest.Path
		}

		snap, err := store.Read(path)
		if err != nil {
			return err
		}
		if !restoreApply {
			return printJSON(snap)
		}

		if cfg.ConfirmActions && !restoreYes &&
			!confirm(os.Stdin, os.Stderr, fmt.Sprintf("Restore %q to its config from %s?", snap.Service, snap.Timestamp.Local().Format("2006-01-02 15:04:05"))) {
			fmt.Println("Cancelled.")
			return nil
		}
		ensureElevated(cmd)

		ctx, cancel := signalContext()
		defer cancel()
		a := newApp(ctx)
		defer a.close()
		if err := a.manager.Edit(ctx, snap.Config); err != nil {
			return err
		}
		fmt.Printf("Service %q restored.\n", snap.Service)
		return nil
	},
}

func init() {
	backupRestoreCmd.Flags().BoolVar(&restoreApply, "apply", false, "write the config back to the service")
	backupRestoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "do not ask for confirmation")
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
