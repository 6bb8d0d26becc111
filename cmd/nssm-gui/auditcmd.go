package main

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
)

var auditLines int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the most recent audit entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := audit.Tail(cfg.AuditPath(), auditLines)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tSERVICE\tDETAILS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", localTime(e.Timestamp), e.EventType, e.Service, formatDetails(e.Details))
		}
		return w.Flush()
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the audit log hash chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := audit.Verify(cfg.AuditPath())
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Println("No audit log yet.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", cfg.AuditPath(), err)
		}
		fmt.Printf("%d entries verified.\n", n)
		return nil
	},
}

func localTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	parts := make([]string, 0, len(details))
	for _, k := range slices.Sorted(maps.Keys(details)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, " ")
}

func init() {
	auditShowCmd.Flags().IntVarP(&auditLines, "lines", "n", 20, "number of entries to print, 0 for all")
	auditCmd.AddCommand(auditShowCmd, auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}
