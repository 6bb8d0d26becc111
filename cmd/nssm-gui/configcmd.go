package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change application settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every setting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := config.Keys()
		if jsonOutput {
			out := make(map[string]any, len(keys))
			for _, k := range keys {
				out[k], _ = cfg.Get(k)
			}
			return printJSON(out)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, k := range keys {
			v, _ := cfg.Get(k)
			fmt.Fprintf(w, "%s\t%v\n", k, v)
		}
		return w.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, ok := cfg.Get(args[0])
		if !ok {
			return fmt.Errorf("unknown config key %q", args[0])
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting and save it",
	Long: `Change one setting and write config.yaml. List values such as
recent_services are comma separated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		old, _ := cfg.Get(key)
		if err := cfg.Set(key, value); err != nil {
			return err
		}
		result := cfg.ValidateTiered()
		if result.HasFatals() {
			return fmt.Errorf("invalid value for %s: %w", key, result.Fatals[0])
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", w)
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		current, _ := cfg.Get(key)

		l := openAudit()
		defer l.Close()
		l.Log(audit.EventConfigChange, audit.NewOpID(), "", map[string]any{
			"key": key,
			"old": fmt.Sprint(old),
			"new": fmt.Sprint(current),
		})
		fmt.Printf("%s = %v\n", key, current)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cfg.Path())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
