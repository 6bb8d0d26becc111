package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/config"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
)

var log = logging.L("main")

var (
	version = "0.1.0"

	nssmPath     string
	noAdminCheck bool
	configDir    string
	logLevel     string
	logFormat    string
	jsonOutput   bool

	cfg       *config.Config
	logWriter *logging.RotatingWriter
	logOutput io.Writer
)

var rootCmd = &cobra.Command{
	Use:   "nssm-gui",
	Short: "Manage NSSM Windows services",
	Long: `nssm-gui installs, edits, controls and monitors Windows services run by
the Non-Sucking Service Manager, from the command line or a local web dashboard.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logWriter != nil {
			logWriter.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nssm-gui v%s\n", version)
	},
}

func init() {
	// Assigned here rather than in the literal to break the
	// rootCmd -> setup -> applyFlagOverrides -> rootCmd initialization cycle.
	rootCmd.PersistentPreRunE = setup

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&nssmPath, "nssm-path", "", "path to nssm.exe (default: config, PATH, then the config directory)")
	pf.BoolVar(&noAdminCheck, "no-admin-check", false, "skip the administrator check before mutating commands")
	pf.StringVar(&configDir, "config-dir", "", "configuration directory (default "+config.DefaultDir()+")")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")
	pf.BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if isWindowsService() {
		if err := runDashboardService(); err != nil {
			log.Error("service exited with error", logging.KeyError, err.Error())
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration, applies flag overrides and initializes
// logging. It runs before every command.
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}
	if err := loadConfig(); err != nil {
		return err
	}
	initLogging(os.Stderr)
	if requiresElevation(cmd) {
		ensureElevated(cmd)
	}
	return nil
}

// applyFlagOverrides applies the global flags the user set to c. They hold
// for this process only and are never saved.
func applyFlagOverrides(c *config.Config) error {
	flags := rootCmd.PersistentFlags()
	overrides := []struct {
		flag, key string
		value     any
	}{
		{"nssm-path", "nssm_path", nssmPath},
		{"no-admin-check", "no_admin_check", noAdminCheck},
		{"log-level", "log_level", logLevel},
		{"log-format", "log_format", logFormat},
	}
	for _, o := range overrides {
		if !flags.Changed(o.flag) {
			continue
		}
		if err := c.Override(o.key, o.value); err != nil {
			return fmt.Errorf("--%s: %w", o.flag, err)
		}
	}
	return nil
}

func loadConfig() error {
	loaded, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyFlagOverrides(loaded); err != nil {
		return err
	}

	result := loaded.ValidateTiered()
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			fmt.Fprintf(os.Stderr, "Error: %v\n", f)
		}
		return fmt.Errorf("invalid configuration in %s", loaded.Path())
	}
	cfg = loaded
	return nil
}

// initLogging tees log output to console and the rotating log file. A log
// file that cannot be opened only costs the file copy.
func initLogging(console io.Writer) {
	var out io.Writer = console
	if path := cfg.LogPath(); path != "" {
		rw, err := logging.NewRotatingWriter(path, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v\n", path, err)
		} else {
			logWriter = rw
			if console == nil {
				out = rw
			} else {
				out = logging.TeeWriter(console, rw)
			}
		}
	}
	logOutput = out
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
