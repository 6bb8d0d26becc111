package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/batch"
	"github.com/hongwen000/NSSM-GUI/internal/manager"
	"github.com/hongwen000/NSSM-GUI/internal/nssm"
	"github.com/hongwen000/NSSM-GUI/internal/svcquery"
	"github.com/hongwen000/NSSM-GUI/internal/templates"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var (
	listFilter string

	installFlags    serviceFlags
	installTemplate string
	installDryRun   bool

	editFlags  serviceFlags
	editDryRun bool

	removeYes bool

	logsStderr bool
	logsBytes  int64
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List NSSM-managed services",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a := newApp(ctx)
		defer a.close()

		if err := a.manager.Refresh(ctx); err != nil {
			return err
		}
		services := batch.Filter(a.manager.Services(), listFilter)
		if jsonOutput {
			return printJSON(services)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDISPLAY NAME\tSTATE\tSTART\tPID")
		for _, s := range services {
			pid := "-"
			if s.PID != 0 {
				pid = fmt.Sprint(s.PID)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.DisplayName, s.State, s.StartType, pid)
		}
		return w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show the state of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		name := args[0]

		info, err := svcquery.GetStatus(name)
		if errors.Is(err, svcquery.ErrUnsupported) {
			a := newApp(ctx)
			defer a.close()
			state, serr := a.manager.Status(ctx, name)
			if serr != nil {
				return serr
			}
			info, err = models.ServiceInfo{Name: name, State: state}, nil
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(info)
		}
		fmt.Printf("Name:         %s\n", info.Name)
		if info.DisplayName != "" {
			fmt.Printf("Display name: %s\n", info.DisplayName)
		}
		fmt.Printf("State:        %s\n", info.State)
		if info.StartType != "" {
			fmt.Printf("Startup:      %s\n", info.StartType)
		}
		if info.PID != 0 {
			fmt.Printf("PID:          %d\n", info.PID)
		}
		if info.BinaryPath != "" {
			fmt.Printf("Binary:       %s\n", info.BinaryPath)
		}
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install <name> [application]",
	Short: "Install a service",
	Long: `Install a service through NSSM. Settings come from --template or
--from-file when given, and any flags override them.`,
	Args:        cobra.RangeArgs(1, 2),
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		name := args[0]

		var svc models.ServiceConfig
		switch {
		case installTemplate != "":
			c, err := templates.NewStore(cfg.TemplatesDir()).Instantiate(installTemplate, name)
			if err != nil {
				return err
			}
			svc = c
		case installFlags.fromFile != "":
			c, err := readConfigFile(installFlags.fromFile)
			if err != nil {
				return err
			}
			svc = c
			svc.ServiceName = name
		default:
			svc = models.ServiceConfig{ServiceName: name}
			applyConfigDefaults(&svc, cfg)
		}
		if len(args) == 2 {
			svc.ApplicationPath = args[1]
		}
		installFlags.apply(cmd.Flags(), &svc)
		svc = svc.WithDefaults()

		if err := svc.Validate(); err != nil {
			return err
		}
		if installDryRun {
			return printCommands(nssm.InstallCommands(svc))
		}

		a := newApp(ctx)
		defer a.close()
		if err := a.manager.Install(ctx, svc); err != nil {
			return err
		}
		fmt.Printf("Service %q installed.\n", name)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:         "edit <name>",
	Short:       "Change the settings of a service",
	Args:        cobra.ExactArgs(1),
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		name := args[0]

		a := newApp(ctx)
		defer a.close()

		var svc models.ServiceConfig
		if editFlags.fromFile != "" {
			c, err := readConfigFile(editFlags.fromFile)
			if err != nil {
				return err
			}
			svc = c
		} else {
			current, err := a.manager.Config(ctx, name)
			if err != nil {
				return err
			}
			svc = current
		}
		svc.ServiceName = name
		editFlags.apply(cmd.Flags(), &svc)

		if err := svc.Validate(); err != nil {
			return err
		}
		if editDryRun {
			return printCommands(nssm.EditCommands(svc))
		}
		if err := a.manager.Edit(ctx, svc); err != nil {
			return err
		}
		fmt.Printf("Service %q updated.\n", name)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:         "remove <name>",
	Short:       "Stop and remove a service",
	Args:        cobra.ExactArgs(1),
	Annotations: elevatedAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		name := args[0]

		if cfg.ConfirmActions && !removeYes && !confirm(os.Stdin, os.Stderr, fmt.Sprintf("Remove service %q?", name)) {
			fmt.Println("Cancelled.")
			return nil
		}
		a := newApp(ctx)
		defer a.close()
		if err := a.manager.Remove(ctx, name); err != nil {
			return err
		}
		fmt.Printf("Service %q removed.\n", name)
		return nil
	},
}

// controlCommand builds start, stop and restart.
func controlCommand(action, short, done string) *cobra.Command {
	return &cobra.Command{
		Use:         action + " <name>",
		Short:       short,
		Args:        cobra.ExactArgs(1),
		Annotations: elevatedAnnotation,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a := newApp(ctx)
			defer a.close()

			if err := a.manager.Apply(ctx, action, args[0]); err != nil {
				return err
			}
			info, _ := a.manager.Get(args[0])
			fmt.Printf("Service %q %s (%s).\n", args[0], done, info.State)
			return nil
		},
	}
}

var dumpCmd = &cobra.Command{
	Use:   "dump <name>",
	Short: "Print the NSSM commands that recreate a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a := newApp(ctx)
		defer a.close()

		if jsonOutput {
			svc, err := a.manager.Config(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(svc)
		}
		out, err := a.manager.Dump(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "Print the end of a service's output file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a := newApp(ctx)
		defer a.close()

		stream := nssm.StreamStdout
		if logsStderr {
			stream = nssm.StreamStderr
		}
		out, err := a.manager.Logs(ctx, args[0], stream, logsBytes)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listFilter, "filter", "", "only show services whose name or display name contains this text")

	installFlags.register(installCmd.Flags())
	installCmd.Flags().StringVar(&installTemplate, "template", "", "start from a saved template")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "print the NSSM commands instead of running them")
	installCmd.MarkFlagsMutuallyExclusive("template", "from-file")

	editFlags.register(editCmd.Flags())
	editCmd.Flags().BoolVar(&editDryRun, "dry-run", false, "print the NSSM commands instead of running them")

	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "do not ask for confirmation")

	logsCmd.Flags().BoolVar(&logsStderr, "stderr", false, "show the stderr file instead of stdout")
	logsCmd.Flags().Int64Var(&logsBytes, "bytes", nssm.DefaultLogTail, "how many bytes from the end to show")

	rootCmd.AddCommand(listCmd, statusCmd, installCmd, editCmd, removeCmd, dumpCmd, logsCmd,
		controlCommand(manager.ActionStart, "Start a service", "started"),
		controlCommand(manager.ActionStop, "Stop a service", "stopped"),
		controlCommand(manager.ActionRestart, "Restart a service", "restarted"),
	)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printCommands prints NSSM argument vectors as command lines.
func printCommands(cmds [][]string) error {
	exe := cfg.NSSMPath
	if exe == "" {
		exe = "nssm.exe"
	}
	for _, c := range cmds {
		fmt.Println(nssm.FormatCommand(append([]string{exe}, c...)))
	}
	return nil
}
