package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/nssm"
	"github.com/hongwen000/NSSM-GUI/internal/templates"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var (
	templateFromService string
	templateDescription string
	templateFlags       serviceFlags
	instantiateInstall  bool
	instantiateDryRun   bool
	instantiatePassword string
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"templates"},
	Short:   "Manage service templates",
}

func templateStore() *templates.Store {
	return templates.NewStore(cfg.TemplatesDir())
}

func auditTemplate(action, name string, extra map[string]any) {
	l := openAudit()
	defer l.Close()
	details := map[string]any{"action": action, "template": name}
	for k, v := range extra {
		details[k] = v
	}
	l.Log(audit.EventTemplateChange, audit.NewOpID(), "", details)
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := templateStore().List()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(list)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tAPPLICATION\tUPDATED\tDESCRIPTION")
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Config.ApplicationPath, t.UpdatedAt.Local().Format("2006-01-02 15:04"), t.Description)
		}
		return w.Flush()
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := templateStore().Load(args[0])
		if err != nil {
			return err
		}
		return printJSON(t)
	},
}

var templateSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a template from flags or an existing service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		var base models.ServiceConfig
		switch {
		case templateFromService != "":
			a := newApp(ctx)
			c, err := a.manager.Config(ctx, templateFromService)
			a.close()
			if err != nil {
				return err
			}
			base = c
		case templateFlags.fromFile != "":
			c, err := readConfigFile(templateFlags.fromFile)
			if err != nil {
				return err
			}
			base = c
		}
		templateFlags.apply(cmd.Flags(), &base)

		t, err := templateStore().Save(templates.FromService(args[0], templateDescription, base))
		if err != nil {
			return err
		}
		auditTemplate("save", t.Name, map[string]any{"fromService": templateFromService})
		fmt.Printf("Template %q saved.\n", t.Name)
		return nil
	},
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := templateStore().Delete(args[0]); err != nil {
			return err
		}
		auditTemplate("delete", args[0], nil)
		fmt.Printf("Template %q deleted.\n", args[0])
		return nil
	},
}

var templateRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := templateStore().Rename(args[0], args[1]); err != nil {
			return err
		}
		auditTemplate("rename", args[1], map[string]any{"from": args[0]})
		fmt.Printf("Template %q renamed to %q.\n", args[0], args[1])
		return nil
	},
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a template from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := templateStore().Import(args[0])
		if err != nil {
			return err
		}
		auditTemplate("import", t.Name, map[string]any{"file": args[0]})
		fmt.Printf("Template %q imported.\n", t.Name)
		return nil
	},
}

var templateExportCmd = &cobra.Command{
	Use:   "export <name> <file>",
	Short: "Export a template to JSON, or YAML for .yaml/.yml files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := templateStore().Export(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Template %q exported to %s.\n", args[0], args[1])
		return nil
	},
}

var templateInstantiateCmd = &cobra.Command{
	Use:   "instantiate <template> <service>",
	Short: "Create a service config from a template",
	Long: `Print the service config a template produces for the given service
name, or install it with --install.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		svc, err := templateStore().Instantiate(args[0], args[1])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("password") {
			svc.Password = instantiatePassword
		}
		svc = svc.WithDefaults()

		switch {
		case instantiateDryRun:
			return printCommands(nssm.InstallCommands(svc))
		case !instantiateInstall:
			return printJSON(svc)
		}

		if err := svc.Validate(); err != nil {
			return err
		}
		ensureElevated(cmd)
		a := newApp(ctx)
		defer a.close()
		if err := a.manager.Install(ctx, svc); err != nil {
			return err
		}
		fmt.Printf("Service %q installed from template %q.\n", args[1], args[0])
		return nil
	},
}

func init() {
	templateSaveCmd.Flags().StringVar(&templateFromService, "from-service", "", "copy the settings of an installed service")
	templateSaveCmd.Flags().StringVar(&templateDescription, "summary", "", "template description")
	templateFlags.register(templateSaveCmd.Flags())
	templateSaveCmd.MarkFlagsMutuallyExclusive("from-service", "from-file")

	templateInstantiateCmd.Flags().BoolVar(&instantiateInstall, "install", false, "install the service")
	templateInstantiateCmd.Flags().BoolVar(&instantiateDryRun, "dry-run", false, "print the NSSM install commands")
	templateInstantiateCmd.Flags().StringVar(&instantiatePassword, "password", "", "password for a non-builtin account")

	templateCmd.AddCommand(templateListCmd, templateShowCmd, templateSaveCmd, templateDeleteCmd,
		templateRenameCmd, templateImportCmd, templateExportCmd, templateInstantiateCmd)
	rootCmd.AddCommand(templateCmd)
}
