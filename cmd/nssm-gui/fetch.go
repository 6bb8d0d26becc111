package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/fetch"
)

var (
	fetchForce  bool
	fetchArch   string
	fetchSHA256 string
	fetchURL    string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch-nssm",
	Short: "Download nssm.exe into the config directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		auditLogger := openAudit()
		defer auditLogger.Close()

		url := cfg.NSSMDownloadURL
		if fetchURL != "" {
			url = fetchURL
		}
		path, err := downloadNSSM(ctx, auditLogger, fetch.Options{
			URL:     url,
			DestDir: cfg.Dir,
			Arch:    fetchArch,
			SHA256:  fetchSHA256,
			Force:   fetchForce,
		})
		if err != nil {
			return err
		}
		fmt.Printf("nssm.exe ready at %s\n", path)
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "replace an existing nssm.exe")
	fetchCmd.Flags().StringVar(&fetchArch, "arch", "", "archive folder to extract: win64 or win32 (default: host architecture)")
	fetchCmd.Flags().StringVar(&fetchSHA256, "sha256", "", "expected SHA-256 of the archive")
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "download URL (default: nssm_download_url)")
	rootCmd.AddCommand(fetchCmd)
}

// downloadNSSM runs fetch.EnsureNSSM and audits the result.
func downloadNSSM(ctx context.Context, auditLogger *audit.Logger, opts fetch.Options) (string, error) {
	path, err := fetch.EnsureNSSM(ctx, opts)
	details := map[string]any{"url": opts.URL, "path": path}
	if err != nil {
		details["result"] = "error"
		details["error"] = err.Error()
	} else {
		details["result"] = "ok"
	}
	auditLogger.Log(audit.EventNSSMDownload, audit.NewOpID(), "", details)
	return path, err
}
