package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/privilege"
)

// annotationElevate marks commands that change services.
const annotationElevate = "elevate"

var elevatedAnnotation = map[string]string{annotationElevate: "true"}

func requiresElevation(cmd *cobra.Command) bool {
	return cmd.Annotations[annotationElevate] == "true"
}

// ensureElevated offers to relaunch through UAC when a mutating command runs
// without administrator rights. Declining continues with limited
// functionality.
func ensureElevated(cmd *cobra.Command) {
	if cfg.NoAdminCheck || privilege.IsElevated() {
		return
	}
	if runtime.GOOS != "windows" {
		log.Warn("not running as administrator; service changes will be refused")
		return
	}

	if confirm(os.Stdin, os.Stderr, "Administrator privileges are required. Relaunch as administrator?") {
		if err := privilege.RelaunchElevated(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Relaunch failed: %v\n", err)
		} else {
			os.Exit(0)
		}
	}
	fmt.Fprintln(os.Stderr, "Warning: continuing without administrator privileges; service changes will fail.")
	log.Warn("running without elevation", "command", cmd.CommandPath(), logging.KeyError, privilege.ErrNotElevated.Error())
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
