//go:build windows

package privilege

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// IsElevated reports whether the process token is elevated (UAC).
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// IsRunningAsRoot is IsElevated on Windows.
func IsRunningAsRoot() bool {
	return IsElevated()
}

// RelaunchElevated starts the current executable again through the UAC
// "runas" verb with args. The caller should exit once it returns nil.
func RelaunchElevated(args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}

	verb, _ := windows.UTF16PtrFromString("runas")
	file, err := windows.UTF16PtrFromString(exe)
	if err != nil {
		return err
	}
	params, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(args))
	if err != nil {
		return err
	}
	dir, err := windows.UTF16PtrFromString(cwd)
	if err != nil {
		return err
	}

	if err := windows.ShellExecute(0, verb, file, params, dir, windows.SW_SHOWNORMAL); err != nil {
		return fmt.Errorf("relaunch elevated: %w", err)
	}
	return nil
}
