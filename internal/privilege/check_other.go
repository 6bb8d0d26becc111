//go:build !windows

package privilege

import (
	"errors"
	"os"
)

// IsRunningAsRoot returns true if the process is running with UID 0 (root).
func IsRunningAsRoot() bool {
	return os.Getuid() == 0
}

// IsElevated reports whether the process runs as root.
func IsElevated() bool {
	return IsRunningAsRoot()
}

// RelaunchElevated is only available on Windows.
func RelaunchElevated(args []string) error {
	return errors.New("elevated relaunch is only supported on Windows")
}
