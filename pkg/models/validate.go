package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// MaxServiceNameLength is the SCM limit on service key names.
const MaxServiceNameLength = 256

// ErrIncompleteInstall marks an install whose service was created but
// whose later settings failed. The service exists and must be listed.
var ErrIncompleteInstall = errors.New("service installed but not fully configured")

var serviceNameRegex = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

var validStartTypes = map[string]bool{
	StartAuto:        true,
	StartDelayedAuto: true,
	StartDemand:      true,
	StartDisabled:    true,
}

var validServiceTypes = map[string]bool{
	TypeOwnProcess:         true,
	TypeInteractiveProcess: true,
}

var validPriorities = map[string]bool{
	PriorityRealtime:    true,
	PriorityHigh:        true,
	PriorityAboveNormal: true,
	PriorityNormal:      true,
	PriorityBelowNormal: true,
	PriorityIdle:        true,
}

var validExitActions = map[string]bool{
	ExitRestart: true,
	ExitIgnore:  true,
	ExitExit:    true,
	ExitSuicide: true,
}

var builtinAccounts = map[string]bool{
	AccountLocalSystem:    true,
	AccountLocalService:   true,
	AccountNetworkService: true,
}

// ValidateServiceName checks that name is usable as a Windows service key.
func ValidateServiceName(name string) error {
	if name == "" {
		return errors.New("service name is required")
	}
	if len(name) > MaxServiceNameLength {
		return fmt.Errorf("service name exceeds %d characters", MaxServiceNameLength)
	}
	if !serviceNameRegex.MatchString(name) {
		return fmt.Errorf("service name %q contains illegal characters", name)
	}
	return nil
}

// ValidateObjectName accepts the built-in accounts or DOMAIN\User.
func ValidateObjectName(account string) error {
	if builtinAccounts[account] {
		return nil
	}
	domain, user, ok := strings.Cut(account, `\`)
	if !ok {
		return fmt.Errorf("invalid object name %q: use LocalSystem, LocalService, NetworkService or DOMAIN\\UserName", account)
	}
	if domain == "" || user == "" {
		return fmt.Errorf("invalid object name %q: expected DOMAIN\\UserName", account)
	}
	return nil
}

// IsBuiltinAccount reports whether account needs no password.
func IsBuiltinAccount(account string) bool {
	return account == "" || builtinAccounts[account]
}

// Validate checks every field and returns all problems joined together.
// Empty enum fields are accepted; they take NSSM's defaults.
func (c ServiceConfig) Validate() error {
	var errs []error

	if err := ValidateServiceName(c.ServiceName); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.ApplicationPath) == "" {
		errs = append(errs, errors.New("application path is required"))
	}
	if c.Start != "" && !validStartTypes[c.Start] {
		errs = append(errs, fmt.Errorf("start %q is not one of %s", c.Start, keys(validStartTypes)))
	}
	if c.Type != "" && !validServiceTypes[c.Type] {
		errs = append(errs, fmt.Errorf("type %q is not one of %s", c.Type, keys(validServiceTypes)))
	}
	if c.ProcessPriority != "" && !validPriorities[c.ProcessPriority] {
		errs = append(errs, fmt.Errorf("process priority %q is not one of %s", c.ProcessPriority, keys(validPriorities)))
	}
	if c.AppExit != "" && !validExitActions[c.AppExit] {
		errs = append(errs, fmt.Errorf("exit action %q is not one of %s", c.AppExit, keys(validExitActions)))
	}
	if c.ObjectName != "" {
		if err := ValidateObjectName(c.ObjectName); err != nil {
			errs = append(errs, err)
		}
	}
	for _, dep := range c.Dependencies {
		// NSSM reads a leading "+" or "-" argument as add/remove.
		if dep == "+" || dep == "-" {
			errs = append(errs, fmt.Errorf("dependency %q is reserved", dep))
			continue
		}
		if err := ValidateServiceName(dep); err != nil {
			errs = append(errs, fmt.Errorf("dependency: %w", err))
		}
	}
	for k := range c.EnvVariables {
		if k == "" || strings.ContainsAny(k, "=\x00") || strings.HasPrefix(k, "+") {
			errs = append(errs, fmt.Errorf("invalid environment variable name %q", k))
		}
	}
	for event, command := range c.Hooks {
		if !strings.Contains(event, "/") {
			errs = append(errs, fmt.Errorf("hook %q must be Event/Action", event))
		}
		if strings.TrimSpace(command) == "" {
			errs = append(errs, fmt.Errorf("hook %q has no command", event))
		}
	}

	for _, v := range []struct {
		name  string
		value int
	}{
		{"kill console delay", c.KillConsoleDelay},
		{"kill window delay", c.KillWindowDelay},
		{"kill threads delay", c.KillThreadsDelay},
		{"throttle delay", c.ThrottleDelay},
		{"restart delay", c.RestartDelay},
		{"rotate seconds", c.RotateSeconds},
		{"rotate bytes", c.RotateBytesLow},
	} {
		if v.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", v.name))
		}
	}

	return errors.Join(errs...)
}

// ValidatePaths checks the filesystem-dependent fields on the local host.
func (c ServiceConfig) ValidatePaths() error {
	var errs []error
	if c.AppDirectory != "" {
		info, err := os.Stat(c.AppDirectory)
		if err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("app directory %q does not exist or is not a directory", c.AppDirectory))
		}
	}
	for _, p := range []struct{ stream, path string }{{"stdout", c.StdoutPath}, {"stderr", c.StderrPath}} {
		if p.path == "" {
			continue
		}
		dir := filepath.Dir(p.path)
		if dir == "." {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("directory for %s path %q does not exist", p.stream, p.path))
		}
	}
	return errors.Join(errs...)
}

func keys(m map[string]bool) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return strings.Join(out, ", ")
}
