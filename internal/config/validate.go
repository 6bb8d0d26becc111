package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validPriorities = map[string]bool{
	"REALTIME_PRIORITY_CLASS":     true,
	"HIGH_PRIORITY_CLASS":         true,
	"ABOVE_NORMAL_PRIORITY_CLASS": true,
	"NORMAL_PRIORITY_CLASS":       true,
	"BELOW_NORMAL_PRIORITY_CLASS": true,
	"IDLE_PRIORITY_CLASS":         true,
}

var validExitActions = map[string]bool{
	"Restart": true,
	"Ignore":  true,
	"Exit":    true,
	"Suicide": true,
}

// ValidationResult separates errors that must stop startup from values
// that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config. Out-of-range numbers are clamped and
// unknown enum values reset to defaults; both are reported as warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult
	warn := func(format string, args ...any) {
		r.Warnings = append(r.Warnings, fmt.Errorf(format, args...))
	}

	if c.NSSMDownloadURL != "" {
		u, err := url.Parse(c.NSSMDownloadURL)
		if err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("nssm_download_url %q is not a valid URL: %w", c.NSSMDownloadURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			r.Fatals = append(r.Fatals, fmt.Errorf("nssm_download_url scheme must be http or https, got %q", u.Scheme))
		}
	}

	if c.DashboardAddr != "" && !strings.HasPrefix(c.DashboardAddr, "pipe:") {
		if _, _, err := net.SplitHostPort(c.DashboardAddr); err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("dashboard_addr %q is not host:port or pipe:<name>: %w", c.DashboardAddr, err))
		}
	}

	c.RefreshIntervalSeconds = clamp(c.RefreshIntervalSeconds, 1, 3600, "refresh_interval_seconds", warn)
	c.MonitoringIntervalSeconds = clamp(c.MonitoringIntervalSeconds, 1, 3600, "monitoring_interval_seconds", warn)
	c.MonitorHistorySize = clamp(c.MonitorHistorySize, 2, 10000, "monitor_history_size", warn)
	c.CommandTimeoutSeconds = clamp(c.CommandTimeoutSeconds, 1, 3600, "command_timeout_seconds", warn)
	c.MaxConcurrentCommands = clamp(c.MaxConcurrentCommands, 1, 100, "max_concurrent_commands", warn)
	c.CommandQueueSize = clamp(c.CommandQueueSize, 1, 10000, "command_queue_size", warn)
	c.DashboardMaxConns = clamp(c.DashboardMaxConns, 1, 10000, "dashboard_max_conns", warn)
	c.LogMaxSizeMB = clamp(c.LogMaxSizeMB, 1, 1024, "log_max_size_mb", warn)
	c.LogMaxBackups = clamp(c.LogMaxBackups, 1, 100, "log_max_backups", warn)
	c.BackupKeep = clamp(c.BackupKeep, 1, 1000, "backup_keep", warn)
	c.MaxRecentServices = clamp(c.MaxRecentServices, 1, 100, "max_recent_services", warn)

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		warn("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		warn("log_format %q is not valid (use text or json)", c.LogFormat)
	}

	if !validPriorities[c.DefaultPriority] {
		warn("default_priority %q is not a priority class, using NORMAL_PRIORITY_CLASS", c.DefaultPriority)
		c.DefaultPriority = "NORMAL_PRIORITY_CLASS"
	}
	if !validExitActions[c.DefaultExitAction] {
		warn("default_exit_action %q is not one of Restart, Ignore, Exit, Suicide; using Restart", c.DefaultExitAction)
		c.DefaultExitAction = "Restart"
	}

	return r
}

// Validate checks the config for invalid values and returns all errors found.
// Dangerous values are clamped to safe defaults. Errors are logged as warnings.
func (c *Config) Validate() []error {
	errs := c.ValidateTiered().AllErrors()
	for _, err := range errs {
		log.Warn("config validation", "error", err.Error())
	}
	return errs
}

func clamp(v, lo, hi int, key string, warn func(string, ...any)) int {
	if v < lo {
		warn("%s %d is below minimum %d, clamping", key, v, lo)
		return lo
	}
	if v > hi {
		warn("%s %d exceeds maximum %d, clamping", key, v, hi)
		return hi
	}
	return v
}
