package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredInvalidDownloadURLIsFatal(t *testing.T) {
	cfg := Default()
	cfg.NSSMDownloadURL = "ftp://example.com/nssm.zip"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("non-http download URL should be fatal")
	}
}

func TestValidateTieredBadDashboardAddrIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DashboardAddr = "localhost"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("address without port should be fatal")
	}
}

func TestValidateTieredPipeDashboardAddrIsAccepted(t *testing.T) {
	cfg := Default()
	cfg.DashboardAddr = `pipe:\\.\pipe\nssm-gui`
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("pipe address should be accepted: %v", result.Fatals)
	}
}

func TestValidateTieredIntervalClampingIsWarning(t *testing.T) {
	tests := []struct {
		name  string
		set   func(*Config)
		check func(*Config) int
		want  int
	}{
		{"monitoring below", func(c *Config) { c.MonitoringIntervalSeconds = 0 }, func(c *Config) int { return c.MonitoringIntervalSeconds }, 1},
		{"monitoring above", func(c *Config) { c.MonitoringIntervalSeconds = 9999 }, func(c *Config) int { return c.MonitoringIntervalSeconds }, 3600},
		{"refresh below", func(c *Config) { c.RefreshIntervalSeconds = -5 }, func(c *Config) int { return c.RefreshIntervalSeconds }, 1},
		{"history below", func(c *Config) { c.MonitorHistorySize = 0 }, func(c *Config) int { return c.MonitorHistorySize }, 2},
		{"timeout above", func(c *Config) { c.CommandTimeoutSeconds = 100000 }, func(c *Config) int { return c.CommandTimeoutSeconds }, 3600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.set(cfg)
			result := cfg.ValidateTiered()
			if result.HasFatals() {
				t.Fatalf("clamped value should be warning, not fatal: %v", result.Fatals)
			}
			if len(result.Warnings) == 0 {
				t.Fatal("expected warning for clamped value")
			}
			if got := tt.check(cfg); got != tt.want {
				t.Fatalf("got %d, want %d (clamped)", got, tt.want)
			}
		})
	}
}

func TestValidateTieredConcurrencyClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentCommands = 0
	cfg.CommandQueueSize = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped concurrency should be warning: %v", result.Fatals)
	}
	if cfg.MaxConcurrentCommands != 1 {
		t.Fatalf("MaxConcurrentCommands = %d, want 1", cfg.MaxConcurrentCommands)
	}
	if cfg.CommandQueueSize != 1 {
		t.Fatalf("CommandQueueSize = %d, want 1", cfg.CommandQueueSize)
	}
}

func TestValidateTieredResetsUnknownDefaults(t *testing.T) {
	cfg := Default()
	cfg.DefaultPriority = "TURBO"
	cfg.DefaultExitAction = "Explode"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("unexpected fatals: %v", result.Fatals)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", result.Warnings)
	}
	if cfg.DefaultPriority != "NORMAL_PRIORITY_CLASS" {
		t.Fatalf("DefaultPriority = %q", cfg.DefaultPriority)
	}
	if cfg.DefaultExitAction != "Restart" {
		t.Fatalf("DefaultExitAction = %q", cfg.DefaultExitAction)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "xml") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about log format")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.NSSMDownloadURL = "ftp://bad" // fatal
	cfg.LogFormat = "xml"             // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}
