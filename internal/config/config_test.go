package config

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MonitoringIntervalSeconds != 5 {
		t.Fatalf("MonitoringIntervalSeconds = %d, want 5", cfg.MonitoringIntervalSeconds)
	}
	if !cfg.BackupServiceConfigs {
		t.Fatal("backups should default to on")
	}
	if cfg.Dir != dir {
		t.Fatalf("Dir = %q, want %q", cfg.Dir, dir)
	}
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Dir = dir
	cfg.NSSMPath = `C:\tools\nssm.exe`
	cfg.MonitoringIntervalSeconds = 11
	cfg.ConfirmActions = false
	cfg.RecentServices = []string{"svc-b", "svc-a"}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Fatalf("config mode = %o, want 600", perm)
		}
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NSSMPath != cfg.NSSMPath {
		t.Fatalf("NSSMPath = %q", loaded.NSSMPath)
	}
	if loaded.MonitoringIntervalSeconds != 11 {
		t.Fatalf("MonitoringIntervalSeconds = %d", loaded.MonitoringIntervalSeconds)
	}
	if loaded.ConfirmActions {
		t.Fatal("ConfirmActions should be false after reload")
	}
	if !slices.Equal(loaded.RecentServices, cfg.RecentServices) {
		t.Fatalf("RecentServices = %v", loaded.RecentServices)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Dir = dir
	cfg.CommandTimeoutSeconds = 30
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NSSMGUI_COMMAND_TIMEOUT_SECONDS", "90")
	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.CommandTimeoutSeconds != 90 {
		t.Fatalf("CommandTimeoutSeconds = %d, want 90 from env", loaded.CommandTimeoutSeconds)
	}
}

func TestOverridesAreNotSaved(t *testing.T) {
	dir := t.TempDir()
	base := Default()
	base.Dir = dir
	base.LogLevel = "warn"
	base.CommandTimeoutSeconds = 30
	if err := base.Save(); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NSSMGUI_COMMAND_TIMEOUT_SECONDS", "90")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Override("no_admin_check", true); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Override("log_level", "debug"); err != nil {
		t.Fatal(err)
	}
	if !cfg.NoAdminCheck || cfg.LogLevel != "debug" || cfg.CommandTimeoutSeconds != 90 {
		t.Fatalf("live config = %+v", cfg)
	}
	cfg.AddRecentService("web")
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	onDisk, err := loadFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.NoAdminCheck {
		t.Fatal("no_admin_check flag override was persisted")
	}
	if onDisk.LogLevel != "warn" {
		t.Fatalf("log_level = %q, want file value warn", onDisk.LogLevel)
	}
	if onDisk.CommandTimeoutSeconds != 30 {
		t.Fatalf("command_timeout_seconds = %d, want file value 30", onDisk.CommandTimeoutSeconds)
	}
	if !slices.Equal(onDisk.RecentServices, []string{"web"}) {
		t.Fatalf("RecentServices = %v", onDisk.RecentServices)
	}
}

func TestSetReplacesOverride(t *testing.T) {
	cfg := Default()
	cfg.Dir = t.TempDir()
	if err := cfg.Override("log_format", "json"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("log_format", "json"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}
	onDisk, err := loadFile(cfg.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.LogFormat != "json" {
		t.Fatalf("LogFormat = %q, want explicit set to persist", onDisk.LogFormat)
	}
	if err := cfg.Override("bogus", 1); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestDotEnvIsApplied(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("NSSMGUI_DASHBOARD_ADDR=127.0.0.1:9999\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("NSSMGUI_DASHBOARD_ADDR") })

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DashboardAddr != "127.0.0.1:9999" {
		t.Fatalf("DashboardAddr = %q", cfg.DashboardAddr)
	}
}

func TestSetParsesTypedValues(t *testing.T) {
	cfg := Default()
	cfg.Dir = t.TempDir()

	if err := cfg.Set("monitoring_interval_seconds", "15"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("backup_service_configs", "false"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("recent_services", "a, b"); err != nil {
		t.Fatal(err)
	}
	if cfg.MonitoringIntervalSeconds != 15 {
		t.Fatalf("MonitoringIntervalSeconds = %d", cfg.MonitoringIntervalSeconds)
	}
	if cfg.BackupServiceConfigs {
		t.Fatal("BackupServiceConfigs should be false")
	}
	if !slices.Equal(cfg.RecentServices, []string{"a", "b"}) {
		t.Fatalf("RecentServices = %v", cfg.RecentServices)
	}
	if err := cfg.Set("no_such_key", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestAddRecentService(t *testing.T) {
	cfg := Default()
	cfg.MaxRecentServices = 3
	for _, name := range []string{"a", "b", "c", "a", "d"} {
		cfg.AddRecentService(name)
	}
	want := []string{"d", "a", "c"}
	if got := cfg.Recent(); !slices.Equal(got, want) {
		t.Fatalf("Recent() = %v, want %v", got, want)
	}
}

func TestExpandServicePath(t *testing.T) {
	t.Setenv("NSSMGUI_TEST_TEMP", "/tmp/x")
	got := ExpandServicePath("${NSSMGUI_TEST_TEMP}/${SERVICE_NAME}_stdout.log", "web")
	if got != "/tmp/x/web_stdout.log" {
		t.Fatalf("got %q", got)
	}
	got = ExpandServicePath("${NSSMGUI_DEFINITELY_UNSET}/${SERVICE_NAME}.log", "web")
	if got != "${NSSMGUI_DEFINITELY_UNSET}/web.log" {
		t.Fatalf("unset variable should be kept, got %q", got)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.Dir = filepath.Join("base")
	if got := cfg.BackupDir(); got != filepath.Join("base", "backups") {
		t.Fatalf("BackupDir = %q", got)
	}
	cfg.BackupDirectory = filepath.Join("elsewhere")
	if got := cfg.BackupDir(); got != "elsewhere" {
		t.Fatalf("BackupDir override = %q", got)
	}
	if got := cfg.LogPath(); got != filepath.Join("base", "logs", "nssm-gui.log") {
		t.Fatalf("LogPath = %q", got)
	}
	if got := cfg.TemplatesDir(); got != filepath.Join("base", "templates") {
		t.Fatalf("TemplatesDir = %q", got)
	}
}
