package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/hongwen000/NSSM-GUI/internal/config"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, "Proceed?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Proceed? [y/N]") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestServiceFlagsApplyOnlyChanged(t *testing.T) {
	var f serviceFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)

	err := fs.Parse([]string{
		"--app", `C:\app\server.exe`,
		"--throttle", "2500",
		"--kill-process-tree=false",
		"--depends", "Tcpip,Dnscache",
		"--env", "PORT=8080",
		"--hook", "Start/Pre=cmd.exe /c echo",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	c := models.ServiceConfig{
		ServiceName:     "web",
		DisplayName:     "Web",
		ApplicationPath: `C:\old.exe`,
		KillProcessTree: true,
		RestartDelay:    100,
	}
	f.apply(fs, &c)

	if c.ApplicationPath != `C:\app\server.exe` {
		t.Errorf("ApplicationPath = %q", c.ApplicationPath)
	}
	if c.DisplayName != "Web" {
		t.Errorf("DisplayName changed to %q", c.DisplayName)
	}
	if c.ThrottleDelay != 2500 {
		t.Errorf("ThrottleDelay = %d", c.ThrottleDelay)
	}
	if c.RestartDelay != 100 {
		t.Errorf("RestartDelay changed to %d", c.RestartDelay)
	}
	if c.KillProcessTree {
		t.Error("KillProcessTree should be false")
	}
	if len(c.Dependencies) != 2 || c.Dependencies[0] != "Tcpip" || c.Dependencies[1] != "Dnscache" {
		t.Errorf("Dependencies = %v", c.Dependencies)
	}
	if c.EnvVariables["PORT"] != "8080" {
		t.Errorf("EnvVariables = %v", c.EnvVariables)
	}
	if c.Hooks["Start/Pre"] != "cmd.exe /c echo" {
		t.Errorf("Hooks = %v", c.Hooks)
	}
}

func TestReadConfigFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "svc.json")
	if err := os.WriteFile(jsonPath, []byte(`{"serviceName":"api","applicationPath":"C:\\api.exe","throttleDelay":1500}`), 0o600); err != nil {
		t.Fatal(err)
	}
	yamlPath := filepath.Join(dir, "svc.yaml")
	if err := os.WriteFile(yamlPath, []byte("serviceName: worker\napplicationPath: C:\\worker.exe\nrestartDelay: 30\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := readConfigFile(jsonPath)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if c.ServiceName != "api" || c.ApplicationPath != `C:\api.exe` || c.ThrottleDelay != 1500 {
		t.Errorf("json config = %+v", c)
	}

	c, err = readConfigFile(yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if c.ServiceName != "worker" || c.ApplicationPath != `C:\worker.exe` || c.RestartDelay != 30 {
		t.Errorf("yaml config = %+v", c)
	}

	if _, err := readConfigFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	conf := config.Default()
	conf.DefaultStdoutPath = `C:\logs\${SERVICE_NAME}.out.log`
	conf.DefaultStderrPath = ""
	conf.DefaultPriority = models.PriorityHigh
	conf.DefaultExitAction = models.ExitIgnore

	c := models.ServiceConfig{ServiceName: "web", StderrPath: `D:\err.log`}
	applyConfigDefaults(&c, conf)

	if c.StdoutPath != `C:\logs\web.out.log` {
		t.Errorf("StdoutPath = %q", c.StdoutPath)
	}
	if c.StderrPath != `D:\err.log` {
		t.Errorf("StderrPath = %q", c.StderrPath)
	}
	if c.ProcessPriority != models.PriorityHigh {
		t.Errorf("ProcessPriority = %q", c.ProcessPriority)
	}
	if c.AppExit != models.ExitIgnore {
		t.Errorf("AppExit = %q", c.AppExit)
	}
}

func TestFormatDetails(t *testing.T) {
	if got := formatDetails(nil); got != "" {
		t.Errorf("formatDetails(nil) = %q", got)
	}
	got := formatDetails(map[string]any{"result": "success", "action": "start", "durationMs": 12})
	if got != "action=start durationMs=12 result=success" {
		t.Errorf("formatDetails = %q", got)
	}
}

func TestLocalTimeFallsBack(t *testing.T) {
	if got := localTime("not-a-time"); got != "not-a-time" {
		t.Errorf("localTime = %q", got)
	}
}

func TestHumanRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 << 20, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := humanRate(tt.in); got != tt.want {
			t.Errorf("humanRate(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFlagOverridesNotSaved(t *testing.T) {
	dir := t.TempDir()
	prevDir, prevCfg := configDir, cfg
	t.Cleanup(func() {
		configDir, cfg = prevDir, prevCfg
		noAdminCheck = false
		if f := rootCmd.PersistentFlags().Lookup("no-admin-check"); f != nil {
			f.Changed = false
		}
	})

	if err := rootCmd.ParseFlags([]string{"--config-dir", dir, "--no-admin-check"}); err != nil {
		t.Fatal(err)
	}
	if err := loadConfig(); err != nil {
		t.Fatal(err)
	}
	if !cfg.NoAdminCheck {
		t.Fatal("flag should apply to the running config")
	}
	cfg.AddRecentService("web")
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.NoAdminCheck {
		t.Fatal("--no-admin-check was written to config.yaml")
	}
	if got := reloaded.Recent(); len(got) != 1 || got[0] != "web" {
		t.Fatalf("recent = %v", got)
	}
}
