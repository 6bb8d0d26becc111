package nssm

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

func TestSplitCommandLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", `nssm.exe set web Start SERVICE_AUTO_START`, []string{"nssm.exe", "set", "web", "Start", "SERVICE_AUTO_START"}},
		{"quoted spaces", `nssm.exe install web "C:\Program Files\web.exe"`, []string{"nssm.exe", "install", "web", `C:\Program Files\web.exe`}},
		{"empty quoted", `nssm.exe set web ObjectName LocalSystem ""`, []string{"nssm.exe", "set", "web", "ObjectName", "LocalSystem", ""}},
		{"escaped quote", `a "say \"hi\""`, []string{"a", `say "hi"`}},
		{"doubled quote", `a "say ""hi"""`, []string{"a", `say "hi"`}},
		{"trailing backslashes", `a "C:\dir\\" b`, []string{"a", `C:\dir\`, "b"}},
		{"literal backslashes", `a C:\x\y\`, []string{"a", `C:\x\y\`}},
		{"caret is literal", `a ^b "c^d"`, []string{"a", "^b", "c^d"}},
		{"tabs and runs", "a \t  b", []string{"a", "b"}},
		{"adjacent quoted", `a"b c"d`, []string{"ab cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitCommandLine(tt.in)
			if err != nil {
				t.Fatalf("SplitCommandLine: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitCommandLineUnterminated(t *testing.T) {
	if _, err := SplitCommandLine(`a "b c`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestQuoteArgRoundTrip(t *testing.T) {
	args := []string{
		"",
		"simple",
		"with space",
		`C:\Program Files\`,
		`quote"inside`,
		`\\server\share\`,
		`ends with \"`,
		"tab\there",
	}
	line := FormatCommand(args)
	got, err := SplitCommandLine(line)
	if err != nil {
		t.Fatalf("SplitCommandLine(%q): %v", line, err)
	}
	if !slices.Equal(got, args) {
		t.Fatalf("round trip of %q:\n got %q\nwant %q", line, got, args)
	}
}

const realisticDump = `C:\tools\nssm.exe install web "C:\Program Files\Web\web.exe"
C:\tools\nssm.exe set web AppParameters "--port 8080 --name \"prod\""
C:\tools\nssm.exe set web AppDirectory "C:\Program Files\Web"
C:\tools\nssm.exe set web AppExit Default Restart
C:\tools\nssm.exe set web AppExit 2 Exit
C:\tools\nssm.exe set web AppStdout C:\logs\web.out
C:\tools\nssm.exe set web DisplayName "Web Server"
C:\tools\nssm.exe set web ObjectName LocalSystem
C:\tools\nssm.exe set web Start SERVICE_DELAYED_AUTO_START
C:\tools\nssm.exe set web Type SERVICE_WIN32_OWN_PROCESS
C:\tools\nssm.exe set web AppEnvironmentExtra PORT=8080
C:\tools\nssm.exe set web AppEnvironmentExtra +MODE=prod
C:\tools\nssm.exe set web AppThrottle 1500
C:\tools\nssm.exe set web AppEvents Start/Pre "cmd /c echo starting"
C:\tools\nssm.exe set web DependOnService Tcpip
C:\tools\nssm.exe set web AppAffinity All
C:\tools\nssm.exe set web AppThrottle "unterminated

`

func TestParseDumpRealistic(t *testing.T) {
	got, err := ParseDump(realisticDump)
	if err != nil {
		t.Fatalf("ParseDump: %v", err)
	}
	want := models.ServiceConfig{
		ServiceName:     "web",
		ApplicationPath: `C:\Program Files\Web\web.exe`,
		Arguments:       `--port 8080 --name "prod"`,
		AppDirectory:    `C:\Program Files\Web`,
		AppExit:         "Restart",
		StdoutPath:      `C:\logs\web.out`,
		DisplayName:     "Web Server",
		ObjectName:      "LocalSystem",
		Start:           models.StartDelayedAuto,
		Type:            models.TypeOwnProcess,
		EnvVariables:    map[string]string{"PORT": "8080", "MODE": "prod"},
		ThrottleDelay:   1500,
		Hooks:           map[string]string{"Start/Pre": "cmd /c echo starting"},
		Dependencies:    []string{"Tcpip"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseDump\n got: %+v\nwant: %+v", got, want)
	}
}

func TestParseDumpLegacyAliases(t *testing.T) {
	dump := `nssm.exe install old C:\old.exe
nssm.exe set old KillConsoleDelay 3000
nssm.exe set old KillProcessTree 1
nssm.exe set old ThrottleDelay 2500
nssm.exe set old RotateFiles 1
nssm.exe set old RotateBytesLow 4096
nssm.exe set old HookShareOutputHandles 1
nssm.exe set old Hook_Start/Post "notify.exe up"
nssm.exe set old DependOnService + Tcpip
nssm.exe set old DependOnService + Dnscache
nssm.exe set old AppEnvironmentExtra +A=1
nssm.exe set old AppEnvironmentExtra +B=2
`
	got, err := ParseDump(dump)
	if err != nil {
		t.Fatalf("ParseDump: %v", err)
	}
	if got.KillConsoleDelay != 3000 || !got.KillProcessTree || got.ThrottleDelay != 2500 {
		t.Errorf("shutdown/throttle aliases not applied: %+v", got)
	}
	if !got.RotateFiles || got.RotateBytesLow != 4096 || !got.HookShareOutputHandles {
		t.Errorf("rotation/hook aliases not applied: %+v", got)
	}
	if got.Hooks["Start/Post"] != "notify.exe up" {
		t.Errorf("Hooks = %v", got.Hooks)
	}
	if !slices.Equal(got.Dependencies, []string{"Tcpip", "Dnscache"}) {
		t.Errorf("Dependencies = %v", got.Dependencies)
	}
	if !reflect.DeepEqual(got.EnvVariables, map[string]string{"A": "1", "B": "2"}) {
		t.Errorf("EnvVariables = %v", got.EnvVariables)
	}
}

func TestParseDumpEmpty(t *testing.T) {
	if _, err := ParseDump("\r\n\r\n"); !errors.Is(err, ErrNoService) {
		t.Fatalf("expected ErrNoService, got %v", err)
	}
}

func TestParseCommandsReportsMalformed(t *testing.T) {
	_, err := ParseCommands([][]string{
		{"install", "svc", `C:\a.exe`},
		{"set", "svc", "AppThrottle", "soon"},
	})
	if err == nil {
		t.Fatal("expected error for non-numeric throttle")
	}
}

func TestParseCommandsRejectsMixedServices(t *testing.T) {
	_, err := ParseCommands([][]string{
		{"install", "one", `C:\a.exe`},
		{"set", "two", "DisplayName", "Two"},
	})
	if err == nil {
		t.Fatal("expected error for commands naming two services")
	}
}

func TestParseCommandsReset(t *testing.T) {
	got, err := ParseCommands([][]string{
		{"set", "svc", "DisplayName", "Svc"},
		{"set", "svc", "AppEvents", "Exit/Post", "x.exe"},
		{"set", "svc", "AppEvents", "Start/Pre", "y.exe"},
		{"reset", "svc", "DisplayName"},
		{"reset", "svc", "AppEvents", "Exit/Post"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != "" {
		t.Errorf("DisplayName = %q after reset", got.DisplayName)
	}
	if !reflect.DeepEqual(got.Hooks, map[string]string{"Start/Pre": "y.exe"}) {
		t.Errorf("Hooks = %v", got.Hooks)
	}
}

func TestNormalizeState(t *testing.T) {
	tests := map[string]string{
		"SERVICE_RUNNING\r\n":      models.StateRunning,
		"SERVICE_STOPPED":          models.StateStopped,
		"SERVICE_PAUSED":           models.StatePaused,
		"SERVICE_START_PENDING":    models.StateStarting,
		"SERVICE_STOP_PENDING":     models.StateStopping,
		"something else entirely": models.StateUnknown,
	}
	for in, want := range tests {
		if got := NormalizeState(in); got != want {
			t.Errorf("NormalizeState(%q) = %q, want %q", in, got, want)
		}
	}
}
