package nssm

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

// NSSM parameter names as accepted by "nssm set".
const (
	ParamApplication      = "Application"
	ParamAppParameters    = "AppParameters"
	ParamAppDirectory     = "AppDirectory"
	ParamAppExit          = "AppExit"
	ParamDisplayName      = "DisplayName"
	ParamDescription      = "Description"
	ParamObjectName       = "ObjectName"
	ParamStart            = "Start"
	ParamType             = "Type"
	ParamAppPriority      = "AppPriority"
	ParamAppStdout        = "AppStdout"
	ParamAppStderr        = "AppStderr"
	ParamDependOnService  = "DependOnService"
	ParamAppEnvironment   = "AppEnvironmentExtra"
	ParamStopConsole      = "AppStopMethodConsole"
	ParamStopWindow       = "AppStopMethodWindow"
	ParamStopThreads      = "AppStopMethodThreads"
	ParamKillProcessTree  = "AppKillProcessTree"
	ParamAppThrottle      = "AppThrottle"
	ParamAppRestartDelay  = "AppRestartDelay"
	ParamAppRotateFiles   = "AppRotateFiles"
	ParamAppRotateOnline  = "AppRotateOnline"
	ParamAppRotateSeconds = "AppRotateSeconds"
	ParamAppRotateBytes   = "AppRotateBytes"
	ParamAppRedirectHook  = "AppRedirectHook"
	ParamAppEvents        = "AppEvents"

	exitDefault = "Default"
)

// InstallCommands returns the argument vectors that create c from scratch:
// "install <name> <application>" followed by one "set" per configured
// setting. Empty strings and zero delays are left to NSSM's defaults.
func InstallCommands(c models.ServiceConfig) [][]string {
	cmds := [][]string{{"install", c.ServiceName, c.ApplicationPath}}
	return append(cmds, settingCommands(c, false)...)
}

// EditCommands returns the argument vectors that make an existing service
// match c. Empty optional values emit "reset" so the edit applies fully.
func EditCommands(c models.ServiceConfig) [][]string {
	cmds := [][]string{{"set", c.ServiceName, ParamApplication, c.ApplicationPath}}
	return append(cmds, settingCommands(c, true)...)
}

// HookResetCommands resets hooks present in prev but absent from next.
// Hooks cannot be cleared wholesale, so edits that drop a hook need these.
func HookResetCommands(prev, next models.ServiceConfig) [][]string {
	var cmds [][]string
	for _, event := range sortedKeys(prev.Hooks) {
		if next.Hooks[event] == "" {
			cmds = append(cmds, []string{"reset", next.ServiceName, ParamAppEvents, event})
		}
	}
	return cmds
}

// RemoveCommands stops the service and then removes it without prompting.
// A failure of the first command is expected when the service is stopped.
func RemoveCommands(name string) [][]string {
	return [][]string{
		{"stop", name},
		{"remove", name, "confirm"},
	}
}

// ControlCommand builds "<op> <name>" for start, stop, restart, pause,
// continue, status and rotate.
func ControlCommand(op, name string) []string {
	return []string{op, name}
}

func settingCommands(c models.ServiceConfig, edit bool) [][]string {
	name := c.ServiceName
	var cmds [][]string

	set := func(param string, values ...string) {
		cmds = append(cmds, append([]string{"set", name, param}, values...))
	}
	reset := func(param string) {
		if edit {
			cmds = append(cmds, []string{"reset", name, param})
		}
	}
	str := func(param, value string) {
		if value != "" {
			set(param, value)
		} else {
			reset(param)
		}
	}
	num := func(param string, value int) {
		if value != 0 {
			set(param, strconv.Itoa(value))
		} else {
			reset(param)
		}
	}
	flag := func(param string, value bool) {
		set(param, boolArg(value))
	}

	str(ParamAppParameters, c.Arguments)
	str(ParamAppDirectory, c.AppDirectory)
	if c.AppExit != "" {
		set(ParamAppExit, exitDefault, c.AppExit)
	} else {
		reset(ParamAppExit)
	}
	str(ParamDisplayName, c.DisplayName)
	str(ParamDescription, c.Description)
	if c.ObjectName != "" {
		if c.Password != "" {
			set(ParamObjectName, c.ObjectName, c.Password)
		} else {
			set(ParamObjectName, c.ObjectName)
		}
	} else {
		reset(ParamObjectName)
	}
	str(ParamStart, c.Start)
	str(ParamType, c.Type)
	str(ParamAppPriority, c.ProcessPriority)
	str(ParamAppStdout, c.StdoutPath)
	str(ParamAppStderr, c.StderrPath)

	if len(c.Dependencies) > 0 {
		set(ParamDependOnService, c.Dependencies...)
	} else {
		reset(ParamDependOnService)
	}

	if len(c.EnvVariables) > 0 {
		env := make([]string, 0, len(c.EnvVariables))
		for _, k := range sortedKeys(c.EnvVariables) {
			env = append(env, k+"="+c.EnvVariables[k])
		}
		set(ParamAppEnvironment, env...)
	} else {
		reset(ParamAppEnvironment)
	}

	num(ParamStopConsole, c.KillConsoleDelay)
	num(ParamStopWindow, c.KillWindowDelay)
	num(ParamStopThreads, c.KillThreadsDelay)
	flag(ParamKillProcessTree, c.KillProcessTree)
	num(ParamAppThrottle, c.ThrottleDelay)
	num(ParamAppRestartDelay, c.RestartDelay)

	flag(ParamAppRotateFiles, c.RotateFiles)
	flag(ParamAppRotateOnline, c.RotateOnline)
	num(ParamAppRotateSeconds, c.RotateSeconds)
	num(ParamAppRotateBytes, c.RotateBytesLow)

	flag(ParamAppRedirectHook, c.HookShareOutputHandles)
	for _, event := range sortedKeys(c.Hooks) {
		if cmd := c.Hooks[event]; cmd != "" {
			set(ParamAppEvents, event, cmd)
		}
	}

	return cmds
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatCommand renders an argument vector as a Windows command line, the
// inverse of SplitCommandLine.
func FormatCommand(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = QuoteArg(a)
	}
	return strings.Join(quoted, " ")
}
