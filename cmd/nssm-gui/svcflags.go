package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hongwen000/NSSM-GUI/internal/config"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

// serviceFlags binds every ServiceConfig setting to a command flag. Only
// flags the user set are applied, so edit keeps everything else.
type serviceFlags struct {
	displayName string
	description string
	application string
	arguments   string
	directory   string
	exitAction  string
	account     string
	password    string
	start       string
	serviceType string
	priority    string
	stdout      string
	stderr      string
	depends     []string
	env         map[string]string
	hooks       map[string]string

	killConsoleDelay int
	killWindowDelay  int
	killThreadsDelay int
	killProcessTree  bool
	throttle         int
	restartDelay     int
	rotate           bool
	rotateOnline     bool
	rotateSeconds    int
	rotateBytes      int
	hookShareOutput  bool

	fromFile string
}

func (f *serviceFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.displayName, "display-name", "", "display name")
	fs.StringVar(&f.description, "description", "", "service description")
	fs.StringVar(&f.application, "app", "", "application path")
	fs.StringVar(&f.arguments, "args", "", "application arguments")
	fs.StringVar(&f.directory, "dir", "", "startup directory")
	fs.StringVar(&f.exitAction, "exit-action", "", "default exit action: Restart, Ignore, Exit, Suicide")
	fs.StringVar(&f.account, "account", "", `log on account, e.g. LocalSystem or DOMAIN\user`)
	fs.StringVar(&f.password, "password", "", "password for a non-builtin account")
	fs.StringVar(&f.start, "start", "", "startup type, e.g. SERVICE_AUTO_START")
	fs.StringVar(&f.serviceType, "type", "", "service type, e.g. SERVICE_WIN32_OWN_PROCESS")
	fs.StringVar(&f.priority, "priority", "", "process priority class")
	fs.StringVar(&f.stdout, "stdout", "", "stdout log file")
	fs.StringVar(&f.stderr, "stderr", "", "stderr log file")
	fs.StringSliceVar(&f.depends, "depends", nil, "services this one depends on")
	fs.StringToStringVar(&f.env, "env", nil, "extra environment variables KEY=VALUE")
	fs.StringToStringVar(&f.hooks, "hook", nil, "event hooks Event/Action=command, e.g. Start/Pre=cmd.exe")
	fs.IntVar(&f.killConsoleDelay, "kill-console-delay", 0, "ms to wait after Ctrl+C")
	fs.IntVar(&f.killWindowDelay, "kill-window-delay", 0, "ms to wait after WM_CLOSE")
	fs.IntVar(&f.killThreadsDelay, "kill-threads-delay", 0, "ms to wait after WM_QUIT")
	fs.BoolVar(&f.killProcessTree, "kill-process-tree", false, "kill the whole process tree on stop")
	fs.IntVar(&f.throttle, "throttle", 0, "restart throttle in ms")
	fs.IntVar(&f.restartDelay, "restart-delay", 0, "delay before restart in ms")
	fs.BoolVar(&f.rotate, "rotate", false, "rotate output files")
	fs.BoolVar(&f.rotateOnline, "rotate-online", false, "rotate while the service runs")
	fs.IntVar(&f.rotateSeconds, "rotate-seconds", 0, "rotate files older than this many seconds")
	fs.IntVar(&f.rotateBytes, "rotate-bytes", 0, "rotate files larger than this many bytes")
	fs.BoolVar(&f.hookShareOutput, "hook-share-output", false, "let hooks write to the service's output files")
	fs.StringVar(&f.fromFile, "from-file", "", "read the service config from a JSON or YAML file")
}

// apply copies the flags the user set onto c.
func (f *serviceFlags) apply(fs *pflag.FlagSet, c *models.ServiceConfig) {
	str := map[string]*string{
		"display-name": &c.DisplayName,
		"description":  &c.Description,
		"app":          &c.ApplicationPath,
		"args":         &c.Arguments,
		"dir":          &c.AppDirectory,
		"exit-action":  &c.AppExit,
		"account":      &c.ObjectName,
		"password":     &c.Password,
		"start":        &c.Start,
		"type":         &c.Type,
		"priority":     &c.ProcessPriority,
		"stdout":       &c.StdoutPath,
		"stderr":       &c.StderrPath,
	}
	strVal := map[string]string{
		"display-name": f.displayName,
		"description":  f.description,
		"app":          f.application,
		"args":         f.arguments,
		"dir":          f.directory,
		"exit-action":  f.exitAction,
		"account":      f.account,
		"password":     f.password,
		"start":        f.start,
		"type":         f.serviceType,
		"priority":     f.priority,
		"stdout":       f.stdout,
		"stderr":       f.stderr,
	}
	for name, dst := range str {
		if fs.Changed(name) {
			*dst = strVal[name]
		}
	}

	ints := map[string]struct {
		dst *int
		val int
	}{
		"kill-console-delay": {&c.KillConsoleDelay, f.killConsoleDelay},
		"kill-window-delay":  {&c.KillWindowDelay, f.killWindowDelay},
		"kill-threads-delay": {&c.KillThreadsDelay, f.killThreadsDelay},
		"throttle":           {&c.ThrottleDelay, f.throttle},
		"restart-delay":      {&c.RestartDelay, f.restartDelay},
		"rotate-seconds":     {&c.RotateSeconds, f.rotateSeconds},
		"rotate-bytes":       {&c.RotateBytesLow, f.rotateBytes},
	}
	for name, v := range ints {
		if fs.Changed(name) {
			*v.dst = v.val
		}
	}

	bools := map[string]struct {
		dst *bool
		val bool
	}{
		"kill-process-tree": {&c.KillProcessTree, f.killProcessTree},
		"rotate":            {&c.RotateFiles, f.rotate},
		"rotate-online":     {&c.RotateOnline, f.rotateOnline},
		"hook-share-output": {&c.HookShareOutputHandles, f.hookShareOutput},
	}
	for name, v := range bools {
		if fs.Changed(name) {
			*v.dst = v.val
		}
	}

	if fs.Changed("depends") {
		c.Dependencies = append([]string(nil), f.depends...)
	}
	if fs.Changed("env") {
		c.EnvVariables = f.env
	}
	if fs.Changed("hook") {
		c.Hooks = f.hooks
	}
}

// readConfigFile loads a ServiceConfig from JSON, or YAML for .yaml/.yml.
func readConfigFile(path string) (models.ServiceConfig, error) {
	var c models.ServiceConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// applyConfigDefaults fills unset log paths, priority and exit action from
// the application config, as the install form does.
func applyConfigDefaults(c *models.ServiceConfig, conf *config.Config) {
	if c.StdoutPath == "" && conf.DefaultStdoutPath != "" {
		c.StdoutPath = config.ExpandServicePath(conf.DefaultStdoutPath, c.ServiceName)
	}
	if c.StderrPath == "" && conf.DefaultStderrPath != "" {
		c.StderrPath = config.ExpandServicePath(conf.DefaultStderrPath, c.ServiceName)
	}
	if c.ProcessPriority == "" {
		c.ProcessPriority = conf.DefaultPriority
	}
	if c.AppExit == "" {
		c.AppExit = conf.DefaultExitAction
	}
}
