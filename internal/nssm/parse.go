package nssm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

// ErrNoService is returned when parsed commands never name a service.
var ErrNoService = errors.New("no service name found")

// errUnknownParam marks a parameter this tool does not model.
var errUnknownParam = errors.New("unknown parameter")

type param struct {
	set   func(c *models.ServiceConfig, values []string) error
	reset func(c *models.ServiceConfig, values []string)
}

// legacyParams maps names written by older tooling to NSSM's own names.
var legacyParams = map[string]string{
	"killconsoledelay":       ParamStopConsole,
	"killwindowdelay":        ParamStopWindow,
	"killthreadsdelay":       ParamStopThreads,
	"killprocesstree":        ParamKillProcessTree,
	"throttledelay":          ParamAppThrottle,
	"restartdelay":           ParamAppRestartDelay,
	"rotatefiles":            ParamAppRotateFiles,
	"rotateonline":           ParamAppRotateOnline,
	"rotateseconds":          ParamAppRotateSeconds,
	"rotatebyteslow":         ParamAppRotateBytes,
	"hookshareoutputhandles": ParamAppRedirectHook,
}

var params = map[string]param{}

func init() {
	strParam := func(name string, field func(*models.ServiceConfig) *string) {
		params[strings.ToLower(name)] = param{
			set: func(c *models.ServiceConfig, v []string) error {
				*field(c) = strings.Join(v, " ")
				return nil
			},
			reset: func(c *models.ServiceConfig, _ []string) { *field(c) = "" },
		}
	}
	intParam := func(name string, field func(*models.ServiceConfig) *int) {
		params[strings.ToLower(name)] = param{
			set: func(c *models.ServiceConfig, v []string) error {
				n, err := strconv.Atoi(strings.TrimSpace(v[0]))
				if err != nil {
					return fmt.Errorf("%s: %q is not a number", name, v[0])
				}
				*field(c) = n
				return nil
			},
			reset: func(c *models.ServiceConfig, _ []string) { *field(c) = 0 },
		}
	}
	boolParam := func(name string, field func(*models.ServiceConfig) *bool) {
		params[strings.ToLower(name)] = param{
			set: func(c *models.ServiceConfig, v []string) error {
				b, err := strconv.ParseBool(strings.TrimSpace(v[0]))
				if err != nil {
					return fmt.Errorf("%s: %q is not 0 or 1", name, v[0])
				}
				*field(c) = b
				return nil
			},
			reset: func(c *models.ServiceConfig, _ []string) { *field(c) = false },
		}
	}

	strParam(ParamApplication, func(c *models.ServiceConfig) *string { return &c.ApplicationPath })
	strParam(ParamAppParameters, func(c *models.ServiceConfig) *string { return &c.Arguments })
	strParam(ParamAppDirectory, func(c *models.ServiceConfig) *string { return &c.AppDirectory })
	strParam(ParamDisplayName, func(c *models.ServiceConfig) *string { return &c.DisplayName })
	strParam(ParamDescription, func(c *models.ServiceConfig) *string { return &c.Description })
	strParam(ParamStart, func(c *models.ServiceConfig) *string { return &c.Start })
	strParam(ParamType, func(c *models.ServiceConfig) *string { return &c.Type })
	strParam(ParamAppPriority, func(c *models.ServiceConfig) *string { return &c.ProcessPriority })
	strParam(ParamAppStdout, func(c *models.ServiceConfig) *string { return &c.StdoutPath })
	strParam(ParamAppStderr, func(c *models.ServiceConfig) *string { return &c.StderrPath })

	intParam(ParamStopConsole, func(c *models.ServiceConfig) *int { return &c.KillConsoleDelay })
	intParam(ParamStopWindow, func(c *models.ServiceConfig) *int { return &c.KillWindowDelay })
	intParam(ParamStopThreads, func(c *models.ServiceConfig) *int { return &c.KillThreadsDelay })
	intParam(ParamAppThrottle, func(c *models.ServiceConfig) *int { return &c.ThrottleDelay })
	intParam(ParamAppRestartDelay, func(c *models.ServiceConfig) *int { return &c.RestartDelay })
	intParam(ParamAppRotateSeconds, func(c *models.ServiceConfig) *int { return &c.RotateSeconds })
	intParam(ParamAppRotateBytes, func(c *models.ServiceConfig) *int { return &c.RotateBytesLow })

	boolParam(ParamKillProcessTree, func(c *models.ServiceConfig) *bool { return &c.KillProcessTree })
	boolParam(ParamAppRotateFiles, func(c *models.ServiceConfig) *bool { return &c.RotateFiles })
	boolParam(ParamAppRotateOnline, func(c *models.ServiceConfig) *bool { return &c.RotateOnline })
	boolParam(ParamAppRedirectHook, func(c *models.ServiceConfig) *bool { return &c.HookShareOutputHandles })

	params[strings.ToLower(ParamAppExit)] = param{
		set: func(c *models.ServiceConfig, v []string) error {
			switch {
			case len(v) == 1:
				c.AppExit = v[0]
			case strings.EqualFold(v[0], exitDefault):
				c.AppExit = v[1]
			default:
				// Per-exit-code actions are not modelled.
				log.Debug("ignoring exit code action", "exitCode", v[0], "action", v[1])
			}
			return nil
		},
		reset: func(c *models.ServiceConfig, _ []string) { c.AppExit = "" },
	}

	params[strings.ToLower(ParamObjectName)] = param{
		set: func(c *models.ServiceConfig, v []string) error {
			c.ObjectName = v[0]
			c.Password = ""
			if len(v) > 1 {
				c.Password = v[1]
			}
			return nil
		},
		reset: func(c *models.ServiceConfig, _ []string) {
			c.ObjectName = ""
			c.Password = ""
		},
	}

	params[strings.ToLower(ParamDependOnService)] = param{
		set: func(c *models.ServiceConfig, v []string) error {
			switch v[0] {
			case "+":
				c.Dependencies = append(c.Dependencies, v[1:]...)
			case "-":
				for _, dep := range v[1:] {
					c.Dependencies = removeString(c.Dependencies, dep)
				}
			default:
				c.Dependencies = append([]string(nil), v...)
			}
			if len(c.Dependencies) == 0 {
				c.Dependencies = nil
			}
			return nil
		},
		reset: func(c *models.ServiceConfig, _ []string) { c.Dependencies = nil },
	}

	params[strings.ToLower(ParamAppEnvironment)] = param{
		set: func(c *models.ServiceConfig, v []string) error {
			appending := false
			if v[0] == "+" {
				appending = true
				v = v[1:]
			}
			entries := make(map[string]string, len(v))
			for _, kv := range v {
				if strings.HasPrefix(kv, "+") {
					appending = true
					kv = kv[1:]
				}
				key, value, ok := strings.Cut(kv, "=")
				if !ok || key == "" {
					return fmt.Errorf("%s: %q is not KEY=value", ParamAppEnvironment, kv)
				}
				entries[key] = value
			}
			if !appending || c.EnvVariables == nil {
				c.EnvVariables = make(map[string]string, len(entries))
			}
			for k, val := range entries {
				c.EnvVariables[k] = val
			}
			if len(c.EnvVariables) == 0 {
				c.EnvVariables = nil
			}
			return nil
		},
		reset: func(c *models.ServiceConfig, _ []string) { c.EnvVariables = nil },
	}

	params[strings.ToLower(ParamAppEvents)] = param{
		set: func(c *models.ServiceConfig, v []string) error {
			if len(v) < 2 {
				return fmt.Errorf("%s: expected Event/Action and a command", ParamAppEvents)
			}
			setHook(c, v[0], strings.Join(v[1:], " "))
			return nil
		},
		reset: func(c *models.ServiceConfig, v []string) {
			if len(v) == 0 {
				c.Hooks = nil
				return
			}
			delete(c.Hooks, v[0])
			if len(c.Hooks) == 0 {
				c.Hooks = nil
			}
		},
	}
}

func setHook(c *models.ServiceConfig, event, command string) {
	if c.Hooks == nil {
		c.Hooks = make(map[string]string)
	}
	c.Hooks[event] = command
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if !strings.EqualFold(item, s) {
			out = append(out, item)
		}
	}
	return out
}

// ParseCommands rebuilds a ServiceConfig from NSSM argument vectors (as
// produced by InstallCommands, EditCommands or a dump, without the nssm
// executable). Parameters this tool does not model are skipped. Malformed
// commands are reported together after every command has been applied.
func ParseCommands(cmds [][]string) (models.ServiceConfig, error) {
	var cfg models.ServiceConfig
	var errs []error
	for _, cmd := range cmds {
		err := applyCommand(&cfg, cmd)
		if errors.Is(err, errUnknownParam) {
			log.Debug("skipping unknown parameter", "command", strings.Join(cmd, " "))
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.ServiceName == "" {
		errs = append(errs, ErrNoService)
	}
	return cfg, errors.Join(errs...)
}

// ParseDump parses the output of "nssm dump <service>". Each line is an
// nssm command line whose first token, the nssm executable, is ignored.
// Malformed lines are skipped with a warning.
func ParseDump(text string) (models.ServiceConfig, error) {
	var cfg models.ServiceConfig
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens, err := SplitCommandLine(line)
		if err == nil && len(tokens) < 3 {
			err = errors.New("too few tokens")
		}
		if err != nil {
			log.Warn("skipping malformed dump line", "line", line, "error", err.Error())
			continue
		}
		err = applyCommand(&cfg, tokens[1:])
		if errors.Is(err, errUnknownParam) {
			log.Debug("skipping unknown parameter", "command", strings.Join(tokens[1:], " "))
			continue
		}
		if err != nil {
			log.Warn("skipping malformed dump line", "line", line, "error", err.Error())
		}
	}
	if cfg.ServiceName == "" {
		return cfg, ErrNoService
	}
	return cfg, nil
}

func applyCommand(cfg *models.ServiceConfig, cmd []string) error {
	if len(cmd) < 2 {
		return fmt.Errorf("command %q is too short", cmd)
	}
	op, name := strings.ToLower(cmd[0]), cmd[1]

	switch op {
	case "install", "set", "reset":
	default:
		return fmt.Errorf("%w: %s", errUnknownParam, cmd[0])
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = name
	} else if !strings.EqualFold(cfg.ServiceName, name) {
		return fmt.Errorf("command for %q in a config for %q", name, cfg.ServiceName)
	}

	if op == "install" {
		if len(cmd) < 3 {
			return errors.New("install: missing application")
		}
		cfg.ApplicationPath = cmd[2]
		if len(cmd) > 3 {
			cfg.Arguments = strings.Join(cmd[3:], " ")
		}
		return nil
	}

	if len(cmd) < 3 {
		return fmt.Errorf("%s: missing parameter", op)
	}
	paramName, values := cmd[2], cmd[3:]
	key := strings.ToLower(paramName)

	if strings.HasPrefix(key, "hook_") {
		event := paramName[len("hook_"):]
		if op == "reset" {
			params[strings.ToLower(ParamAppEvents)].reset(cfg, []string{event})
			return nil
		}
		if len(values) == 0 {
			return fmt.Errorf("%s: missing value", paramName)
		}
		setHook(cfg, event, strings.Join(values, " "))
		return nil
	}

	if canonical, ok := legacyParams[key]; ok {
		key = strings.ToLower(canonical)
	}
	p, ok := params[key]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownParam, paramName)
	}

	if op == "reset" {
		p.reset(cfg, values)
		return nil
	}
	if len(values) == 0 {
		return fmt.Errorf("%s: missing value", paramName)
	}
	return p.set(cfg, values)
}
