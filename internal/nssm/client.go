package nssm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/executor"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/privilege"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var log = logging.L("nssm")

// Log streams accepted by Client.Logs.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// DefaultLogTail is how much of a service log Logs returns by default.
const DefaultLogTail = 64 * 1024

// ErrNoLogPath is returned by Logs when the service has no file for the
// requested stream.
var ErrNoLogPath = errors.New("no log path configured")

// CommandError is a non-zero NSSM exit. The captured output is NSSM's own
// explanation and is surfaced verbatim.
type CommandError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	if msg == "" {
		msg = "no output"
	}
	return fmt.Sprintf("nssm %s: exit code %d: %s", strings.Join(e.Args, " "), e.ExitCode, msg)
}

// Output returns the captured text NSSM printed.
func (e *CommandError) Output() string {
	return strings.TrimSpace(strings.TrimSpace(e.Stderr) + "\n" + strings.TrimSpace(e.Stdout))
}

// PrivilegeError is returned before running a mutating NSSM command from a
// process without administrator rights.
type PrivilegeError struct {
	Operation string
	Service   string
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Service, privilege.ErrNotElevated)
}

func (e *PrivilegeError) Unwrap() error {
	return privilege.ErrNotElevated
}

// Client invokes the NSSM executable.
type Client struct {
	path       string
	runner     executor.Runner
	checkAdmin bool
	elevated   func() bool
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the process runner.
func WithRunner(r executor.Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithoutAdminCheck lets mutating commands run without elevation; NSSM
// itself will then report access denied.
func WithoutAdminCheck() Option {
	return func(c *Client) { c.checkAdmin = false }
}

// WithElevationCheck replaces the elevation probe.
func WithElevationCheck(fn func() bool) Option {
	return func(c *Client) { c.elevated = fn }
}

// New returns a client for the nssm executable at path.
func New(path string, opts ...Option) *Client {
	c := &Client{
		path:       path,
		runner:     executor.New(executor.DefaultTimeout),
		checkAdmin: true,
		elevated:   privilege.IsElevated,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the nssm executable path.
func (c *Client) Path() string {
	return c.path
}

// Run executes one NSSM command and returns its stdout. Mutating verbs are
// refused with a *PrivilegeError when the process is not elevated, and a
// non-zero exit is returned as a *CommandError.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("nssm: no command")
	}
	op := strings.ToLower(args[0])
	service := ""
	if len(args) > 1 {
		service = args[1]
	}

	if c.checkAdmin && privilege.RequiresElevation(op) && !c.elevated() {
		return "", &PrivilegeError{Operation: op, Service: service}
	}

	start := time.Now()
	res, err := c.runner.Run(ctx, c.path, args...)
	logger := logging.WithOperation(log, service, op)
	if err != nil {
		logger.Error("nssm invocation failed", logging.KeyError, err.Error())
		return "", fmt.Errorf("nssm %s %s: %w", op, service, err)
	}
	if res.ExitCode != 0 {
		cerr := &CommandError{
			Args:     append([]string(nil), args...),
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
		logger.Warn("nssm command failed", "exitCode", res.ExitCode, "output", cerr.Output())
		return res.Stdout, cerr
	}
	logger.Debug("nssm command succeeded", logging.KeyDurationMs, time.Since(start).Milliseconds())
	return res.Stdout, nil
}

func (c *Client) runAll(ctx context.Context, cmds [][]string) error {
	for _, cmd := range cmds {
		if _, err := c.Run(ctx, cmd...); err != nil {
			return err
		}
	}
	return nil
}

// Install creates the service and applies every setting of cfg. If a
// setting fails after the install succeeded the service is left in place
// and the error names the failing command.
func (c *Client) Install(ctx context.Context, cfg models.ServiceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cmds := InstallCommands(cfg)
	if _, err := c.Run(ctx, cmds[0]...); err != nil {
		return err
	}
	if err := c.runAll(ctx, cmds[1:]); err != nil {
		return fmt.Errorf("service %s: %w: %w", cfg.ServiceName, models.ErrIncompleteInstall, err)
	}
	log.Info("service installed", logging.KeyService, cfg.ServiceName)
	return nil
}

// Edit makes the existing service match cfg. Hooks that the current NSSM
// configuration has but cfg lacks are reset.
func (c *Client) Edit(ctx context.Context, cfg models.ServiceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.checkAdmin && !c.elevated() {
		return &PrivilegeError{Operation: "edit", Service: cfg.ServiceName}
	}

	cmds := EditCommands(cfg)
	if current, err := c.Config(ctx, cfg.ServiceName); err == nil {
		cmds = append(cmds, HookResetCommands(current, cfg)...)
	} else {
		log.Debug("could not read current config before edit", logging.KeyService, cfg.ServiceName, logging.KeyError, err.Error())
	}
	if err := c.runAll(ctx, cmds); err != nil {
		return err
	}
	log.Info("service updated", logging.KeyService, cfg.ServiceName)
	return nil
}

// Remove stops the service, ignoring failure, then removes it.
func (c *Client) Remove(ctx context.Context, name string) error {
	cmds := RemoveCommands(name)
	if _, err := c.Run(ctx, cmds[0]...); err != nil {
		var perr *PrivilegeError
		if errors.As(err, &perr) {
			return err
		}
		log.Debug("stop before remove failed", logging.KeyService, name, logging.KeyError, err.Error())
	}
	if _, err := c.Run(ctx, cmds[1]...); err != nil {
		return err
	}
	log.Info("service removed", logging.KeyService, name)
	return nil
}

func (c *Client) control(ctx context.Context, op, name string) error {
	_, err := c.Run(ctx, ControlCommand(op, name)...)
	return err
}

func (c *Client) Start(ctx context.Context, name string) error    { return c.control(ctx, "start", name) }
func (c *Client) Stop(ctx context.Context, name string) error     { return c.control(ctx, "stop", name) }
func (c *Client) Restart(ctx context.Context, name string) error  { return c.control(ctx, "restart", name) }
func (c *Client) Pause(ctx context.Context, name string) error    { return c.control(ctx, "pause", name) }
func (c *Client) Continue(ctx context.Context, name string) error { return c.control(ctx, "continue", name) }

// Rotate asks a running service to rotate its output files online.
func (c *Client) Rotate(ctx context.Context, name string) error { return c.control(ctx, "rotate", name) }

// Status returns the normalized service state from "nssm status".
func (c *Client) Status(ctx context.Context, name string) (string, error) {
	out, err := c.Run(ctx, ControlCommand("status", name)...)
	if err != nil {
		return models.StateUnknown, err
	}
	return NormalizeState(out), nil
}

// Dump returns the raw "nssm dump" text for the service.
func (c *Client) Dump(ctx context.Context, name string) (string, error) {
	return c.Run(ctx, "dump", name)
}

// Config reads the service configuration back from NSSM.
func (c *Client) Config(ctx context.Context, name string) (models.ServiceConfig, error) {
	out, err := c.Dump(ctx, name)
	if err != nil {
		return models.ServiceConfig{}, err
	}
	cfg, err := ParseDump(out)
	if err != nil {
		return cfg, fmt.Errorf("parse dump of %s: %w", name, err)
	}
	return cfg, nil
}

// Get reads one parameter. sub is the Event/Action for AppEvents or the
// exit code for AppExit.
func (c *Client) Get(ctx context.Context, name, param string, sub ...string) (string, error) {
	args := append([]string{"get", name, param}, sub...)
	out, err := c.Run(ctx, args...)
	return strings.TrimRight(out, "\r\n"), err
}

// Set writes one parameter.
func (c *Client) Set(ctx context.Context, name, param string, values ...string) error {
	args := append([]string{"set", name, param}, values...)
	_, err := c.Run(ctx, args...)
	return err
}

// Reset restores one parameter to NSSM's default.
func (c *Client) Reset(ctx context.Context, name, param string, sub ...string) error {
	args := append([]string{"reset", name, param}, sub...)
	_, err := c.Run(ctx, args...)
	return err
}

// SetStartup enables (SERVICE_AUTO_START) or disables (SERVICE_DISABLED)
// the service.
func (c *Client) SetStartup(ctx context.Context, name string, enabled bool) error {
	start := models.StartDisabled
	if enabled {
		start = models.StartAuto
	}
	return c.Set(ctx, name, ParamStart, start)
}

// Logs returns up to maxBytes from the end of the service's stdout or
// stderr file as configured in NSSM.
func (c *Client) Logs(ctx context.Context, name, stream string, maxBytes int64) (string, error) {
	cfg, err := c.Config(ctx, name)
	if err != nil {
		return "", err
	}
	path := cfg.StdoutPath
	if stream == StreamStderr {
		path = cfg.StderrPath
	} else if stream != "" && stream != StreamStdout {
		return "", fmt.Errorf("unknown log stream %q", stream)
	}
	if path == "" {
		return "", fmt.Errorf("%s %s: %w", name, stream, ErrNoLogPath)
	}
	return TailFile(path, maxBytes)
}

// TailFile returns the last maxBytes of the file at path, decoded.
func TailFile(path string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultLogTail
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log: %w", err)
	}
	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek log: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return "", fmt.Errorf("read log: %w", err)
	}
	return executor.DecodeOutput(data), nil
}

// NormalizeState maps SCM state names such as SERVICE_RUNNING to the
// lower-case states used across the tool.
func NormalizeState(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "SERVICE_")
	switch s {
	case "RUNNING":
		return models.StateRunning
	case "STOPPED":
		return models.StateStopped
	case "PAUSED":
		return models.StatePaused
	case "START_PENDING", "CONTINUE_PENDING":
		return models.StateStarting
	case "STOP_PENDING", "PAUSE_PENDING":
		return models.StateStopping
	default:
		return models.StateUnknown
	}
}
