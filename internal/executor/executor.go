package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
)

var log = logging.L("executor")

const (
	// DefaultTimeout applies when a runner is built with a zero timeout.
	DefaultTimeout = 60 * time.Second

	// MaxTimeout is the maximum allowed execution timeout.
	MaxTimeout = time.Hour

	// MaxOutputSize is the maximum size of stdout/stderr to capture.
	MaxOutputSize = 1024 * 1024 // 1MB
)

// ErrTimeout is returned when a command is killed for exceeding its timeout.
var ErrTimeout = errors.New("command timed out")

// Result is the outcome of one child process.
type Result struct {
	Command   string        `json:"command"`
	Args      []string      `json:"args"`
	ExitCode  int           `json:"exitCode"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated,omitempty"`
}

// Success reports whether the process exited with code 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner starts a child process and waits for it. A non-zero exit code is
// not an error; err is set only when the process could not run to
// completion (start failure, timeout, cancellation).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout   time.Duration
	MaxOutput int
	Dir       string
}

// New returns an ExecRunner with the given per-call timeout, clamped to
// MaxTimeout.
func New(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	return &ExecRunner{Timeout: timeout, MaxOutput: MaxOutputSize}
}

// Run executes name with args and captures its decoded output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := r.MaxOutput
	if limit <= 0 {
		limit = MaxOutputSize
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := Result{Command: name, Args: append([]string(nil), args...)}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	outW := &limitedWriter{buf: &stdout, limit: limit}
	errW := &limitedWriter{buf: &stderr, limit: limit}
	cmd.Stdout = outW
	cmd.Stderr = errW

	prepare(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = DecodeOutput(stdout.Bytes())
	result.Stderr = DecodeOutput(stderr.Bytes())
	result.Truncated = outW.truncated || errW.truncated

	if err == nil {
		log.Debug("command completed", "command", name, logging.KeyDurationMs, result.Duration.Milliseconds())
		return result, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		log.Warn("command timed out", "command", name, "timeout", timeout.String())
		return result, fmt.Errorf("%s: %w after %s", name, ErrTimeout, timeout)
	}
	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		log.Debug("command exited non-zero", "command", name, "exitCode", result.ExitCode)
		return result, nil
	}

	result.ExitCode = -1
	log.Error("command failed to run", "command", name, logging.KeyError, err.Error())
	return result, fmt.Errorf("run %s: %w", name, err)
}

// limitedWriter wraps a buffer with a size limit
type limitedWriter struct {
	buf       *bytes.Buffer
	limit     int
	written   int
	truncated bool
}

func (w *limitedWriter) Write(p []byte) (n int, err error) {
	if w.written >= w.limit {
		// Discard additional data but don't error
		w.truncated = w.truncated || len(p) > 0
		return len(p), nil
	}

	remaining := w.limit - w.written
	orig := len(p)
	if len(p) > remaining {
		p = p[:remaining]
		w.truncated = true
	}

	n, err = w.buf.Write(p)
	w.written += n
	return orig, err // Return original length to avoid short write errors
}
