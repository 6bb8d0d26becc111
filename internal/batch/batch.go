// Package batch applies one service action to many services.
package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/audit"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/manager"
	"github.com/hongwen000/NSSM-GUI/internal/workerpool"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var log = logging.L("batch")

// ErrNoServices is returned when a batch names no services.
var ErrNoServices = errors.New("no services selected")

// Applier runs a single action. *manager.Manager satisfies it.
type Applier interface {
	Apply(ctx context.Context, action, name string) error
}

// Result is the outcome for one service.
type Result struct {
	Service    string `json:"service"`
	OpID       string `json:"opId"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Summary is the outcome of a whole batch. Results follow the order of the
// requested names.
type Summary struct {
	Action     string   `json:"action"`
	OpID       string   `json:"opId"`
	Total      int      `json:"total"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
	DurationMs int64    `json:"durationMs"`
}

// Runner executes batches.
type Runner struct {
	applier Applier
	pool    *workerpool.Pool
	audit   *audit.Logger
}

// New returns a Runner. pool may be nil, in which case parallel batches run
// one goroutine per service.
func New(applier Applier, pool *workerpool.Pool, auditLogger *audit.Logger) *Runner {
	return &Runner{applier: applier, pool: pool, audit: auditLogger}
}

// ValidAction reports whether action is one of manager.Actions.
func ValidAction(action string) bool {
	return slices.Contains(manager.Actions, action)
}

// Run applies action to names. Duplicate names run once. A failure on one
// service does not stop the others.
func (r *Runner) Run(ctx context.Context, action string, names []string, parallel bool) (Summary, error) {
	if !ValidAction(action) {
		return Summary{}, fmt.Errorf("%w: %q", manager.ErrUnknownAction, action)
	}
	names = dedupe(names)
	if len(names) == 0 {
		return Summary{}, ErrNoServices
	}

	start := time.Now()
	sum := Summary{
		Action:  action,
		OpID:    audit.NewOpID(),
		Total:   len(names),
		Results: make([]Result, len(names)),
	}

	if parallel {
		r.runParallel(ctx, action, names, sum.Results)
	} else {
		for i, name := range names {
			sum.Results[i] = r.runOne(ctx, action, name)
		}
	}

	for _, res := range sum.Results {
		if res.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	sum.DurationMs = time.Since(start).Milliseconds()

	r.audit.Log(audit.EventBatch, sum.OpID, "", map[string]any{
		"action":    action,
		"parallel":  parallel,
		"services":  names,
		"succeeded": sum.Succeeded,
		"failed":    sum.Failed,
	})
	log.Info("batch finished", "action", action, "total", sum.Total, "failed", sum.Failed, logging.KeyDurationMs, sum.DurationMs)
	return sum, nil
}

func (r *Runner) runOne(ctx context.Context, action, name string) Result {
	res := Result{Service: name, OpID: audit.NewOpID()}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}
	start := time.Now()
	err := r.applier.Apply(audit.WithOpID(ctx, res.OpID), action, name)
	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

func (r *Runner) runParallel(ctx context.Context, action string, names []string, results []Result) {
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		task := func(context.Context) {
			defer wg.Done()
			results[i] = r.runOne(ctx, action, name)
		}
		if r.pool == nil {
			go task(ctx)
			continue
		}
		if err := r.pool.TrySubmit(task); err != nil {
			// Queue full or pool stopping: run on the caller.
			log.Debug("running batch item inline", logging.KeyService, name, logging.KeyError, err.Error())
			task(ctx)
		}
	}
	wg.Wait()
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Filter returns the services whose name or display name contains query,
// case-insensitively. An empty query matches everything.
func Filter(services []models.ServiceInfo, query string) []models.ServiceInfo {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return slices.Clone(services)
	}
	var out []models.ServiceInfo
	for _, s := range services {
		if strings.Contains(strings.ToLower(s.Name), query) || strings.Contains(strings.ToLower(s.DisplayName), query) {
			out = append(out, s)
		}
	}
	return out
}

// SelectState returns the names of services in state.
func SelectState(services []models.ServiceInfo, state string) []string {
	var out []string
	for _, s := range services {
		if s.State == state {
			out = append(out, s.Name)
		}
	}
	return out
}

// SelectRunning returns the names of running services.
func SelectRunning(services []models.ServiceInfo) []string {
	return SelectState(services, models.StateRunning)
}

// SelectStopped returns the names of stopped services.
func SelectStopped(services []models.ServiceInfo) []string {
	return SelectState(services, models.StateStopped)
}
