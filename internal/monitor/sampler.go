package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/hongwen000/NSSM-GUI/internal/svcquery"
)

// PIDResolver maps a service name to the PID of its host process.
type PIDResolver interface {
	ProcessID(service string) (uint32, error)
}

// PIDResolverFunc adapts a function to PIDResolver.
type PIDResolverFunc func(service string) (uint32, error)

func (f PIDResolverFunc) ProcessID(service string) (uint32, error) { return f(service) }

// SCMResolver resolves PIDs through the Service Control Manager.
var SCMResolver PIDResolver = PIDResolverFunc(svcquery.ProcessID)

// Sample holds raw counters for one process.
type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
	RSSBytes      uint64
	ReadBytes     uint64
	WriteBytes    uint64
	CreateTime    time.Time
}

// Sampler reads resource counters for a PID.
type Sampler interface {
	Sample(ctx context.Context, pid uint32) (Sample, error)
}

const maxCachedProcesses = 256

// ProcessSampler samples through gopsutil. CPU percent is measured since
// the previous sample of the same process, so the first sample of a PID
// reports 0.
type ProcessSampler struct {
	mu    sync.Mutex
	procs map[uint32]*process.Process
}

// NewProcessSampler returns a gopsutil-backed sampler.
func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{procs: make(map[uint32]*process.Process)}
}

func (s *ProcessSampler) lookup(ctx context.Context, pid uint32) (*process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[pid]; ok {
		return p, nil
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}
	if len(s.procs) >= maxCachedProcesses {
		clear(s.procs)
	}
	s.procs[pid] = p
	return p, nil
}

func (s *ProcessSampler) forget(pid uint32) {
	s.mu.Lock()
	delete(s.procs, pid)
	s.mu.Unlock()
}

func (s *ProcessSampler) Sample(ctx context.Context, pid uint32) (Sample, error) {
	p, err := s.lookup(ctx, pid)
	if err != nil {
		return Sample{}, fmt.Errorf("process %d: %w", pid, err)
	}

	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		s.forget(pid)
		return Sample{}, fmt.Errorf("process %d is gone", pid)
	}

	var out Sample
	if cpu, err := p.PercentWithContext(ctx, 0); err == nil {
		out.CPUPercent = cpu
	}
	if memPct, err := p.MemoryPercentWithContext(ctx); err == nil {
		out.MemoryPercent = float64(memPct)
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		s.forget(pid)
		return Sample{}, fmt.Errorf("process %d memory: %w", pid, err)
	}
	out.RSSBytes = mem.RSS
	if io, err := p.IOCountersWithContext(ctx); err == nil {
		out.ReadBytes = io.ReadBytes
		out.WriteBytes = io.WriteBytes
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		out.CreateTime = time.UnixMilli(created)
	}
	return out, nil
}
