// Package monitor polls per-service process statistics for the dashboard.
package monitor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/internal/svcquery"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var log = logging.L("monitor")

const (
	DefaultInterval    = 5 * time.Second
	DefaultHistorySize = 60
	subscriberBuffer   = 4
)

// Stats aggregates the rolling history of one service.
type Stats struct {
	Service          string               `json:"service"`
	Current          models.ServiceStatus `json:"current"`
	CPUAvg           float64              `json:"cpuAvg"`
	MemoryPercentAvg float64              `json:"memoryPercentAvg"`
	MemoryMBAvg      float64              `json:"memoryMbAvg"`
	Restarts         int                  `json:"restarts"`
	CPUHistory       []float64            `json:"cpuHistory"`
	MemoryHistory    []float64            `json:"memoryHistory"`
	MemoryMBHistory  []float64            `json:"memoryMbHistory"`
	IOReadHistory    []float64            `json:"ioReadHistory"`
	IOWriteHistory   []float64            `json:"ioWriteHistory"`
	Timestamps       []time.Time          `json:"timestamps"`
}

type serviceData struct {
	history  *ring[models.ServiceStatus]
	latest   models.ServiceStatus
	restarts int

	lastPID   uint32
	lastRead  uint64
	lastWrite uint64
	lastAt    time.Time
}

// Monitor samples tracked services on an interval.
type Monitor struct {
	resolver    PIDResolver
	sampler     Sampler
	interval    time.Duration
	historySize int
	now         func() time.Time

	mu      sync.Mutex
	tracked []string
	data    map[string]*serviceData
	subs    map[int]chan []models.ServiceStatus
	nextSub int
	dropped int
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithHistorySize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.historySize = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New returns a monitor. A nil resolver or sampler selects the SCM resolver
// and the gopsutil sampler.
func New(resolver PIDResolver, sampler Sampler, opts ...Option) *Monitor {
	if resolver == nil {
		resolver = SCMResolver
	}
	if sampler == nil {
		sampler = NewProcessSampler()
	}
	m := &Monitor{
		resolver:    resolver,
		sampler:     sampler,
		interval:    DefaultInterval,
		historySize: DefaultHistorySize,
		now:         time.Now,
		data:        make(map[string]*serviceData),
		subs:        make(map[int]chan []models.ServiceStatus),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the polling interval.
func (m *Monitor) Interval() time.Duration { return m.interval }

// Track adds services to the polling set.
func (m *Monitor) Track(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		if name == "" || slices.Contains(m.tracked, name) {
			continue
		}
		m.tracked = append(m.tracked, name)
		if _, ok := m.data[name]; !ok {
			m.data[name] = &serviceData{history: newRing[models.ServiceStatus](m.historySize)}
		}
	}
}

// Untrack removes a service and its history.
func (m *Monitor) Untrack(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = slices.DeleteFunc(m.tracked, func(s string) bool { return s == name })
	delete(m.data, name)
}

// SetTracked replaces the polling set, keeping history of services that stay.
func (m *Monitor) SetTracked(names []string) {
	m.mu.Lock()
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	for _, n := range m.tracked {
		if !keep[n] {
			delete(m.data, n)
		}
	}
	m.tracked = nil
	m.mu.Unlock()
	m.Track(names...)
}

// Tracked returns the polled service names in insertion order.
func (m *Monitor) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tracked)
}

// Poll runs one sampling cycle. Services whose process cannot be resolved
// or sampled produce NoData snapshots; Poll itself only fails when ctx is
// done.
func (m *Monitor) Poll(ctx context.Context) ([]models.ServiceStatus, error) {
	names := m.Tracked()
	out := make([]models.ServiceStatus, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, m.sampleOne(ctx, name))
	}
	m.publish(out)
	return out, nil
}

func (m *Monitor) sampleOne(ctx context.Context, name string) models.ServiceStatus {
	now := m.now()
	pid, err := m.resolver.ProcessID(name)
	if err != nil {
		state := models.StateUnknown
		if errors.Is(err, svcquery.ErrNotRunning) {
			state = models.StateStopped
		}
		return m.record(name, noData(name, state, err.Error(), now), 0, Sample{})
	}

	sample, err := m.sampler.Sample(ctx, pid)
	if err != nil {
		log.Debug("sample failed", logging.KeyService, name, "pid", pid, logging.KeyError, err.Error())
		return m.record(name, noData(name, models.StateRunning, err.Error(), now), 0, Sample{})
	}

	st := models.ServiceStatus{
		Service:       name,
		State:         models.StateRunning,
		PID:           pid,
		CPUPercent:    sample.CPUPercent,
		MemoryPercent: sample.MemoryPercent,
		MemoryMB:      float64(sample.RSSBytes) / 1024 / 1024,
		Timestamp:     now,
	}
	if !sample.CreateTime.IsZero() {
		st.UptimeSeconds = int64(now.Sub(sample.CreateTime).Seconds())
	}
	return m.record(name, st, pid, sample)
}

func noData(name, state, reason string, now time.Time) models.ServiceStatus {
	return models.ServiceStatus{Service: name, State: state, NoData: true, Reason: reason, Timestamp: now}
}

// record updates rates, restart count and history for one snapshot.
func (m *Monitor) record(name string, st models.ServiceStatus, pid uint32, sample Sample) models.ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.data[name]
	if !ok {
		return st
	}
	if !st.NoData {
		if d.lastPID != 0 && d.lastPID != pid {
			d.restarts++
			log.Info("service process changed", logging.KeyService, name, "oldPid", d.lastPID, "pid", pid)
		}
		if d.lastPID == pid && !d.lastAt.IsZero() {
			if elapsed := st.Timestamp.Sub(d.lastAt).Seconds(); elapsed > 0 {
				st.IOReadBytesPerSec = rate(sample.ReadBytes, d.lastRead, elapsed)
				st.IOWriteBytesPerSec = rate(sample.WriteBytes, d.lastWrite, elapsed)
			}
		}
		d.lastPID = pid
		d.lastRead = sample.ReadBytes
		d.lastWrite = sample.WriteBytes
		d.lastAt = st.Timestamp
	}
	st.Restarts = d.restarts
	d.latest = st
	if !st.NoData {
		d.history.push(st)
	}
	return st
}

func rate(cur, prev uint64, seconds float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / seconds
}

// Run polls until ctx is done, once immediately and then every interval.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info("monitor started", "interval", m.interval.String(), "services", len(m.Tracked()))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Poll(ctx); err != nil {
			log.Info("monitor stopped")
			return err
		}
		select {
		case <-ctx.Done():
			log.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Subscribe returns a channel that receives every cycle's snapshots.
// A subscriber that falls behind misses cycles. cancel closes the channel.
func (m *Monitor) Subscribe() (<-chan []models.ServiceStatus, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan []models.ServiceStatus, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Monitor) publish(snapshots []models.ServiceStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snapshots:
		default:
			m.dropped++
			log.Debug("subscriber behind, dropping cycle", "dropped", m.dropped)
		}
	}
}

// Latest returns the most recent snapshot of every tracked service.
func (m *Monitor) Latest() []models.ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ServiceStatus, 0, len(m.tracked))
	for _, name := range m.tracked {
		if d := m.data[name]; d != nil && !d.latest.Timestamp.IsZero() {
			out = append(out, d.latest)
		}
	}
	return out
}

// Stats aggregates the history of one tracked service.
func (m *Monitor) Stats(name string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[name]
	if !ok {
		return Stats{}, false
	}

	points := d.history.items()
	s := Stats{
		Service:         name,
		Current:         d.latest,
		Restarts:        d.restarts,
		CPUHistory:      make([]float64, len(points)),
		MemoryHistory:   make([]float64, len(points)),
		MemoryMBHistory: make([]float64, len(points)),
		IOReadHistory:   make([]float64, len(points)),
		IOWriteHistory:  make([]float64, len(points)),
		Timestamps:      make([]time.Time, len(points)),
	}
	for i, p := range points {
		s.CPUHistory[i] = p.CPUPercent
		s.MemoryHistory[i] = p.MemoryPercent
		s.MemoryMBHistory[i] = p.MemoryMB
		s.IOReadHistory[i] = p.IOReadBytesPerSec
		s.IOWriteHistory[i] = p.IOWriteBytesPerSec
		s.Timestamps[i] = p.Timestamp
	}
	s.CPUAvg = mean(s.CPUHistory)
	s.MemoryPercentAvg = mean(s.MemoryHistory)
	s.MemoryMBAvg = mean(s.MemoryMBHistory)
	return s, true
}

// AllStats returns Stats for every tracked service.
func (m *Monitor) AllStats() map[string]Stats {
	out := make(map[string]Stats)
	for _, name := range m.Tracked() {
		if s, ok := m.Stats(name); ok {
			out[name] = s
		}
	}
	return out
}

// Reset clears the history and restart count of a service.
func (m *Monitor) Reset(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.data[name]; ok {
		d.history.reset()
		d.latest = models.ServiceStatus{}
		d.restarts = 0
		d.lastPID, d.lastRead, d.lastWrite = 0, 0, 0
		d.lastAt = time.Time{}
	}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
