package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/svcquery"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

type fakeResolver struct {
	mu   sync.Mutex
	pids map[string]uint32
	errs map[string]error
}

func (f *fakeResolver) ProcessID(name string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[name]; err != nil {
		return 0, err
	}
	pid, ok := f.pids[name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, svcquery.ErrNotFound)
	}
	return pid, nil
}

func (f *fakeResolver) set(name string, pid uint32) {
	f.mu.Lock()
	f.pids[name] = pid
	f.mu.Unlock()
}

type fakeSampler struct {
	samples map[uint32]Sample
	fail    map[uint32]bool
}

func (f *fakeSampler) Sample(_ context.Context, pid uint32) (Sample, error) {
	if f.fail[pid] {
		return Sample{}, errors.New("process is gone")
	}
	return f.samples[pid], nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(r *fakeResolver, s *fakeSampler, opts ...Option) (*Monitor, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return New(r, s, opts...), clock
}

func TestPollStoppedServiceYieldsNoData(t *testing.T) {
	r := &fakeResolver{
		pids: map[string]uint32{},
		errs: map[string]error{"stopped-svc": fmt.Errorf("stopped-svc: %w", svcquery.ErrNotRunning)},
	}
	m, _ := newTestMonitor(r, &fakeSampler{})
	m.Track("stopped-svc", "missing-svc")

	got, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(got))
	}
	for _, st := range got {
		if !st.NoData || st.Reason == "" {
			t.Errorf("%s: expected NoData snapshot with reason, got %+v", st.Service, st)
		}
	}
	if got[0].State != models.StateStopped {
		t.Errorf("stopped service state = %q", got[0].State)
	}
	if got[1].State != models.StateUnknown {
		t.Errorf("missing service state = %q", got[1].State)
	}
}

func TestPollVanishedProcessYieldsNoData(t *testing.T) {
	r := &fakeResolver{pids: map[string]uint32{"svc": 42}}
	s := &fakeSampler{fail: map[uint32]bool{42: true}}
	m, _ := newTestMonitor(r, s)
	m.Track("svc")

	got, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !got[0].NoData {
		t.Fatalf("expected NoData, got %+v", got[0])
	}
}

func TestPollComputesRatesAndMemory(t *testing.T) {
	r := &fakeResolver{pids: map[string]uint32{"svc": 42}}
	created := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	s := &fakeSampler{samples: map[uint32]Sample{
		42: {CPUPercent: 12.5, MemoryPercent: 3, RSSBytes: 64 * 1024 * 1024, ReadBytes: 1000, WriteBytes: 500, CreateTime: created},
	}}
	m, clock := newTestMonitor(r, s)
	m.Track("svc")
	ctx := context.Background()

	first, _ := m.Poll(ctx)
	if first[0].MemoryMB != 64 {
		t.Errorf("MemoryMB = %v, want 64", first[0].MemoryMB)
	}
	if first[0].UptimeSeconds != 3600 {
		t.Errorf("UptimeSeconds = %d, want 3600", first[0].UptimeSeconds)
	}
	if first[0].IOReadBytesPerSec != 0 {
		t.Errorf("first sample has no rate baseline, got %v", first[0].IOReadBytesPerSec)
	}

	clock.advance(5 * time.Second)
	s.samples[42] = Sample{ReadBytes: 6000, WriteBytes: 1500, CreateTime: created}
	second, _ := m.Poll(ctx)
	if second[0].IOReadBytesPerSec != 1000 || second[0].IOWriteBytesPerSec != 200 {
		t.Errorf("rates = %v/%v, want 1000/200", second[0].IOReadBytesPerSec, second[0].IOWriteBytesPerSec)
	}
}

func TestRestartCountedOnPIDChange(t *testing.T) {
	r := &fakeResolver{pids: map[string]uint32{"svc": 100}}
	s := &fakeSampler{samples: map[uint32]Sample{100: {}, 200: {}}}
	m, _ := newTestMonitor(r, s)
	m.Track("svc")
	ctx := context.Background()

	m.Poll(ctx)
	m.Poll(ctx)
	r.set("svc", 200)
	got, _ := m.Poll(ctx)
	if got[0].Restarts != 1 {
		t.Fatalf("Restarts = %d, want 1", got[0].Restarts)
	}

	m.Reset("svc")
	st, _ := m.Stats("svc")
	if st.Restarts != 0 || len(st.CPUHistory) != 0 {
		t.Fatalf("Reset left state behind: %+v", st)
	}
}

func TestStatsHistoryBounded(t *testing.T) {
	r := &fakeResolver{pids: map[string]uint32{"svc": 1}}
	s := &fakeSampler{samples: map[uint32]Sample{1: {}}}
	m, clock := newTestMonitor(r, s, WithHistorySize(3))
	m.Track("svc")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		s.samples[1] = Sample{CPUPercent: float64(i * 10)}
		m.Poll(ctx)
		clock.advance(time.Second)
	}
	st, ok := m.Stats("svc")
	if !ok {
		t.Fatal("Stats: service not tracked")
	}
	want := []float64{30, 40, 50}
	if len(st.CPUHistory) != len(want) {
		t.Fatalf("CPUHistory = %v, want %v", st.CPUHistory, want)
	}
	for i := range want {
		if st.CPUHistory[i] != want[i] {
			t.Fatalf("CPUHistory = %v, want %v", st.CPUHistory, want)
		}
	}
	if st.CPUAvg != 40 {
		t.Errorf("CPUAvg = %v, want 40", st.CPUAvg)
	}
	if st.Current.CPUPercent != 50 {
		t.Errorf("Current.CPUPercent = %v", st.Current.CPUPercent)
	}
}

func TestSubscribeDropsWhenSlow(t *testing.T) {
	r := &fakeResolver{pids: map[string]uint32{"svc": 1}}
	s := &fakeSampler{samples: map[uint32]Sample{1: {}}}
	m, _ := newTestMonitor(r, s)
	m.Track("svc")
	ch, cancel := m.Subscribe()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			m.Poll(ctx)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Poll blocked on a slow subscriber")
	}

	if n := len(ch); n != subscriberBuffer {
		t.Fatalf("buffered cycles = %d, want %d", n, subscriberBuffer)
	}
	cancel()
	cancel()
	for range ch {
	}
}

func TestPollHonoursContext(t *testing.T) {
	r := &fakeResolver{pids: map[string]uint32{"a": 1, "b": 2}}
	m, _ := newTestMonitor(r, &fakeSampler{samples: map[uint32]Sample{}})
	m.Track("a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &fakeResolver{pids: map[string]uint32{"svc": 1}}
	m := New(r, &fakeSampler{samples: map[uint32]Sample{1: {}}}, WithInterval(10*time.Millisecond))
	m.Track("svc")
	ch, cancelSub := m.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no cycle published")
	}
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestTrackingSet(t *testing.T) {
	m := New(&fakeResolver{pids: map[string]uint32{}}, &fakeSampler{})
	m.Track("a", "b", "a", "")
	m.SetTracked([]string{"b", "c"})
	got := m.Tracked()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("Tracked = %v", got)
	}
	m.Untrack("b")
	if _, ok := m.Stats("b"); ok {
		t.Fatal("untracked service still has stats")
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 4; i++ {
		r.push(i)
	}
	got := r.items()
	if len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Fatalf("items = %v", got)
	}
	r.reset()
	if r.len() != 0 {
		t.Fatal("reset did not empty the ring")
	}
}
