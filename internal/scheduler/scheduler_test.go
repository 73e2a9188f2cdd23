package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/matcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/metrics"
)

type staticText string

func (s staticText) Snapshot() []rune { return []rune(string(s)) }

// recordingScanner records jobs in the order they ran and tracks how many
// scans overlap.
type recordingScanner struct {
	mu      sync.Mutex
	jobs    []Job
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (r *recordingScanner) Scan(ctx context.Context, text []rune, job Job) ([]matcher.Occurrence, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if job.Pattern == "boom" {
		panic("scanner exploded")
	}
	if job.Pattern == "fail" {
		return nil, errors.New("backend unavailable")
	}
	time.Sleep(r.delay)
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	return MatcherScanner{}.Scan(ctx, text, job)
}

func receive(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scan event")
		return Event{}
	}
}

func TestScheduleFullScanDebounces(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	events := make(chan Event, 8)
	scanner := &recordingScanner{}
	s := New(Config{Debounce: 250 * time.Millisecond, Metrics: m}, staticText("one two one two"), scanner, events)
	defer s.Close()

	for _, p := range []string{"one", "tw", "two"} {
		if err := s.ScheduleFullScan(Job{Pattern: p, End: ToEnd, Options: matcher.Options{CaseSensitive: true}}); err != nil {
			t.Fatalf("ScheduleFullScan: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if st := s.State(); st != StateDebouncing {
		t.Fatalf("State() = %v while the timer is pending", st)
	}

	ev := receive(t, events)
	if ev.Job.Pattern != "two" {
		t.Fatalf("job pattern = %q, want the last request", ev.Job.Pattern)
	}
	if len(ev.Occurrences) != 2 || ev.Occurrences[0].Start != 4 || ev.Occurrences[1].Start != 12 {
		t.Fatalf("occurrences = %v", ev.Occurrences)
	}

	time.Sleep(300 * time.Millisecond)
	if n := s.JobsEnqueued(); n != 1 {
		t.Fatalf("JobsEnqueued() = %d, want 1", n)
	}
	select {
	case extra := <-events:
		t.Fatalf("unexpected second event %+v", extra)
	default:
	}
	if got := testutil.ToFloat64(m.DebounceSuperseded); got != 2 {
		t.Fatalf("superseded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ScanJobsTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok jobs = %v, want 1", got)
	}
}

func TestWorkerRunsJobsInOrderOneAtATime(t *testing.T) {
	events := make(chan Event, 16)
	scanner := &recordingScanner{delay: 5 * time.Millisecond}
	s := New(Config{}, staticText("abc"), scanner, events)
	defer s.Close()

	patterns := []string{"a", "b", "c", "ab", "bc", "abc"}
	for _, p := range patterns {
		s.enqueue(Job{Pattern: p, End: ToEnd})
	}
	for i, want := range patterns {
		ev := receive(t, events)
		if ev.Job.Pattern != want {
			t.Fatalf("event %d pattern = %q, want %q", i, ev.Job.Pattern, want)
		}
		if ev.Err != nil {
			t.Fatalf("event %d error: %v", i, ev.Err)
		}
	}
	if got := scanner.maxSeen.Load(); got != 1 {
		t.Fatalf("saw %d concurrent scans, want 1", got)
	}
	if n := s.JobsEnqueued(); n != int64(len(patterns)) {
		t.Fatalf("JobsEnqueued() = %d", n)
	}
}

func TestWorkerSurvivesPanicsAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	events := make(chan Event, 8)
	s := New(Config{Metrics: m}, staticText("x y x"), &recordingScanner{}, events)
	defer s.Close()

	s.enqueue(Job{Pattern: "boom", End: ToEnd})
	s.enqueue(Job{Pattern: "fail", End: ToEnd})
	s.enqueue(Job{Pattern: "x", End: ToEnd})

	ev := receive(t, events)
	if !errors.Is(ev.Err, apperrors.ErrInternal) {
		t.Fatalf("panic event err = %v, want ErrInternal", ev.Err)
	}
	ev = receive(t, events)
	if ev.Err == nil || ev.Occurrences != nil {
		t.Fatalf("error event = %+v", ev)
	}
	ev = receive(t, events)
	if ev.Err != nil || len(ev.Occurrences) != 2 {
		t.Fatalf("job after failures = %+v", ev)
	}

	if got := testutil.ToFloat64(m.ScanJobsTotal.WithLabelValues("panic")); got != 1 {
		t.Errorf("panic jobs = %v", got)
	}
	if got := testutil.ToFloat64(m.ScanJobsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error jobs = %v", got)
	}
}

func TestWorkerReleasesSlotWhenIdle(t *testing.T) {
	events := make(chan Event, 4)
	s := New(Config{}, staticText("aa"), nil, events)
	defer s.Close()

	s.enqueue(Job{Pattern: "a", End: ToEnd})
	receive(t, events)

	deadline := time.Now().Add(time.Second)
	for s.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("worker never went idle, state %v", s.State())
		}
		time.Sleep(time.Millisecond)
	}

	s.enqueue(Job{Pattern: "aa", End: ToEnd})
	if ev := receive(t, events); ev.Job.Pattern != "aa" {
		t.Fatalf("second run got %q", ev.Job.Pattern)
	}
}

func TestCloseCancelsPendingAndRejects(t *testing.T) {
	events := make(chan Event, 4)
	s := New(Config{Debounce: 20 * time.Millisecond}, staticText("abc"), nil, events)

	if err := s.ScheduleFullScan(Job{Pattern: "a", End: ToEnd}); err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close()

	if err := s.ScheduleFullScan(Job{Pattern: "b"}); !errors.Is(err, apperrors.ErrSchedulerClosed) {
		t.Fatalf("ScheduleFullScan after Close = %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if n := s.JobsEnqueued(); n != 0 {
		t.Fatalf("pending scan ran after Close, enqueued %d", n)
	}
	if st := s.State(); st != StateIdle {
		t.Fatalf("State() = %v after Close", st)
	}
}

func TestSearchNowScansRegion(t *testing.T) {
	s := New(Config{}, staticText("cat concat cat"), nil, make(chan Event, 1))
	defer s.Close()

	got := s.SearchNow("cat", 0, 10, matcher.Options{CaseSensitive: true})
	if len(got) != 2 || got[0].Start != 0 || got[1].Start != 7 {
		t.Fatalf("SearchNow = %v", got)
	}
	got = s.SearchNow("cat", 0, ToEnd, matcher.Options{CaseSensitive: true, WholeWordOnly: true})
	if len(got) != 2 || got[1].Start != 11 {
		t.Fatalf("whole-word SearchNow = %v", got)
	}
}
