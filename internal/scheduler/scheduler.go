// Package scheduler runs pattern scans for one search group: a synchronous
// scan of the visible region on the caller's goroutine, and a debounced
// full-document scan on a single background worker whose results are
// delivered as events.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/matcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/metrics"
)

const DefaultDebounce = 250 * time.Millisecond

// ToEnd as a Job.End scans to the end of the document snapshot.
const ToEnd = -1

// TextSource hands out an immutable snapshot of the document.
type TextSource interface {
	Snapshot() []rune
}

// Scanner runs one job over a snapshot.
type Scanner interface {
	Scan(ctx context.Context, text []rune, job Job) ([]matcher.Occurrence, error)
}

// MatcherScanner scans with the bad-character matcher directly.
type MatcherScanner struct{}

func (MatcherScanner) Scan(_ context.Context, text []rune, job Job) ([]matcher.Occurrence, error) {
	start, end := job.Bounds(len(text))
	return matcher.Search(text, job.Pattern, start, end, job.Options), nil
}

type Job struct {
	GroupID int
	Pattern string
	Start   int
	End     int
	Options matcher.Options

	// Revision is the index revision the job was scheduled against.
	Revision uint64
}

// Bounds resolves ToEnd against the text length.
func (j Job) Bounds(textLen int) (int, int) {
	end := j.End
	if end < 0 {
		end = textLen
	}
	return j.Start, end
}

// Event reports a finished background job. The receiver decides whether the
// result is still current.
type Event struct {
	Job         Job
	Occurrences []matcher.Occurrence
	Err         error
	Duration    time.Duration
}

type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateWorkerRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateWorkerRunning:
		return "worker_running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	GroupID  int
	Debounce time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics
}

type Scheduler struct {
	cfg     Config
	source  TextSource
	scanner Scanner
	events  chan<- Event
	logger  *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	closing chan struct{}

	// mu guards everything below, including acquiring and releasing the
	// worker slot.
	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	pending    bool
	queue      []Job
	running    bool
	closed     bool

	worker   *semaphore.Weighted
	wg       sync.WaitGroup
	enqueued atomic.Int64
}

// New creates a scheduler. A nil scanner scans with MatcherScanner.
func New(cfg Config, source TextSource, scanner Scanner, events chan<- Event) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if scanner == nil {
		scanner = MatcherScanner{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		source:  source,
		scanner: scanner,
		events:  events,
		logger:  logger.WithGroup("scheduler", cfg.GroupID),
		ctx:     ctx,
		cancel:  cancel,
		closing: make(chan struct{}),
		worker:  semaphore.NewWeighted(1),
	}
}

// SearchNow scans [start, end) of a fresh snapshot on the caller's goroutine.
func (s *Scheduler) SearchNow(pattern string, start, end int, opts matcher.Options) []matcher.Occurrence {
	began := time.Now()
	text := s.source.Snapshot()
	if end < 0 {
		end = len(text)
	}
	occs := matcher.Search(text, pattern, start, end, opts)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ScanLatency.WithLabelValues("visible").Observe(time.Since(began).Seconds())
	}
	return occs
}

// ScheduleFullScan (re)starts the debounce delay for job. Only the most
// recent request made before the delay expires is enqueued.
func (s *Scheduler) ScheduleFullScan(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.ErrSchedulerClosed
	}
	if s.timer != nil && s.timer.Stop() {
		s.superseded()
	}
	s.generation++
	gen := s.generation
	s.pending = true
	s.timer = time.AfterFunc(s.cfg.Debounce, func() { s.fire(gen, job) })
	return nil
}

func (s *Scheduler) fire(gen uint64, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// The timer fired while a newer request was replacing it.
	if gen != s.generation {
		s.superseded()
		return
	}
	s.pending = false
	s.timer = nil
	s.enqueueLocked(job)
}

func (s *Scheduler) superseded() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.DebounceSuperseded.Inc()
	}
}

func (s *Scheduler) enqueue(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(job)
}

func (s *Scheduler) enqueueLocked(job Job) {
	s.queue = append(s.queue, job)
	s.enqueued.Add(1)
	s.logger.Debug("scan job enqueued", "pattern", job.Pattern, "queued", len(s.queue))
	if s.worker.TryAcquire(1) {
		s.running = true
		s.wg.Add(1)
		go s.run()
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.worker.Release(1)
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.execute(job)
	}
}

func (s *Scheduler) execute(job Job) {
	began := time.Now()
	occs, err := s.scanRecovered(job)
	ev := Event{Job: job, Occurrences: occs, Err: err, Duration: time.Since(began)}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ScanLatency.WithLabelValues("full").Observe(ev.Duration.Seconds())
	}
	if err != nil {
		s.logger.Error("scan job failed", "pattern", job.Pattern, "error", err)
	} else {
		s.logger.Debug("scan job done",
			"pattern", job.Pattern,
			"occurrences", len(occs),
			"duration_ms", ev.Duration.Milliseconds(),
		)
	}

	select {
	case s.events <- ev:
	case <-s.closing:
		s.logger.Debug("dropping scan result after close", "pattern", job.Pattern)
	}
}

func (s *Scheduler) scanRecovered(job Job) (occs []matcher.Occurrence, err error) {
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			occs = nil
			err = fmt.Errorf("%w: scan panicked: %v", apperrors.ErrInternal, r)
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ScanJobsTotal.WithLabelValues(status).Inc()
		}
	}()

	text := s.source.Snapshot()
	occs, err = s.scanner.Scan(s.ctx, text, job)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("scanning %q: %w", job.Pattern, err)
	}
	return occs, nil
}

// JobsEnqueued returns how many jobs have been handed to the worker queue.
func (s *Scheduler) JobsEnqueued() int64 {
	return s.enqueued.Load()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.running:
		return StateWorkerRunning
	case s.pending:
		return StateDebouncing
	default:
		return StateIdle
	}
}

// Close cancels any pending debounce, rejects further requests, and waits
// for the worker to drain the queue. Results produced after Close are
// dropped if nobody is receiving.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	close(s.closing)
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
}
