// Package group runs the highlight pipeline of one view: the current
// selection group plus up to config.MaxFreezeGroups frozen groups, each with
// its own occurrence index and scan scheduler. Edits and selection changes
// fan out to every active group; finished background scans arrive on one
// shared channel drained by Run.
package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/damage"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/occurrence"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/render"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/settings"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/metrics"
)

// SelectionID is the group that follows the current selection.
const SelectionID = 0

// Viewport reports the rune span currently on screen.
type Viewport interface {
	VisibleRange() (start, end int)
}

// Publisher receives a summary whenever a group's match set changes.
type Publisher interface {
	Publish(Summary)
}

// Summary describes a group after a change.
type Summary struct {
	GroupID  int       `json:"groupId"`
	Pattern  string    `json:"pattern"`
	Count    int       `json:"count"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred"`
}

// Group is one active highlight slot.
type Group struct {
	ID        int
	Settings  settings.Group
	Index     *occurrence.Index
	Scheduler *scheduler.Scheduler
}

// Status is a read-only view of a group for the API.
type Status struct {
	ID      int    `json:"id"`
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
	Color   string `json:"color"`
	State   string `json:"scheduler"`
}

// Config holds the manager's share of the daemon config.
type Config struct {
	Highlight config.HighlightConfig
	Scheduler config.SchedulerConfig
}

// SerialSource is a text source that can hold off edits while a caller
// reads it. *document.Buffer implements it.
type SerialSource interface {
	scheduler.TextSource
	Read(fn func(text []rune))
}

// Manager owns the selection group and the frozen groups of one view.
type Manager struct {
	cfg      Config
	source   scheduler.TextSource
	viewport Viewport
	tracker  *damage.Tracker
	store    settings.Store
	defaults *settings.Static

	scanner   scheduler.Scanner
	metrics   *metrics.Metrics
	publisher Publisher
	logger    *slog.Logger

	events chan scheduler.Event

	// syncMu orders rebuilds, edits and scan merges, so each index sees
	// them in the same order as the text does.
	syncMu sync.Mutex

	mu     sync.RWMutex
	groups [config.MaxFreezeGroups + 1]*Group
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithScanner sets the scanner used for background full scans.
func WithScanner(s scheduler.Scanner) Option {
	return func(m *Manager) { m.scanner = s }
}

// WithMetrics records scan, merge and edit metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithPublisher sends a Summary after every change to a group.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// NewManager wires the pipeline. A nil store serves settings from
// cfg.Highlight.
func NewManager(cfg Config, source scheduler.TextSource, vp Viewport, tracker *damage.Tracker, store settings.Store, opts ...Option) *Manager {
	if cfg.Scheduler.EventsBuffer <= 0 {
		cfg.Scheduler.EventsBuffer = 64
	}
	defaults := settings.NewStatic(cfg.Highlight)
	if store == nil {
		store = defaults
	}
	m := &Manager{
		cfg:      cfg,
		source:   source,
		viewport: vp,
		tracker:  tracker,
		store:    store,
		defaults: defaults,
		logger:   logger.WithComponent("group-manager"),
		events:   make(chan scheduler.Event, cfg.Scheduler.EventsBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) group(id int) *Group {
	if id < 0 || id > config.MaxFreezeGroups {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groups[id]
}

// activate returns the group in slot id, creating it with freshly loaded
// settings on first use.
func (m *Manager) activate(ctx context.Context, id int) (*Group, error) {
	if g := m.group(id); g != nil {
		return g, nil
	}
	gs, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnknownGroup) {
			return nil, err
		}
		m.logger.Warn("settings load failed, using defaults", "group_id", id, "error", err)
		gs, _ = m.defaults.Load(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, apperrors.ErrSchedulerClosed
	}
	if g := m.groups[id]; g != nil {
		return g, nil
	}
	g := &Group{
		ID:       id,
		Settings: gs,
		Index:    occurrence.New(m.tracker, occurrence.WithLogger(logger.WithGroup("occurrence", id))),
		Scheduler: scheduler.New(scheduler.Config{
			GroupID:  id,
			Debounce: m.cfg.Scheduler.Debounce,
			Metrics:  m.metrics,
		}, m.source, m.scanner, m.events),
	}
	m.groups[id] = g
	m.logger.Info("group activated", "group_id", id, "color", gs.Color, "case_sensitive", gs.CaseSensitive, "whole_word", gs.WholeWordOnly)
	return g, nil
}

// OnSelectionChanged rebuilds the selection group for text. An empty or
// multi-line selection clears it.
func (m *Manager) OnSelectionChanged(ctx context.Context, text string) error {
	if err := matcher.Validate(text); err != nil {
		if g := m.group(SelectionID); g != nil && g.Index.Pattern() != "" {
			g.Index.Clear()
			m.observe(g, "cleared")
		}
		logger.FromContext(ctx).Debug("selection not searchable", "reason", err)
		return nil
	}
	g, err := m.activate(ctx, SelectionID)
	if err != nil {
		return err
	}
	if g.Index.Pattern() == text {
		return nil
	}
	return m.rebuild(g, text, "selection")
}

// rebuild replaces g's matches with a scan of the visible region and queues
// a full scan behind it.
func (m *Manager) rebuild(g *Group, pattern, reason string) error {
	var err error
	m.serialize(func() {
		lo, hi := m.viewport.VisibleRange()
		visible := g.Scheduler.SearchNow(pattern, lo, hi, g.Settings.Options())
		g.Index.ReplaceAll(pattern, matcher.Len(pattern), visible)
		m.observe(g, reason)
		err = m.scheduleFull(g)
	})
	return err
}

// serialize runs fn while no edit can land. A SerialSource holds its edits
// off for the duration, which also guarantees that the listener calls for
// the text fn reads have all returned.
func (m *Manager) serialize(fn func()) {
	locked := func() {
		m.syncMu.Lock()
		defer m.syncMu.Unlock()
		fn()
	}
	if s, ok := m.source.(SerialSource); ok {
		s.Read(func([]rune) { locked() })
		return
	}
	locked()
}

func (m *Manager) scheduleFull(g *Group) error {
	pattern := g.Index.Pattern()
	if pattern == "" {
		return nil
	}
	err := g.Scheduler.ScheduleFullScan(scheduler.Job{
		GroupID:  g.ID,
		Pattern:  pattern,
		Start:    0,
		End:      scheduler.ToEnd,
		Options:  g.Settings.Options(),
		Revision: g.Index.Revision(),
	})
	if err != nil {
		return fmt.Errorf("scheduling full scan for group %d: %w", g.ID, err)
	}
	return nil
}

// OnEdit reconciles every active group with one buffer mutation. It has the
// signature of a document edit listener; a SerialSource must call it before
// releasing the edit it reports.
func (m *Manager) OnEdit(position, oldLength, newLength int) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	text := m.source.Snapshot()
	for _, g := range m.active() {
		pattern := g.Index.Pattern()
		if pattern == "" {
			continue
		}
		began := time.Now()
		n := matcher.Len(pattern)
		patch := matcher.Search(text, pattern, position-n, position+newLength+n, g.Settings.Options())
		g.Index.ApplyEdit(position, oldLength, newLength, patch)
		if m.metrics != nil {
			m.metrics.ScanLatency.WithLabelValues("patch").Observe(time.Since(began).Seconds())
			m.metrics.EditsAppliedTotal.Inc()
		}
		m.observe(g, "edit")
		if err := m.scheduleFull(g); err != nil {
			m.logger.Warn("full scan not scheduled after edit", "group_id", g.ID, "error", err)
		}
	}
}

// Freeze copies the current selection pattern into freeze slot 1..3.
func (m *Manager) Freeze(ctx context.Context, slot int) error {
	if slot < 1 || slot > config.MaxFreezeGroups {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"freeze slot must be between 1 and %d", config.MaxFreezeGroups)
	}
	sel := m.group(SelectionID)
	if sel == nil || sel.Index.Pattern() == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "nothing selected to freeze")
	}
	pattern := sel.Index.Pattern()
	g, err := m.activate(ctx, slot)
	if err != nil {
		return err
	}
	if g.Index.Pattern() == pattern {
		return nil
	}
	logger.FromContext(ctx).Info("group frozen", "group_id", slot, "pattern_length", matcher.Len(pattern))
	return m.rebuild(g, pattern, "freeze")
}

// Clear empties a group and releases its scheduler. The next activation
// reloads its settings.
func (m *Manager) Clear(slot int) error {
	if slot < 0 || slot > config.MaxFreezeGroups {
		return apperrors.Newf(apperrors.ErrUnknownGroup, http.StatusNotFound, "group %d", slot)
	}
	m.mu.Lock()
	g := m.groups[slot]
	m.groups[slot] = nil
	m.mu.Unlock()
	if g == nil {
		return nil
	}
	g.Index.Clear()
	g.Scheduler.Close()
	m.observe(g, "cleared")
	return nil
}

// QueryRange returns the matches of one group overlapping [lo, hi).
func (m *Manager) QueryRange(id, lo, hi int) ([]matcher.Occurrence, error) {
	g := m.group(id)
	if g == nil {
		return nil, apperrors.Newf(apperrors.ErrUnknownGroup, http.StatusNotFound, "group %d is not active", id)
	}
	return g.Index.QueryRange(lo, hi), nil
}

// Highlights returns the spans of every active group overlapping [lo, hi),
// frozen groups first so they paint over the selection.
func (m *Manager) Highlights(lo, hi int) []render.Span {
	groups := m.active()
	var spans []render.Span
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		for _, o := range g.Index.QueryRange(lo, hi) {
			spans = append(spans, render.Span{Start: o.Start, End: o.End(), Slot: g.ID})
		}
	}
	return spans
}

// FlushDamage hands the accumulated damage to the renderer.
func (m *Manager) FlushDamage() (damage.Rect, bool) {
	rect, ok := m.tracker.Flush()
	if ok && m.metrics != nil {
		m.metrics.DamageFlushesTotal.Inc()
	}
	return rect, ok
}

// Statuses lists the active groups in slot order.
func (m *Manager) Statuses() []Status {
	groups := m.active()
	out := make([]Status, 0, len(groups))
	for _, g := range groups {
		out = append(out, Status{
			ID:      g.ID,
			Pattern: g.Index.Pattern(),
			Count:   g.Index.Len(),
			Color:   g.Settings.Color,
			State:   g.Scheduler.State().String(),
		})
	}
	return out
}

// active returns the active groups in slot order.
func (m *Manager) active() []*Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		if g != nil {
			out = append(out, g)
		}
	}
	return out
}

// Run merges finished background scans until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("group manager started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("group manager stopping", "reason", ctx.Err())
			return nil
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev scheduler.Event) {
	log := m.logger.With("group_id", ev.Job.GroupID, "pattern_length", matcher.Len(ev.Job.Pattern))
	if ev.Err != nil {
		log.Warn("full scan failed", "error", ev.Err)
		return
	}
	g := m.group(ev.Job.GroupID)
	if g == nil {
		m.stale()
		return
	}
	var (
		merged int
		ok     bool
	)
	m.serialize(func() {
		merged, ok = g.Index.MergeAtRevision(ev.Job.Revision, ev.Occurrences)
	})
	if !ok {
		log.Debug("discarding stale scan result")
		m.stale()
		return
	}
	if m.metrics != nil {
		m.metrics.DiscoveredMerged.Add(float64(merged))
	}
	log.Debug("full scan merged",
		"found", len(ev.Occurrences),
		"merged", merged,
		"duration_ms", ev.Duration.Milliseconds(),
	)
	m.observe(g, "scan")
}

func (m *Manager) stale() {
	if m.metrics != nil {
		m.metrics.StaleResultsTotal.Inc()
	}
}

func (m *Manager) observe(g *Group, reason string) {
	count := g.Index.Len()
	if m.metrics != nil {
		m.metrics.LiveOccurrences.WithLabelValues(strconv.Itoa(g.ID)).Set(float64(count))
	}
	if m.publisher != nil {
		m.publisher.Publish(Summary{
			GroupID:  g.ID,
			Pattern:  g.Index.Pattern(),
			Count:    count,
			Reason:   reason,
			Occurred: time.Now().UTC(),
		})
	}
}

// Close stops every group's scheduler.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	groups := m.groups
	m.groups = [config.MaxFreezeGroups + 1]*Group{}
	m.mu.Unlock()
	for _, g := range groups {
		if g != nil {
			g.Scheduler.Close()
		}
	}
}
