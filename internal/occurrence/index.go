// Package occurrence maintains the live match set of one search group and
// keeps it consistent with buffer edits without rescanning the document.
package occurrence

import (
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/positionset"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
)

// DamageSink receives the text spans whose highlighting changed.
type DamageSink interface {
	Include(position, length int)
}

type nopSink struct{}

func (nopSink) Include(int, int) {}

// state is published atomically after every mutation and never modified.
type state struct {
	set     positionset.Set
	pattern string
	length  int

	// revision counts ReplaceAll and ApplyEdit calls.
	revision uint64
}

// Index owns a position set plus the pattern and match length it was built
// for. Mutations are serialised by mu; readers load the published state
// without locking.
type Index struct {
	mu     sync.Mutex
	cur    atomic.Pointer[state]
	sink   DamageSink
	logger *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(idx *Index) { idx.logger = l }
}

// New returns an empty index reporting damage to sink. A nil sink discards it.
func New(sink DamageSink, opts ...Option) *Index {
	if sink == nil {
		sink = nopSink{}
	}
	idx := &Index{
		sink:   sink,
		logger: logger.WithComponent("occurrence"),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.cur.Store(&state{})
	return idx
}

func (idx *Index) load() *state {
	return idx.cur.Load()
}

func (idx *Index) Pattern() string { return idx.load().pattern }

func (idx *Index) Length() int { return idx.load().length }

func (idx *Index) Len() int { return idx.load().set.Len() }

// Revision changes whenever the pattern is replaced or an edit is applied.
func (idx *Index) Revision() uint64 { return idx.load().revision }

// Snapshot returns the current set and match length. The set is immutable.
func (idx *Index) Snapshot() (positionset.Set, int) {
	st := idx.load()
	return st.set, st.length
}

// ReplaceAll installs a freshly scanned match set for pattern. An empty occs
// clears the matches but keeps the pattern, so a full scan still in flight
// for it can land later.
func (idx *Index) ReplaceAll(pattern string, length int, occs []matcher.Occurrence) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old := idx.load()
	idx.damageSet(old.set, old.length)

	set := positionset.Build(nonOverlappingKeys(occs, length))
	if length <= 0 || pattern == "" {
		set = positionset.Set{}
	}
	idx.cur.Store(&state{set: set, pattern: pattern, length: length, revision: old.revision + 1})
	idx.damageSet(set, length)
}

// Clear drops the pattern and every match.
func (idx *Index) Clear() {
	idx.ReplaceAll("", 0, nil)
}

// ApplyEdit reconciles the set with a single buffer mutation. patch holds
// the matches found by rescanning the text around the edit, in post-edit
// coordinates.
func (idx *Index) ApplyEdit(editPos, oldLength, newLength int, patch []matcher.Occurrence) {
	if oldLength < 0 {
		oldLength = 0
	}
	if newLength < 0 {
		newLength = 0
	}
	delta := newLength - oldLength

	idx.mu.Lock()
	defer idx.mu.Unlock()

	st := idx.load()
	length := st.length

	// A match straddling editPos is stale as a whole. So is one ending
	// exactly at editPos, or starting right after the replaced text: the
	// edit changes the rune next to it, which decides whether it is still a
	// whole word. Both are dropped here and found again by the patch.
	effectiveStart := editPos
	if k, ok := st.set.Floor(editPos - 1); ok && k+length >= editPos {
		effectiveStart = k
	}

	left, rest := positionset.Split(st.set, effectiveStart-1)
	middle, right := positionset.Split(rest, editPos+oldLength)
	idx.damageSet(middle, length)

	right = right.Shift(delta)

	var patchSet positionset.Set
	if length > 0 {
		patchSet = positionset.Build(fitBetween(patch, length, left, right))
	}
	idx.damageSet(patchSet, length)

	set := positionset.Merge(positionset.Merge(left, patchSet), right)
	idx.cur.Store(&state{set: set, pattern: st.pattern, length: length, revision: st.revision + 1})

	idx.logger.Debug("edit applied",
		"position", editPos,
		"old_length", oldLength,
		"new_length", newLength,
		"dropped", middle.Len(),
		"patched", patchSet.Len(),
		"live", set.Len(),
	)
}

// MergeDiscovered adds background-scan results that lie strictly outside the
// live [Min, Max] bound. Results inside the bound are treated as already
// covered by incremental patching and dropped. An empty set accepts all.
func (idx *Index) MergeDiscovered(occs []matcher.Occurrence) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.mergeLocked(occs)
}

// MergeIfCurrent merges occs only when pattern is still the index's pattern.
// ok is false for a stale result.
func (idx *Index) MergeIfCurrent(pattern string, occs []matcher.Occurrence) (merged int, ok bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if st := idx.load(); st.pattern == "" || st.pattern != pattern {
		return 0, false
	}
	return idx.mergeLocked(occs), true
}

// MergeAtRevision merges occs only when no ReplaceAll or ApplyEdit happened
// since revision was read, so results scanned from an older text are never
// merged at shifted positions.
func (idx *Index) MergeAtRevision(revision uint64, occs []matcher.Occurrence) (merged int, ok bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if st := idx.load(); st.pattern == "" || st.revision != revision {
		return 0, false
	}
	return idx.mergeLocked(occs), true
}

func (idx *Index) mergeLocked(occs []matcher.Occurrence) int {
	st := idx.load()
	if st.length <= 0 || len(occs) == 0 {
		return 0
	}
	keys := nonOverlappingKeys(occs, st.length)

	if st.set.Empty() {
		set := positionset.Build(keys)
		idx.cur.Store(&state{set: set, pattern: st.pattern, length: st.length, revision: st.revision})
		idx.damageSet(set, st.length)
		return set.Len()
	}

	lo, _ := st.set.Min()
	hi, _ := st.set.Max()
	var below, above []int
	for _, k := range keys {
		switch {
		case k+st.length <= lo:
			below = append(below, k)
		case k >= hi+st.length:
			above = append(above, k)
		}
	}
	if len(below) == 0 && len(above) == 0 {
		return 0
	}

	belowSet := positionset.Build(below)
	aboveSet := positionset.Build(above)
	set := positionset.Merge(positionset.Merge(belowSet, st.set), aboveSet)
	idx.cur.Store(&state{set: set, pattern: st.pattern, length: st.length, revision: st.revision})
	idx.damageSet(belowSet, st.length)
	idx.damageSet(aboveSet, st.length)
	return len(below) + len(above)
}

// QueryRange returns the matches overlapping [lo, hi) in ascending order.
func (idx *Index) QueryRange(lo, hi int) []matcher.Occurrence {
	st := idx.load()
	if hi <= lo || st.length <= 0 {
		return nil
	}
	var out []matcher.Occurrence
	st.set.ForEachInRange(lo-st.length+1, hi-1, func(k int) bool {
		out = append(out, matcher.Occurrence{Start: k, Length: st.length})
		return true
	})
	return out
}

func (idx *Index) damageSet(set positionset.Set, length int) {
	lo, ok := set.Min()
	if !ok || length <= 0 {
		return
	}
	hi, _ := set.Max()
	idx.sink.Include(lo, hi+length-lo)
}

// nonOverlappingKeys returns the sorted start positions of occs, skipping
// any that would overlap the previously kept one.
func nonOverlappingKeys(occs []matcher.Occurrence, length int) []int {
	if len(occs) == 0 {
		return nil
	}
	keys := make([]int, 0, len(occs))
	for _, o := range occs {
		keys = append(keys, o.Start)
	}
	if !slices.IsSorted(keys) {
		slices.Sort(keys)
	}
	out := keys[:0]
	next := keys[0]
	for _, k := range keys {
		if k < next {
			continue
		}
		out = append(out, k)
		next = k + max(length, 1)
	}
	return out
}

// fitBetween keeps the patch keys that fit between the kept left and right
// neighbours without overlapping either.
func fitBetween(patch []matcher.Occurrence, length int, left, right positionset.Set) []int {
	keys := nonOverlappingKeys(patch, length)
	lower := math.MinInt
	if k, ok := left.Max(); ok {
		lower = k + length
	}
	upper := math.MaxInt
	if k, ok := right.Min(); ok {
		upper = k - length
	}
	out := keys[:0]
	for _, k := range keys {
		if k >= lower && k <= upper {
			out = append(out, k)
		}
	}
	return out
}
