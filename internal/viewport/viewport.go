// Package viewport tracks which lines of the document are on screen and maps
// text spans to the screen band that displays them.
package viewport

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/damage"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/config"
)

// Source is the document as seen by the viewport.
type Source interface {
	Snapshot() []rune
	Version() uint64
}

type Viewport struct {
	source Source
	cfg    config.ViewportConfig

	mu      sync.Mutex
	topLine int
	index   lineIndex
	indexed uint64
	built   bool
}

func New(source Source, cfg config.ViewportConfig) *Viewport {
	if cfg.VisibleLines <= 0 {
		cfg.VisibleLines = 1
	}
	if cfg.LineHeight <= 0 {
		cfg.LineHeight = 1
	}
	return &Viewport{source: source, cfg: cfg}
}

// lines returns the line index for the current document version. Callers
// hold mu.
func (v *Viewport) lines() lineIndex {
	version := v.source.Version()
	if !v.built || version != v.indexed {
		v.index = buildLineIndex(v.source.Snapshot())
		v.indexed = version
		v.built = true
	}
	return v.index
}

// ScrollTo moves the first visible line, clamped to the document.
func (v *Viewport) ScrollTo(line int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.topLine = min(max(line, 0), v.lines().count()-1)
}

func (v *Viewport) TopLine() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.topLine
}

// VisibleRange returns the rune span [start, end) of the visible lines.
func (v *Viewport) VisibleRange() (start, end int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := v.lines()
	top := min(v.topLine, idx.count()-1)
	last := min(top+v.cfg.VisibleLines, idx.count())
	return idx.start(top), idx.start(last)
}

// LineOf returns the zero-based line containing position.
func (v *Viewport) LineOf(position int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lines().lineOf(position)
}

// MapPositionRangeToScreenRect returns the full-width band from the top of
// the line holding minPos to the bottom of the line holding maxPos-1, in
// rows relative to the first visible line.
func (v *Viewport) MapPositionRangeToScreenRect(minPos, maxPos int) damage.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := v.lines()
	first := idx.lineOf(minPos)
	last := idx.lineOf(max(maxPos-1, minPos))
	return damage.Rect{
		X:      0,
		Y:      (first - v.topLine) * v.cfg.LineHeight,
		Width:  v.cfg.Width,
		Height: (last - first + 1) * v.cfg.LineHeight,
	}
}

// lineIndex holds the rune offset at which every line starts, plus the
// document length as a sentinel.
type lineIndex []int

func buildLineIndex(text []rune) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			idx = append(idx, i+1)
		case '\n', '\u0085', '\u2028', '\u2029':
			idx = append(idx, i+1)
		}
	}
	return append(idx, len(text))
}

func (idx lineIndex) count() int {
	return len(idx) - 1
}

func (idx lineIndex) start(line int) int {
	return idx[min(max(line, 0), len(idx)-1)]
}

func (idx lineIndex) lineOf(position int) int {
	if position <= 0 {
		return 0
	}
	// Last line whose start is <= position.
	line := sort.Search(idx.count(), func(i int) bool { return idx[i] > position }) - 1
	return max(line, 0)
}
