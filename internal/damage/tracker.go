// Package damage accumulates the text span touched by index mutations and
// turns it into a screen rectangle when the renderer asks for it.
package damage

import (
	"sync"
)

// Rect is a screen rectangle in viewport units.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether r covers no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Viewport maps a text span to the screen area that shows it.
type Viewport interface {
	MapPositionRangeToScreenRect(minPos, maxPos int) Rect
}

// Tracker is safe for concurrent use. Include and Flush serialise through
// the tracker's own lock, so an Include racing a Flush lands either in the
// flushed span or in the next one.
type Tracker struct {
	mu       sync.Mutex
	viewport Viewport
	min      int
	max      int
	dirty    bool
}

func NewTracker(vp Viewport) *Tracker {
	return &Tracker{viewport: vp}
}

// Include widens the span to cover [position, position+length).
func (t *Tracker) Include(position, length int) {
	if length <= 0 {
		return
	}
	end := position + length
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		t.min, t.max, t.dirty = position, end, true
		return
	}
	if position < t.min {
		t.min = position
	}
	if end > t.max {
		t.max = end
	}
}

// Span returns the current span without resetting it.
func (t *Tracker) Span() (min, max int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.min, t.max, t.dirty
}

// Flush maps the span to a screen rectangle and resets it. ok is false when
// nothing was damaged since the last flush.
func (t *Tracker) Flush() (Rect, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return Rect{}, false
	}
	rect := t.viewport.MapPositionRangeToScreenRect(t.min, t.max)
	t.min, t.max, t.dirty = 0, 0, false
	return rect, true
}
