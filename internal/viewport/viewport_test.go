package viewport

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/damage"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/document"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/config"
)

// Lines start at 0, 4, 9 and 13; the text is 16 runes long.
const sample = "one\ntwo\r\nsix\nten"

func newViewport(visible int) (*Viewport, *document.Buffer) {
	buf := document.NewBuffer(sample)
	return New(buf, config.ViewportConfig{VisibleLines: visible, Width: 80, LineHeight: 2}), buf
}

func TestLineOf(t *testing.T) {
	vp, _ := newViewport(10)
	tests := []struct {
		pos, line int
	}{
		{-3, 0}, {0, 0}, {3, 0}, {4, 1}, {8, 1}, {9, 2}, {13, 3}, {99, 3},
	}
	for _, tt := range tests {
		if got := vp.LineOf(tt.pos); got != tt.line {
			t.Errorf("LineOf(%d) = %d, want %d", tt.pos, got, tt.line)
		}
	}
}

func TestVisibleRangeFollowsScroll(t *testing.T) {
	vp, _ := newViewport(2)
	if s, e := vp.VisibleRange(); s != 0 || e != 9 {
		t.Fatalf("VisibleRange() = %d, %d; want 0, 9", s, e)
	}
	vp.ScrollTo(2)
	if s, e := vp.VisibleRange(); s != 9 || e != 16 {
		t.Fatalf("after scroll VisibleRange() = %d, %d; want 9, 16", s, e)
	}
	vp.ScrollTo(100)
	if vp.TopLine() != 3 {
		t.Fatalf("TopLine() = %d, want clamp to 3", vp.TopLine())
	}
}

func TestMapPositionRangeToScreenRect(t *testing.T) {
	vp, _ := newViewport(4)
	got := vp.MapPositionRangeToScreenRect(5, 11)
	want := damage.Rect{X: 0, Y: 2, Width: 80, Height: 4}
	if got != want {
		t.Fatalf("rect = %+v, want %+v", got, want)
	}

	// A span ending exactly at a line start stays on the previous line.
	got = vp.MapPositionRangeToScreenRect(0, 4)
	if got.Y != 0 || got.Height != 2 {
		t.Fatalf("rect = %+v", got)
	}

	vp.ScrollTo(1)
	if got := vp.MapPositionRangeToScreenRect(0, 1); got.Y != -2 {
		t.Fatalf("rect above the viewport should have negative Y, got %+v", got)
	}
}

func TestIndexRebuildsAfterEdit(t *testing.T) {
	vp, buf := newViewport(10)
	if vp.LineOf(13) != 3 {
		t.Fatal("unexpected initial layout")
	}
	buf.Insert(0, "zero\n")
	if got := vp.LineOf(13); got != 2 {
		t.Fatalf("LineOf(13) after inserting a line = %d, want 2", got)
	}
}
