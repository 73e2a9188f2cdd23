package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

// plainRenderer writes to a buffer, so lipgloss detects no colour support
// and styles render as plain text.
func plainRenderer(numbers bool) *Renderer {
	return New(lipgloss.NewRenderer(&bytes.Buffer{}), []string{"#ffd75f", "#87d7ff"}, numbers)
}

func TestSegments(t *testing.T) {
	got := segments([]int{-1, -1, 0, 0, 1, -1})
	want := []segment{{0, 2, -1}, {2, 4, 0}, {4, 5, 1}, {5, 6, -1}}
	if len(got) != len(want) {
		t.Fatalf("segments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segment %d = %v, want %v", i, got[i], want[i])
		}
	}
	if segments(nil) != nil {
		t.Fatal("empty line should have no segments")
	}
}

func TestRenderKeepsText(t *testing.T) {
	text := []rune("alpha beta\ngamma beta\ndelta")
	spans := []Span{{6, 10, 0}, {17, 21, 1}, {0, 100, 1}}
	got := plainRenderer(false).Render(text, 0, len(text), spans, 1)
	if got != string(text) {
		t.Fatalf("Render = %q, want the original text", got)
	}
}

func TestRenderWindowAndGutter(t *testing.T) {
	text := []rune("one\ntwo\nthree\n")
	got := plainRenderer(true).Render(text, 4, 13, nil, 2)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasSuffix(lines[0], "two") || !strings.Contains(lines[0], "2") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "three") || !strings.Contains(lines[1], "3") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestRenderClampsRange(t *testing.T) {
	text := []rune("short")
	if got := plainRenderer(false).Render(text, -4, 99, []Span{{-3, 2, 0}}, 1); got != "short" {
		t.Fatalf("Render = %q", got)
	}
	if got := plainRenderer(false).Render(text, 3, 1, nil, 1); got != "" {
		t.Fatalf("inverted range rendered %q", got)
	}
}

func TestStatusLineHasText(t *testing.T) {
	got := plainRenderer(false).StatusLine(30, "group %d: %d matches", 1, 12)
	if !strings.Contains(got, "group 1: 12 matches") {
		t.Fatalf("StatusLine = %q", got)
	}
	if w := lipgloss.Width(got); w != 30 {
		t.Fatalf("status width = %d, want 30", w)
	}
}
