// Package render paints the visible region of the document for a terminal,
// with one background colour per search group.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Span is a highlighted rune range [Start, End) owned by a group slot.
type Span struct {
	Start int
	End   int
	Slot  int
}

type Renderer struct {
	styles  []lipgloss.Style
	gutter  lipgloss.Style
	status  lipgloss.Style
	numbers bool
}

// New builds one highlight style per colour; slot i uses colors[i]. A nil
// renderer uses lipgloss's default output.
func New(r *lipgloss.Renderer, colors []string, lineNumbers bool) *Renderer {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	styles := make([]lipgloss.Style, len(colors))
	for i, c := range colors {
		styles[i] = r.NewStyle().
			Background(lipgloss.Color(c)).
			Foreground(lipgloss.Color("#000000"))
	}
	return &Renderer{
		styles:  styles,
		gutter:  r.NewStyle().Foreground(lipgloss.Color("241")),
		status:  r.NewStyle().Background(lipgloss.Color("#6f7cbf")).Foreground(lipgloss.Color("#ffffff")),
		numbers: lineNumbers,
	}
}

func (r *Renderer) style(slot int) (lipgloss.Style, bool) {
	if slot < 0 || slot >= len(r.styles) {
		return lipgloss.Style{}, false
	}
	return r.styles[slot], true
}

// Render paints text[lo:hi). Where spans overlap, the one listed first wins.
// firstLine is the number printed in the gutter for the first line.
func (r *Renderer) Render(text []rune, lo, hi int, spans []Span, firstLine int) string {
	lo = min(max(lo, 0), len(text))
	hi = min(max(hi, lo), len(text))

	owner := make([]int, hi-lo)
	for i := range owner {
		owner[i] = -1
	}
	for _, s := range spans {
		for p := max(s.Start, lo); p < min(s.End, hi); p++ {
			if owner[p-lo] < 0 {
				owner[p-lo] = s.Slot
			}
		}
	}

	var out strings.Builder
	line := firstLine
	lineStart := lo
	for p := lo; p <= hi; p++ {
		if p < hi && text[p] != '\n' {
			continue
		}
		if r.numbers {
			out.WriteString(r.gutter.Render(fmt.Sprintf("%4d ", line)))
		}
		for _, seg := range segments(owner[lineStart-lo : p-lo]) {
			chunk := string(text[lineStart+seg.from : lineStart+seg.to])
			if st, ok := r.style(seg.slot); ok {
				chunk = st.Render(chunk)
			}
			out.WriteString(chunk)
		}
		if p < hi {
			out.WriteByte('\n')
		}
		line++
		lineStart = p + 1
	}
	return out.String()
}

// StatusLine renders a one-line summary bar.
func (r *Renderer) StatusLine(width int, format string, args ...any) string {
	return r.status.Width(width).Render(fmt.Sprintf(format, args...))
}

type segment struct {
	from, to int
	slot     int
}

// segments splits a line into runs of equal owner.
func segments(owner []int) []segment {
	var segs []segment
	for i := 0; i < len(owner); {
		j := i + 1
		for j < len(owner) && owner[j] == owner[i] {
			j++
		}
		segs = append(segs, segment{from: i, to: j, slot: owner[i]})
		i = j
	}
	return segs
}
