// Package feed connects the highlighter to Kafka: it applies editor events
// (edits, selection changes, freeze and clear requests, scrolling) read from
// one topic, and publishes group summaries to another.
package feed

import "time"

const (
	TypeEdit      = "edit"
	TypeSelection = "selection"
	TypeFreeze    = "freeze"
	TypeClear     = "clear"
	TypeScroll    = "scroll"
	TypeSummary   = "summary"
)

// EditorEvent is one input from the editor front-end. Which fields are read
// depends on Type.
type EditorEvent struct {
	Type      string    `json:"type"`
	Position  int       `json:"position,omitempty"`
	OldLength int       `json:"oldLength,omitempty"`
	Text      string    `json:"text,omitempty"`
	Slot      int       `json:"slot,omitempty"`
	Line      int       `json:"line,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
