// Package document holds the edited text as an in-memory rune buffer. It is
// the text source the scanners read from and the edit notifier the search
// groups listen to.
package document

import (
	"fmt"
	"os"
	"sync"
	"unicode/utf8"
)

// Edit describes one applied mutation in rune offsets.
type Edit struct {
	Position  int `json:"position"`
	OldLength int `json:"oldLength"`
	NewLength int `json:"newLength"`
}

// EditListener is called after every mutation, in mutation order.
type EditListener func(position, oldLength, newLength int)

// Buffer is copy-on-write: every edit installs a new rune slice, so a slice
// returned by Snapshot is never modified afterwards.
type Buffer struct {
	// editMu serialises mutations together with their listener calls.
	editMu sync.Mutex

	mu        sync.RWMutex
	text      []rune
	version   uint64
	listeners []EditListener
}

func NewBuffer(text string) *Buffer {
	return &Buffer{text: []rune(text)}
}

// Load reads a UTF-8 file into a new buffer.
func Load(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("document %s is not valid UTF-8", path)
	}
	return NewBuffer(string(data)), nil
}

// Save writes the current text to path.
func (b *Buffer) Save(path string) error {
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing document %s: %w", path, err)
	}
	return nil
}

func (b *Buffer) Snapshot() []rune {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Read calls fn with the current text while holding off edits, so every
// listener for that text has returned before fn runs. fn must not edit the
// buffer.
func (b *Buffer) Read(fn func(text []rune)) {
	b.editMu.Lock()
	defer b.editMu.Unlock()
	fn(b.Snapshot())
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.text)
}

func (b *Buffer) String() string {
	return string(b.Snapshot())
}

// Version increments on every mutation.
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// OnEdit registers a listener for subsequent mutations.
func (b *Buffer) OnEdit(l EditListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Replace swaps oldLength runes at position for text. Out-of-range
// coordinates are clamped to the buffer; the applied edit is returned.
func (b *Buffer) Replace(position, oldLength int, text string) Edit {
	b.editMu.Lock()
	defer b.editMu.Unlock()

	ins := []rune(text)

	b.mu.Lock()
	n := len(b.text)
	position = min(max(position, 0), n)
	oldLength = min(max(oldLength, 0), n-position)

	next := make([]rune, 0, n-oldLength+len(ins))
	next = append(next, b.text[:position]...)
	next = append(next, ins...)
	next = append(next, b.text[position+oldLength:]...)
	b.text = next
	b.version++
	listeners := b.listeners
	b.mu.Unlock()

	edit := Edit{Position: position, OldLength: oldLength, NewLength: len(ins)}
	if edit.OldLength == 0 && edit.NewLength == 0 {
		return edit
	}
	for _, l := range listeners {
		l(edit.Position, edit.OldLength, edit.NewLength)
	}
	return edit
}

func (b *Buffer) Insert(position int, text string) Edit {
	return b.Replace(position, 0, text)
}

func (b *Buffer) Delete(position, length int) Edit {
	return b.Replace(position, length, "")
}

// Slice returns the text of [start, end), clamped.
func (b *Buffer) Slice(start, end int) string {
	text := b.Snapshot()
	start = min(max(start, 0), len(text))
	end = min(max(end, start), len(text))
	return string(text[start:end])
}
