package document

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReplaceNotifiesListeners(t *testing.T) {
	b := NewBuffer("hello world")
	var got []Edit
	b.OnEdit(func(p, o, n int) { got = append(got, Edit{p, o, n}) })

	b.Insert(5, ",")
	b.Delete(0, 1)
	b.Replace(0, 4, "J")

	want := []Edit{{5, 0, 1}, {0, 1, 0}, {0, 4, 1}}
	if len(got) != len(want) {
		t.Fatalf("edits = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("edit %d = %v, want %v", i, got[i], want[i])
		}
	}
	if s := b.String(); s != "J, world" {
		t.Fatalf("text = %q", s)
	}
	if b.Version() != 3 {
		t.Fatalf("Version() = %d", b.Version())
	}
}

func TestReplaceClampsCoordinates(t *testing.T) {
	tests := []struct {
		name           string
		pos, oldLength int
		text           string
		want           string
		edit           Edit
	}{
		{"negative position", -5, 2, "x", "xcdef", Edit{0, 2, 1}},
		{"past the end", 50, 3, "!", "abcdef!", Edit{6, 0, 1}},
		{"length overruns", 4, 10, "", "abcd", Edit{4, 2, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer("abcdef")
			edit := b.Replace(tt.pos, tt.oldLength, tt.text)
			if edit != tt.edit {
				t.Errorf("edit = %+v, want %+v", edit, tt.edit)
			}
			if s := b.String(); s != tt.want {
				t.Errorf("text = %q, want %q", s, tt.want)
			}
		})
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	b := NewBuffer("αβγ")
	snap := b.Snapshot()
	b.Replace(0, 1, "Ω")
	if string(snap) != "αβγ" {
		t.Fatalf("snapshot changed to %q", string(snap))
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want rune count 3", b.Len())
	}
	if s := b.Slice(1, 99); s != "βγ" {
		t.Fatalf("Slice = %q", s)
	}
}

func TestNoOpEditIsNotBroadcast(t *testing.T) {
	b := NewBuffer("abc")
	called := false
	b.OnEdit(func(int, int, int) { called = true })
	b.Replace(1, 0, "")
	if called {
		t.Fatal("listener called for an empty edit")
	}
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b.Insert(0, "# ")
	out := filepath.Join(dir, "out.txt")
	if err := b.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "# line one\nline two\n" {
		t.Fatalf("saved %q", data)
	}

	if err := os.WriteFile(path, []byte{0xff, 0xfe}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for invalid UTF-8")
	}
	if _, err := Load(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestReadHoldsOffEdits(t *testing.T) {
	b := NewBuffer("abc")
	var notified string
	b.OnEdit(func(int, int, int) { notified = b.String() })

	done := make(chan struct{})
	b.Read(func(text []rune) {
		go func() {
			defer close(done)
			b.Insert(3, "d")
		}()
		select {
		case <-done:
			t.Error("edit landed while the text was being read")
		case <-time.After(20 * time.Millisecond):
		}
		if string(text) != "abc" || b.String() != "abc" {
			t.Errorf("text changed during Read: %q", b.String())
		}
	})
	<-done

	if notified != "abcd" {
		t.Fatalf("listener saw %q", notified)
	}
}
