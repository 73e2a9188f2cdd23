package matcher

import (
	"errors"
	"math/rand"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
)

func starts(occs []Occurrence) []int {
	out := make([]int, len(occs))
	for i, o := range occs {
		out[i] = o.Start
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		pattern string
		start   int
		end     int
		opts    Options
		want    []int
	}{
		{"whole word skips embedded", "there the then", "the", 0, 14, Options{WholeWordOnly: true}, []int{6}},
		{"substring without whole word", "there the then", "the", 0, 14, Options{}, []int{0, 6, 10}},
		{"case sensitive", "The THE the", "the", 0, 11, Options{CaseSensitive: true}, []int{8}},
		{"case insensitive", "The THE the", "the", 0, 11, Options{}, []int{0, 4, 8}},
		{"matches never overlap", "aaaaa", "aa", 0, 5, Options{CaseSensitive: true}, []int{0, 2}},
		{"window must fit inside range", "abcabc", "abc", 0, 5, Options{}, []int{0}},
		{"range start respected", "abcabc", "abc", 1, 6, Options{}, []int{3}},
		{"bounds clamped", "abcabc", "abc", -10, 100, Options{}, []int{0, 3}},
		{"inverted range", "abcabc", "abc", 4, 2, Options{}, nil},
		{"empty pattern", "abc", "", 0, 3, Options{}, nil},
		{"pattern with newline", "ab\ncd", "b\nc", 0, 5, Options{}, nil},
		{"pattern with carriage return", "ab\rcd", "b\r", 0, 5, Options{}, nil},
		{"pattern longer than text", "ab", "abc", 0, 2, Options{}, nil},
		{"connector punctuation is a word char", "foo_bar foo", "foo", 0, 11, Options{WholeWordOnly: true}, []int{8}},
		{"digits are word chars", "x1 x 1x", "x", 0, 7, Options{WholeWordOnly: true}, []int{3}},
		{"unicode runes", "straße STRASSE straße", "straße", 0, 21, Options{}, []int{0, 15}},
		{"multibyte positions are rune offsets", "日本語 日本", "日本", 0, 6, Options{}, []int{0, 4}},
		{"match at text end", "xx needle", "needle", 0, 9, Options{}, []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Search([]rune(tt.text), tt.pattern, tt.start, tt.end, tt.opts)
			if !equalInts(starts(got), tt.want) {
				t.Errorf("Search(%q, %q) = %v, want %v", tt.text, tt.pattern, starts(got), tt.want)
			}
			for _, o := range got {
				if o.Length != Len(tt.pattern) {
					t.Errorf("occurrence %+v has wrong length", o)
				}
			}
		})
	}
}

func TestSearchRejectedWholeWordConsumesWindow(t *testing.T) {
	// "aa" at 0 fails the word check; the scan resumes at 2, so the
	// standalone-looking window starting at 1 is never considered.
	got := Search([]rune("aaa aa"), "aa", 0, 6, Options{WholeWordOnly: true})
	if !equalInts(starts(got), []int{4}) {
		t.Fatalf("got %v, want [4]", starts(got))
	}
}

func TestSearchCaseFoldedShift(t *testing.T) {
	// Kelvin sign folds to 'k' but is neither the upper nor lower variant
	// stored for 'k'; the shift lookup must still find it.
	text := []rune("xxx\u212Aey")
	got := Search(text, "key", 0, len(text), Options{})
	if !equalInts(starts(got), []int{3}) {
		t.Fatalf("got %v, want [3]", starts(got))
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(""); !errors.Is(err, apperrors.ErrEmptyPattern) {
		t.Errorf("empty pattern: got %v", err)
	}
	for _, p := range []string{"a\nb", "a\rb", "a\u2028b", "a\u2029b", "a\u0085b"} {
		if err := Validate(p); !errors.Is(err, apperrors.ErrMultilinePattern) {
			t.Errorf("Validate(%q) = %v, want ErrMultilinePattern", p, err)
		}
	}
	if err := Validate("a b\tc"); err != nil {
		t.Errorf("spaces and tabs are allowed, got %v", err)
	}
}

// naiveSearch is the reference: test every position, advance by the pattern
// length after any full-window match.
func naiveSearch(text []rune, pat []rune, opts Options) []int {
	var out []int
	m := len(pat)
	for pos := 0; pos+m <= len(text); {
		if windowMatches(text[pos:pos+m], pat, opts.CaseSensitive) {
			if !opts.WholeWordOnly || isWholeWord(text, pos, pos+m) {
				out = append(out, pos)
			}
			pos += m
			continue
		}
		pos++
	}
	return out
}

func TestSearchAgreesWithNaiveScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abAB _.")
	randString := func(n int) []rune {
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return out
	}
	for i := 0; i < 2000; i++ {
		text := randString(rng.Intn(60))
		pat := randString(1 + rng.Intn(4))
		opts := Options{CaseSensitive: rng.Intn(2) == 0, WholeWordOnly: rng.Intn(2) == 0}
		got := starts(Search(text, string(pat), 0, len(text), opts))
		want := naiveSearch(text, pat, opts)
		if !equalInts(got, want) {
			t.Fatalf("text=%q pattern=%q opts=%+v: got %v, want %v", string(text), string(pat), opts, got, want)
		}
		for j := 1; j < len(got); j++ {
			if got[j] < got[j-1]+len(pat) {
				t.Fatalf("overlapping occurrences %d and %d for %q", got[j-1], got[j], string(pat))
			}
		}
	}
}
