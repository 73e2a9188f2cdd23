// Package matcher finds every non-overlapping occurrence of a single-line
// pattern in a rune slice. It skips ahead on mismatches using the character
// just past the current window (a bad-character rule), and can restrict
// matches to whole words and to case-sensitive comparisons.
package matcher

import (
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
)

// Occurrence is one match: Length runes starting at Start.
type Occurrence struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End is the exclusive end position.
func (o Occurrence) End() int {
	return o.Start + o.Length
}

// Options controls how a pattern is compared against text.
type Options struct {
	CaseSensitive bool `json:"case_sensitive"`
	WholeWordOnly bool `json:"whole_word_only"`
}

const lineBreaks = "\n\r\u0085\u2028\u2029"

// Validate reports why pattern cannot be searched, or nil.
func Validate(pattern string) error {
	if pattern == "" {
		return apperrors.ErrEmptyPattern
	}
	if strings.ContainsAny(pattern, lineBreaks) {
		return apperrors.ErrMultilinePattern
	}
	return nil
}

// IsWordChar reports whether r is a letter, digit, or connector punctuation.
func IsWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Pc, r)
}

// Len returns the pattern length in runes.
func Len(pattern string) int {
	return len([]rune(pattern))
}

// Search returns the occurrences of pattern whose windows lie inside
// [searchStart, searchEnd), in ascending order. The bounds are clamped to the
// text. An invalid pattern or an inverted range yields no occurrences.
func Search(text []rune, pattern string, searchStart, searchEnd int, opts Options) []Occurrence {
	if Validate(pattern) != nil || searchEnd < searchStart {
		return nil
	}
	searchStart = clamp(searchStart, 0, len(text))
	searchEnd = clamp(searchEnd, 0, len(text))

	pat := []rune(pattern)
	m := len(pat)
	if searchEnd-searchStart < m {
		return nil
	}
	shift := buildShiftTable(pat, opts.CaseSensitive)

	var result []Occurrence
	pos := searchStart
	for pos+m <= searchEnd {
		if windowMatches(text[pos:pos+m], pat, opts.CaseSensitive) {
			if !opts.WholeWordOnly || isWholeWord(text, pos, pos+m) {
				result = append(result, Occurrence{Start: pos, Length: m})
			}
			pos += m
			continue
		}
		next := pos + m
		if next >= searchEnd {
			break
		}
		pos += shiftFor(shift, text[next], m, opts.CaseSensitive)
	}
	return result
}

// buildShiftTable maps each pattern character to its distance from the end
// of the pattern. Later positions overwrite earlier ones so the smallest safe
// shift wins.
func buildShiftTable(pat []rune, caseSensitive bool) map[rune]int {
	m := len(pat)
	table := make(map[rune]int, m*2)
	for i, r := range pat {
		if caseSensitive {
			table[r] = m - i
			continue
		}
		table[unicode.ToLower(r)] = m - i
		table[unicode.ToUpper(r)] = m - i
	}
	return table
}

// shiftFor looks up r and falls back to m+1. Case-insensitive tables are
// probed with both case variants of r and the smaller shift wins, so no
// fold-equal pattern character is ever skipped.
func shiftFor(table map[rune]int, r rune, m int, caseSensitive bool) int {
	if caseSensitive {
		if s, ok := table[r]; ok {
			return s
		}
		return m + 1
	}
	shift := m + 1
	for _, v := range [...]rune{r, unicode.ToLower(r), unicode.ToUpper(r)} {
		if s, ok := table[v]; ok && s < shift {
			shift = s
		}
	}
	return shift
}

func windowMatches(window, pat []rune, caseSensitive bool) bool {
	for i, r := range pat {
		if !equalRune(window[i], r, caseSensitive) {
			return false
		}
	}
	return true
}

func equalRune(a, b rune, caseSensitive bool) bool {
	if a == b {
		return true
	}
	if caseSensitive {
		return false
	}
	return unicode.ToLower(a) == unicode.ToLower(b) || unicode.ToUpper(a) == unicode.ToUpper(b)
}

func isWholeWord(text []rune, start, end int) bool {
	if start > 0 && IsWordChar(text[start-1]) {
		return false
	}
	if end < len(text) && IsWordChar(text[end]) {
		return false
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
