package matcher

import (
	"strings"
	"testing"
)

var benchTexts = map[string][]rune{
	"short": []rune("The quick brown fox jumps over the lazy dog"),
	"medium": []rune(strings.Repeat(`Incremental highlighting keeps every match of the
        selected word up to date while the user types. Only the edited region is
        rescanned; the rest of the index is shifted in place. `, 10)),
	"long": []rune(strings.Repeat(`func (s *Scheduler) ScheduleFullScan(job Job) error {
        s.mu.Lock()
        defer s.mu.Unlock()
        return nil
}
`, 2000)),
}

func BenchmarkSearch(b *testing.B) {
	for name, text := range benchTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				occs := Search(text, "the", 0, len(text), Options{})
				_ = occs
			}
		})
	}
}

func BenchmarkSearchWholeWordCaseSensitive(b *testing.B) {
	text := benchTexts["long"]
	opts := Options{CaseSensitive: true, WholeWordOnly: true}
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		occs := Search(text, "mu", 0, len(text), opts)
		_ = occs
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	text := benchTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			occs := Search(text, "Scheduler", 0, len(text), Options{})
			_ = occs
		}
	})
}
