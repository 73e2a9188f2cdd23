// Command highlight prints a window of a file with every occurrence of a
// pattern highlighted, plus up to three frozen patterns in their own
// colours.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/damage"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/document"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/group"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/render"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/viewport"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
)

// scanWaiter records the last pattern each group finished a full scan for.
type scanWaiter struct {
	mu      sync.Mutex
	scanned map[int]string
	changed chan struct{}
}

func (w *scanWaiter) Publish(s group.Summary) {
	if s.Reason != "scan" {
		return
	}
	w.mu.Lock()
	w.scanned[s.GroupID] = s.Pattern
	w.mu.Unlock()
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// wait blocks until every group with a pattern has been fully scanned.
func (w *scanWaiter) wait(ctx context.Context, statuses []group.Status) bool {
	for {
		if w.done(statuses) {
			return true
		}
		select {
		case <-w.changed:
		case <-ctx.Done():
			return false
		}
	}
}

func (w *scanWaiter) done(statuses []group.Status) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, st := range statuses {
		if st.Pattern != "" && w.scanned[st.ID] != st.Pattern {
			return false
		}
	}
	return true
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	pattern := flag.String("pattern", "", "pattern to highlight")
	freeze := flag.String("freeze", "", "comma-separated patterns for the freeze slots")
	caseSensitive := flag.Bool("case", false, "match case")
	wholeWord := flag.Bool("word", false, "whole words only")
	top := flag.Int("top", 0, "first line to show")
	lines := flag.Int("lines", 0, "number of lines to show (default from config)")
	numbers := flag.Bool("n", true, "show line numbers")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: highlight [flags] FILE\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	cfg.Highlight.CaseSensitive = cfg.Highlight.CaseSensitive || *caseSensitive
	cfg.Highlight.WholeWordOnly = cfg.Highlight.WholeWordOnly || *wholeWord
	if *lines > 0 {
		cfg.Viewport.VisibleLines = *lines
	}

	doc, err := document.Load(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "highlight: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vp := viewport.New(doc, cfg.Viewport)
	vp.ScrollTo(*top)
	waiter := &scanWaiter{scanned: make(map[int]string), changed: make(chan struct{}, 1)}
	cfg.Scheduler.Debounce = time.Millisecond
	mgr := group.NewManager(group.Config{
		Highlight: cfg.Highlight,
		Scheduler: cfg.Scheduler,
	}, doc, vp, damage.NewTracker(vp), nil, group.WithPublisher(waiter))
	defer mgr.Close()
	go mgr.Run(ctx)

	var frozen []string
	if *freeze != "" {
		frozen = strings.Split(*freeze, ",")
	}
	if len(frozen) > config.MaxFreezeGroups {
		fmt.Fprintf(os.Stderr, "highlight: at most %d freeze patterns\n", config.MaxFreezeGroups)
		os.Exit(2)
	}
	for i, p := range frozen {
		if err := mgr.OnSelectionChanged(ctx, p); err != nil {
			fmt.Fprintf(os.Stderr, "highlight: %v\n", err)
			os.Exit(1)
		}
		if err := mgr.Freeze(ctx, i+1); err != nil {
			fmt.Fprintf(os.Stderr, "highlight: freezing %q: %v\n", p, err)
			os.Exit(1)
		}
	}
	if err := mgr.OnSelectionChanged(ctx, *pattern); err != nil {
		fmt.Fprintf(os.Stderr, "highlight: %v\n", err)
		os.Exit(1)
	}

	if !waiter.wait(ctx, mgr.Statuses()) {
		slog.Warn("full scans did not finish, counts cover the visible lines only")
	}

	lo, hi := vp.VisibleRange()
	r := render.New(lipgloss.DefaultRenderer(), cfg.Highlight.Colors, *numbers)
	fmt.Println(r.Render(doc.Snapshot(), lo, hi, mgr.Highlights(lo, hi), vp.TopLine()+1))

	width := cfg.Viewport.Width
	for _, st := range mgr.Statuses() {
		if st.Pattern == "" {
			continue
		}
		fmt.Println(r.StatusLine(width, " [%d] %q: %d matches", st.ID, st.Pattern, st.Count))
	}
}
