package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
)

// Server exposes the highlighter collectors (scan latency and outcomes,
// merged and stale full-scan results, superseded debounces, live matches per
// group, patched edits, damage flushes, cache hits) on their own port, away
// from the editor API.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer serves h at /metrics. A nil h serves the default registry.
func NewServer(port int, h http.Handler) *Server {
	if h == nil {
		h = Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", h)

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		logger: logger.WithComponent("metrics"),
	}
}

// Start listens in the background. A listen failure is logged, not fatal:
// the highlighter keeps working without a scrape endpoint.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
