package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/middleware"
)

// RouterConfig tunes the middleware chain. A nil Metrics skips request
// instrumentation; a zero Timeout disables the per-request deadline.
type RouterConfig struct {
	Timeout time.Duration
	CORS    middleware.CORSConfig
	Metrics *metrics.Metrics
}

// NewRouter builds the HTTP handler with all routes and middleware.
//
// Route table:
//
//	GET    /api/v1/document                   → text, length, version
//	POST   /api/v1/edits                      → apply one replacement
//	POST   /api/v1/selection                  → rebuild the selection group
//	GET    /api/v1/viewport                   → visible range
//	POST   /api/v1/viewport                   → scroll
//	GET    /api/v1/groups                     → active groups
//	POST   /api/v1/groups/{slot}/freeze       → freeze the selection
//	DELETE /api/v1/groups/{slot}              → clear a group
//	GET    /api/v1/groups/{slot}/occurrences  → matches in [lo, hi)
//	GET    /api/v1/highlights                 → paint spans in [lo, hi)
//	POST   /api/v1/damage/flush               → pending repaint rect
//	GET    /api/v1/cache/stats                → scan cache counters
//	POST   /api/v1/cache/invalidate           → drop cached scans
//	GET    /health/live, /health/ready        → probes
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → handler
func NewRouter(h *Handler, checker *health.Checker, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	// Document
	mux.HandleFunc("GET /api/v1/document", h.Document)
	mux.HandleFunc("POST /api/v1/edits", h.Edit)
	mux.HandleFunc("POST /api/v1/selection", h.Selection)
	mux.HandleFunc("GET /api/v1/viewport", h.Viewport)
	mux.HandleFunc("POST /api/v1/viewport", h.Scroll)

	// Groups
	mux.HandleFunc("GET /api/v1/groups", h.Groups)
	mux.HandleFunc("POST /api/v1/groups/{slot}/freeze", h.Freeze)
	mux.HandleFunc("DELETE /api/v1/groups/{slot}", h.ClearGroup)
	mux.HandleFunc("GET /api/v1/groups/{slot}/occurrences", h.Occurrences)
	mux.HandleFunc("GET /api/v1/highlights", h.Highlights)
	mux.HandleFunc("POST /api/v1/damage/flush", h.FlushDamage)

	// Cache
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	// Applied inside-out.
	var chain http.Handler = mux
	if cfg.Timeout > 0 {
		chain = middleware.Timeout(cfg.Timeout)(chain)
	}
	if cfg.Metrics != nil {
		chain = middleware.Metrics(cfg.Metrics)(chain)
	}
	chain = middleware.CORS(cfg.CORS)(chain)
	chain = middleware.RequestID(chain)

	return chain
}
