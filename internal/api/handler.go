// Package api exposes the highlighter over HTTP: selection and edit input,
// freeze-group management, occurrence queries and damage flushing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/damage"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/document"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/group"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/render"
	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Highlighter is the part of group.Manager the API drives.
type Highlighter interface {
	OnSelectionChanged(ctx context.Context, text string) error
	Freeze(ctx context.Context, slot int) error
	Clear(slot int) error
	Statuses() []group.Status
	QueryRange(id, lo, hi int) ([]matcher.Occurrence, error)
	Highlights(lo, hi int) []render.Span
	FlushDamage() (damage.Rect, bool)
}

type Document interface {
	Replace(position, oldLength int, text string) document.Edit
	Len() int
	Version() uint64
	String() string
}

type Viewport interface {
	ScrollTo(line int)
	TopLine() int
	VisibleRange() (start, end int)
}

// ScanCache is the optional shared cache of full-scan results.
type ScanCache interface {
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) error
}

type Handler struct {
	highlighter Highlighter
	doc         Document
	viewport    Viewport
	cache       ScanCache
	logger      *slog.Logger
}

type Option func(*Handler)

func WithCache(c ScanCache) Option {
	return func(h *Handler) { h.cache = c }
}

func New(hl Highlighter, doc Document, vp Viewport, opts ...Option) *Handler {
	h := &Handler{
		highlighter: hl,
		doc:         doc,
		viewport:    vp,
		logger:      logger.WithComponent("api-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type selectionRequest struct {
	Text string `json:"text"`
}

type editRequest struct {
	Position  int    `json:"position"`
	OldLength int    `json:"oldLength"`
	Text      string `json:"text"`
}

type editResponse struct {
	document.Edit
	Version uint64 `json:"version"`
}

type viewportRequest struct {
	TopLine int `json:"topLine"`
}

type viewportResponse struct {
	TopLine int `json:"topLine"`
	Start   int `json:"start"`
	End     int `json:"end"`
}

type occurrencesResponse struct {
	GroupID     int                  `json:"groupId"`
	Lo          int                  `json:"lo"`
	Hi          int                  `json:"hi"`
	Occurrences []matcher.Occurrence `json:"occurrences"`
}

type damageResponse struct {
	Dirty bool        `json:"dirty"`
	Rect  damage.Rect `json:"rect"`
}

// Selection replaces the selection group's pattern.
func (h *Handler) Selection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.highlighter.OnSelectionChanged(r.Context(), req.Text); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Debug("selection changed", "pattern_length", matcher.Len(req.Text))
	h.writeJSON(w, http.StatusOK, h.highlighter.Statuses())
}

// Edit applies one replacement to the document. Coordinates are rune
// offsets and must lie inside the current text.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !h.decode(w, r, &req) {
		return
	}
	n := h.doc.Len()
	if req.Position < 0 || req.OldLength < 0 || req.Position+req.OldLength > n {
		h.writeAppError(w, r, apperrors.Newf(apperrors.ErrInvalidRange, http.StatusBadRequest,
			"edit [%d, %d) outside document of length %d", req.Position, req.Position+req.OldLength, n))
		return
	}
	edit := h.doc.Replace(req.Position, req.OldLength, req.Text)
	h.writeJSON(w, http.StatusOK, editResponse{Edit: edit, Version: h.doc.Version()})
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"text":    h.doc.String(),
		"length":  h.doc.Len(),
		"version": h.doc.Version(),
	})
}

// Scroll moves the viewport. Later visible scans use the new range.
func (h *Handler) Scroll(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.viewport.ScrollTo(req.TopLine)
	h.Viewport(w, r)
}

func (h *Handler) Viewport(w http.ResponseWriter, r *http.Request) {
	start, end := h.viewport.VisibleRange()
	h.writeJSON(w, http.StatusOK, viewportResponse{TopLine: h.viewport.TopLine(), Start: start, End: end})
}

func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.highlighter.Statuses())
}

// Freeze copies the selection group into the slot named in the path.
func (h *Handler) Freeze(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}
	if err := h.highlighter.Freeze(r.Context(), slot); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.highlighter.Statuses())
}

func (h *Handler) ClearGroup(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}
	if err := h.highlighter.Clear(slot); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Occurrences lists one group's matches overlapping [lo, hi). Missing bounds
// default to the visible range.
func (h *Handler) Occurrences(w http.ResponseWriter, r *http.Request) {
	id, ok := h.slot(w, r)
	if !ok {
		return
	}
	lo, hi, err := h.bounds(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	occs, err := h.highlighter.QueryRange(id, lo, hi)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if occs == nil {
		occs = []matcher.Occurrence{}
	}
	h.writeJSON(w, http.StatusOK, occurrencesResponse{GroupID: id, Lo: lo, Hi: hi, Occurrences: occs})
}

// Highlights returns the paint spans of every group in [lo, hi).
func (h *Handler) Highlights(w http.ResponseWriter, r *http.Request) {
	lo, hi, err := h.bounds(r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	spans := h.highlighter.Highlights(lo, hi)
	if spans == nil {
		spans = []render.Span{}
	}
	h.writeJSON(w, http.StatusOK, spans)
}

// FlushDamage returns the pending repaint rectangle and resets it.
func (h *Handler) FlushDamage(w http.ResponseWriter, r *http.Request) {
	rect, dirty := h.highlighter.FlushDamage()
	h.writeJSON(w, http.StatusOK, damageResponse{Dirty: dirty, Rect: rect})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) slot(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "group slot must be an integer")
		return 0, false
	}
	return slot, true
}

func (h *Handler) bounds(r *http.Request) (int, int, error) {
	lo, hi := h.viewport.VisibleRange()
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"lo", &lo}, {"hi", &hi}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be an integer", p.name)
		}
		*p.dst = v
	}
	if lo > hi {
		return 0, 0, apperrors.Newf(apperrors.ErrInvalidRange, http.StatusBadRequest, "lo %d is after hi %d", lo, hi)
	}
	return lo, hi, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err to its status. Internal errors are logged and
// reported without detail.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, status, http.StatusText(status))
		return
	}
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	h.writeError(w, status, msg)
}
