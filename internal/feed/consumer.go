package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
)

type Editor interface {
	Replace(position, oldLength int, text string) document.Edit
	Len() int
}

type Controller interface {
	OnSelectionChanged(ctx context.Context, text string) error
	Freeze(ctx context.Context, slot int) error
	Clear(slot int) error
}

type Scroller interface {
	ScrollTo(line int)
}

// Applier turns editor events into document and group operations.
type Applier struct {
	editor   Editor
	groups   Controller
	scroller Scroller
	logger   *slog.Logger
}

// NewApplier builds an Applier. A nil scroller ignores scroll events.
func NewApplier(editor Editor, groups Controller, scroller Scroller) *Applier {
	return &Applier{
		editor:   editor,
		groups:   groups,
		scroller: scroller,
		logger:   logger.WithComponent("editor-feed"),
	}
}

// Apply performs one event. Events that can never succeed return an
// ErrInvalidInput error.
func (a *Applier) Apply(ctx context.Context, ev EditorEvent) error {
	switch ev.Type {
	case TypeEdit:
		n := a.editor.Len()
		if ev.Position < 0 || ev.OldLength < 0 || ev.Position+ev.OldLength > n {
			return apperrors.Newf(apperrors.ErrInvalidRange, http.StatusBadRequest,
				"edit [%d, %d) outside document of length %d", ev.Position, ev.Position+ev.OldLength, n)
		}
		a.editor.Replace(ev.Position, ev.OldLength, ev.Text)
		return nil
	case TypeSelection:
		return a.groups.OnSelectionChanged(ctx, ev.Text)
	case TypeFreeze:
		return a.groups.Freeze(ctx, ev.Slot)
	case TypeClear:
		return a.groups.Clear(ev.Slot)
	case TypeScroll:
		if a.scroller != nil {
			a.scroller.ScrollTo(ev.Line)
		}
		return nil
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown event type %q", ev.Type)
	}
}

// Handler returns a kafka.MessageHandler applying editor events. Malformed
// or rejected events are logged and committed so they do not block the
// partition; only failures worth retrying are returned.
func (a *Applier) Handler() kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		ev, err := kafka.DecodeJSON[EditorEvent](msg.Value)
		if err != nil {
			a.logger.Error("failed to decode editor event", "error", err, "offset", msg.Offset)
			return nil
		}
		if ev.Type == "" {
			ev.Type = msg.Type
		}
		if err := a.Apply(ctx, ev); err != nil {
			if retryable(err) {
				return fmt.Errorf("applying %s event: %w", ev.Type, err)
			}
			a.logger.Warn("editor event rejected", "type", ev.Type, "offset", msg.Offset, "error", err)
			return nil
		}
		a.logger.Debug("editor event applied", "type", ev.Type, "offset", msg.Offset)
		return nil
	}
}

func retryable(err error) bool {
	if errors.Is(err, apperrors.ErrSchedulerClosed) {
		return false
	}
	return apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError
}
