// Package settings supplies the per-group highlight options that are read
// once when a search group is activated.
package settings

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/matcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/config"
)

const (
	KeyCaseSensitive = "case_sensitive"
	KeyWholeWord     = "whole_word"
	KeyColor         = "color"
)

// Group holds the options of one search group slot.
type Group struct {
	CaseSensitive bool   `json:"caseSensitive"`
	WholeWordOnly bool   `json:"wholeWordOnly"`
	Color         string `json:"color"`
}

func (g Group) Options() matcher.Options {
	return matcher.Options{CaseSensitive: g.CaseSensitive, WholeWordOnly: g.WholeWordOnly}
}

type Store interface {
	Load(ctx context.Context, slot int) (Group, error)
}

// Static serves every slot from the highlight section of the config.
type Static struct {
	cfg config.HighlightConfig
}

func NewStatic(cfg config.HighlightConfig) *Static {
	return &Static{cfg: cfg}
}

func (s *Static) Load(_ context.Context, slot int) (Group, error) {
	if err := checkSlot(slot); err != nil {
		return Group{}, err
	}
	return s.defaults(slot), nil
}

func (s *Static) defaults(slot int) Group {
	return Group{
		CaseSensitive: s.cfg.CaseSensitive,
		WholeWordOnly: s.cfg.WholeWordOnly,
		Color:         s.cfg.Color(slot),
	}
}

func checkSlot(slot int) error {
	if slot < 0 || slot > config.MaxFreezeGroups {
		return apperrors.Newf(apperrors.ErrUnknownGroup, http.StatusNotFound, "slot %d outside 0..%d", slot, config.MaxFreezeGroups)
	}
	return nil
}

// apply sets one stored key on g. Unknown keys are ignored so newer rows do
// not break older daemons.
func apply(g *Group, key, value string) error {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case KeyCaseSensitive:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
		g.CaseSensitive = b
	case KeyWholeWord:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
		g.WholeWordOnly = b
	case KeyColor:
		g.Color = strings.TrimSpace(value)
	}
	return nil
}

// encode is the inverse of apply.
func encode(g Group) map[string]string {
	return map[string]string{
		KeyCaseSensitive: strconv.FormatBool(g.CaseSensitive),
		KeyWholeWord:     strconv.FormatBool(g.WholeWordOnly),
		KeyColor:         g.Color,
	}
}
