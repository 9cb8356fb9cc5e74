// Package extract turns raw job input into normalized text and optional
// time-coded segments.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/proofpulse/internal/model"
)

var (
	// ErrUnsupportedType is returned for an input type with no extractor
	ErrUnsupportedType = errors.New("unsupported input type")

	// ErrTextTooShort is returned when an extractor yields less text than it accepts
	ErrTextTooShort = errors.New("extracted text too short")
)

// Minimum accepted text length per extractor, in characters
const (
	MinTextChars = 10
	MinURLChars  = 50
	MinPDFChars  = 50
)

// Extractor converts one kind of raw input into an Extraction
type Extractor interface {
	Extract(ctx context.Context, raw string) (*model.Extraction, error)
}

// Router dispatches raw input to the extractor registered for its type
type Router struct {
	extractors map[model.InputType]Extractor
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{extractors: make(map[model.InputType]Extractor)}
}

// Register sets the extractor for one or more input types
func (r *Router) Register(e Extractor, types ...model.InputType) *Router {
	for _, t := range types {
		r.extractors[t] = e
	}
	return r
}

// Route extracts raw according to inputType
func (r *Router) Route(ctx context.Context, inputType, raw string) (*model.Extraction, error) {
	t, ok := model.ParseInputType(inputType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, inputType)
	}
	e, ok := r.extractors[t]
	if !ok {
		return nil, fmt.Errorf("%w: no extractor for %q", ErrUnsupportedType, t)
	}

	out, err := e.Extract(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%s extraction failed: %w", t, err)
	}
	if out.Timestamps == nil {
		out.Timestamps = []model.Timestamp{}
	}
	return out, nil
}

// normalizeLines trims every line and drops blank ones
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func requireLength(text string, minChars int) error {
	if n := utf8.RuneCountInString(text); n < minChars {
		return fmt.Errorf("%w: %d chars, need %d", ErrTextTooShort, n, minChars)
	}
	return nil
}
