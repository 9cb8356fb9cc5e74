package extract

import (
	"context"

	"github.com/ppiankov/proofpulse/internal/model"
)

// TextExtractor passes inline text through with line cleanup
type TextExtractor struct{}

// Extract normalizes the text and enforces the minimum length
func (TextExtractor) Extract(_ context.Context, raw string) (*model.Extraction, error) {
	text := normalizeLines(raw)
	if err := requireLength(text, MinTextChars); err != nil {
		return nil, err
	}
	return &model.Extraction{Text: text, Timestamps: []model.Timestamp{}}, nil
}
