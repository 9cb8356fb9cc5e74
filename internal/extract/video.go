package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/proofpulse/internal/model"
)

// Transcripts shorter than this are logged as suspicious
const minTranscriptChars = 50

// Transcriber converts an audio or video file into time-coded text
type Transcriber interface {
	Transcribe(ctx context.Context, path, modelName string) (*model.Extraction, error)
}

// VideoExtractor transcribes uploaded video. Transcription failures
// degrade to a placeholder transcript naming the problem.
type VideoExtractor struct {
	transcriber Transcriber
	model       string
	logger      *zap.Logger
}

// NewVideoExtractor creates a video extractor; a nil transcriber always
// yields the placeholder
func NewVideoExtractor(t Transcriber, modelName string, logger *zap.Logger) *VideoExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VideoExtractor{transcriber: t, model: modelName, logger: logger}
}

// Extract transcribes the file at path
func (e *VideoExtractor) Extract(ctx context.Context, path string) (*model.Extraction, error) {
	if e.transcriber == nil {
		return placeholderTranscript(errors.New("no transcription provider configured")), nil
	}

	out, err := e.transcriber.Transcribe(ctx, path, e.model)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("video transcription failed, using placeholder",
			zap.String("path", path), zap.Error(err))
		return placeholderTranscript(err), nil
	}
	if out == nil || strings.TrimSpace(out.Text) == "" {
		return placeholderTranscript(errors.New("empty transcript returned from video")), nil
	}

	if n := len([]rune(out.Text)); n < minTranscriptChars {
		e.logger.Warn("video transcript seems too short", zap.String("path", path), zap.Int("chars", n))
	}
	if out.Timestamps == nil {
		out.Timestamps = []model.Timestamp{}
	}
	return out, nil
}

func placeholderTranscript(cause error) *model.Extraction {
	return &model.Extraction{
		Text: fmt.Sprintf("Video transcription failed: %v. Check the transcription settings and ensure the video file is valid.", cause),
		Timestamps: []model.Timestamp{{
			Start: 0,
			End:   1,
			Text:  fmt.Sprintf("[ERROR] Video transcription unavailable: %v", cause),
		}},
	}
}
