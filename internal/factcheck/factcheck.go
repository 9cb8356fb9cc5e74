// Package factcheck holds the collaborators the pipeline calls out to:
// claim extraction, evidence retrieval and rubric scoring.
package factcheck

import (
	"context"
	"errors"

	"github.com/ppiankov/proofpulse/internal/model"
)

// ErrProviderResponse marks a provider reply that could not be used, such as
// an error payload or malformed JSON
var ErrProviderResponse = errors.New("unusable provider response")

// ClaimExtractor finds verifiable factual claims in normalized text
type ClaimExtractor interface {
	ExtractClaims(ctx context.Context, text string, timestamps []model.Timestamp) ([]model.Claim, error)
}

// EvidenceRetriever gathers sources and a preliminary verdict for one claim
type EvidenceRetriever interface {
	RetrieveEvidence(ctx context.Context, claim model.Claim) (model.Evidence, error)
}

// ScoreInput is everything a scorer sees for one claim
type ScoreInput struct {
	Claim    model.Claim
	Context  string // Leading snippet of the normalized text
	Evidence model.Evidence
}

// ClaimScorer produces a rubric score report for one claim
type ClaimScorer interface {
	Name() string
	Score(ctx context.Context, in ScoreInput) (model.ScoreReport, error)
}

// OutcomeKind classifies how a collaborator call ended
type OutcomeKind int

const (
	// OutcomeOK means the collaborator answered normally
	OutcomeOK OutcomeKind = iota
	// OutcomeDegraded means a fallback value stands in for a failed call
	OutcomeDegraded
	// OutcomeFatal means the stage cannot continue
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome carries a collaborator result together with how it was obtained.
// Err is set for Degraded (the cause that was absorbed) and Fatal outcomes.
type Outcome[T any] struct {
	Value T
	Kind  OutcomeKind
	Err   error
}

// OK wraps a normal result
func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Kind: OutcomeOK}
}

// Degraded wraps a fallback value and the error it replaced
func Degraded[T any](v T, cause error) Outcome[T] {
	return Outcome[T]{Value: v, Kind: OutcomeDegraded, Err: cause}
}

// Fatal wraps an error that must fail the stage
func Fatal[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeFatal, Err: err}
}

// IsFatal reports whether the outcome should stop the pipeline
func (o Outcome[T]) IsFatal() bool {
	return o.Kind == OutcomeFatal
}

// cancelled turns a context error into a fatal outcome; fallbacks never mask
// a cancelled run
func cancelled[T any](ctx context.Context) (Outcome[T], bool) {
	if err := ctx.Err(); err != nil {
		return Fatal[T](err), true
	}
	return Outcome[T]{}, false
}
