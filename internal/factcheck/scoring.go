package factcheck

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/proofpulse/internal/llm"
	"github.com/ppiankov/proofpulse/internal/model"
)

// Scorer names recorded on ScoreReport.Provider
const (
	ScorerPrimary      = "gemini"
	ScorerFallback     = "fallback"
	ScorerRubric       = "rubric"
	ScorerConservative = "conservative"
)

type reportPayload struct {
	Verdict       string   `json:"verdict"`
	AltVerdict    string   `json:"gemini_verdict"`
	Confidence    *float64 `json:"confidence"`
	AltConfidence *float64 `json:"gemini_confidence"`
	Breakdown     *struct {
		EvidenceStrength      *float64 `json:"evidence_strength"`
		EvidenceAgreement     *float64 `json:"evidence_agreement"`
		ContextAccuracy       *float64 `json:"context_accuracy"`
		ModelConfidencePoints *float64 `json:"model_confidence_points"`
	} `json:"score_breakdown"`
	ShortExplanation string             `json:"short_explanation"`
	SourcesUsed      []model.SourceUsed `json:"sources_used"`
	ContextNotes     string             `json:"context_notes"`
	Error            any                `json:"error"`
}

func (p reportPayload) verdict() string {
	if p.Verdict != "" {
		return p.Verdict
	}
	return p.AltVerdict
}

func (p reportPayload) confidence() (int, bool) {
	switch {
	case p.Confidence != nil:
		return model.ClampConfidence(roundInt(*p.Confidence)), true
	case p.AltConfidence != nil:
		return model.ClampConfidence(roundInt(*p.AltConfidence)), true
	}
	return 0, false
}

// PrimaryScorer is the full rubric review. Anything short of a complete,
// well-formed report is an error so the caller can fall back.
type PrimaryScorer struct {
	provider llm.Provider
}

// NewPrimaryScorer creates the primary scorer backed by provider
func NewPrimaryScorer(provider llm.Provider) *PrimaryScorer {
	return &PrimaryScorer{provider: provider}
}

// Name returns the scorer name
func (s *PrimaryScorer) Name() string { return ScorerPrimary }

// Score asks the provider for a rubric report
func (s *PrimaryScorer) Score(ctx context.Context, in ScoreInput) (model.ScoreReport, error) {
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		System: "You are an expert fact checker. Output strict JSON only.",
		Prompt: buildReviewPrompt(in),
		JSON:   true,
	})
	if err != nil {
		return model.ScoreReport{}, fmt.Errorf("primary review via %s: %w", s.provider.Name(), err)
	}

	var p reportPayload
	if err := llm.DecodeJSON(resp.Text, &p); err != nil {
		return model.ScoreReport{}, fmt.Errorf("%w: %v", ErrProviderResponse, err)
	}
	if p.Error != nil {
		return model.ScoreReport{}, fmt.Errorf("%w: error payload: %v", ErrProviderResponse, p.Error)
	}

	b := p.Breakdown
	if b == nil || b.EvidenceStrength == nil || b.EvidenceAgreement == nil ||
		b.ContextAccuracy == nil || b.ModelConfidencePoints == nil {
		return model.ScoreReport{}, fmt.Errorf("%w: incomplete score_breakdown", ErrProviderResponse)
	}
	conf, ok := p.confidence()
	if !ok || p.verdict() == "" {
		return model.ScoreReport{}, fmt.Errorf("%w: missing verdict or confidence", ErrProviderResponse)
	}

	return model.ScoreReport{
		Verdict:    model.ParseVerdict(p.verdict()),
		Confidence: conf,
		Breakdown: model.ScoreBreakdown{
			EvidenceStrength:      roundInt(*b.EvidenceStrength),
			EvidenceAgreement:     roundInt(*b.EvidenceAgreement),
			ContextAccuracy:       roundInt(*b.ContextAccuracy),
			ModelConfidencePoints: roundInt(*b.ModelConfidencePoints),
		},
		ShortExplanation: strings.TrimSpace(p.ShortExplanation),
		SourcesUsed:      nonNilSourcesUsed(p.SourcesUsed),
		ContextNotes:     p.ContextNotes,
		Provider:         ScorerPrimary,
	}, nil
}

// LLMFallbackScorer derives rubric scores from the evidence verdict with a
// lighter prompt. Missing fields take conservative defaults.
type LLMFallbackScorer struct {
	provider llm.Provider
}

// NewLLMFallbackScorer creates the fallback scorer backed by provider
func NewLLMFallbackScorer(provider llm.Provider) *LLMFallbackScorer {
	return &LLMFallbackScorer{provider: provider}
}

// Name returns the scorer name
func (s *LLMFallbackScorer) Name() string { return ScorerFallback }

// Score asks the provider for band-guided rubric scores
func (s *LLMFallbackScorer) Score(ctx context.Context, in ScoreInput) (model.ScoreReport, error) {
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		System: "You are a precise scoring assistant. Return valid JSON only.",
		Prompt: buildFallbackPrompt(in),
		JSON:   true,
	})
	if err != nil {
		return model.ScoreReport{}, fmt.Errorf("fallback scoring via %s: %w", s.provider.Name(), err)
	}

	var p reportPayload
	if err := llm.DecodeJSON(resp.Text, &p); err != nil {
		return model.ScoreReport{}, fmt.Errorf("%w: %v", ErrProviderResponse, err)
	}
	if p.Error != nil {
		return model.ScoreReport{}, fmt.Errorf("%w: error payload: %v", ErrProviderResponse, p.Error)
	}

	rep := ConservativeReport(in)
	rep.Provider = ScorerFallback
	rep.ContextNotes = "Scored by fallback (primary review disabled or failed)"

	if v := p.verdict(); v != "" {
		rep.Verdict = model.ParseVerdict(v)
	}
	if c, ok := p.confidence(); ok {
		rep.Confidence = c
	}
	if b := p.Breakdown; b != nil {
		setIfPresent(&rep.Breakdown.EvidenceStrength, b.EvidenceStrength)
		setIfPresent(&rep.Breakdown.EvidenceAgreement, b.EvidenceAgreement)
		setIfPresent(&rep.Breakdown.ContextAccuracy, b.ContextAccuracy)
		setIfPresent(&rep.Breakdown.ModelConfidencePoints, b.ModelConfidencePoints)
	}
	if e := strings.TrimSpace(p.ShortExplanation); e != "" {
		rep.ShortExplanation = e
	}
	if len(p.SourcesUsed) > 0 {
		rep.SourcesUsed = p.SourcesUsed
	}
	if p.ContextNotes != "" {
		rep.ContextNotes = p.ContextNotes
	}
	return rep, nil
}

type band struct{ lo, hi int }

func (b band) at(confidence int) int {
	return b.lo + roundInt(float64(b.hi-b.lo)*float64(confidence)/100)
}

type rubricBands struct {
	strength, agreement, context band
}

var fallbackBands = map[model.EvidenceVerdict]rubricBands{
	model.EvidenceSupported:    {band{20, 30}, band{20, 30}, band{15, 20}},
	model.EvidenceContradicted: {band{15, 25}, band{0, 10}, band{0, 10}},
	model.EvidenceUnclear:      {band{10, 20}, band{10, 20}, band{10, 15}},
}

// RubricScorer places each sub-score inside its verdict band by evidence
// confidence. It never calls out and never fails.
type RubricScorer struct{}

// NewRubricScorer creates the deterministic band scorer
func NewRubricScorer() *RubricScorer { return &RubricScorer{} }

// Name returns the scorer name
func (s *RubricScorer) Name() string { return ScorerRubric }

// Score computes band-positioned sub-scores from the evidence
func (s *RubricScorer) Score(_ context.Context, in ScoreInput) (model.ScoreReport, error) {
	ev := in.Evidence
	conf := model.ClampConfidence(ev.Confidence)
	bands, ok := fallbackBands[ev.Verdict]
	if !ok {
		bands = fallbackBands[model.EvidenceUnclear]
	}

	rep := ConservativeReport(in)
	rep.Provider = ScorerRubric
	rep.ContextNotes = "Scored from evidence verdict bands"
	rep.Breakdown = model.ScoreBreakdown{
		EvidenceStrength:      bands.strength.at(conf),
		EvidenceAgreement:     bands.agreement.at(conf),
		ContextAccuracy:       bands.context.at(conf),
		ModelConfidencePoints: ModelConfidencePoints(conf),
	}
	return rep, nil
}

// ModelConfidencePoints converts a 0-100 confidence into 0-20 rubric points
func ModelConfidencePoints(confidence int) int {
	return roundInt(float64(model.ClampConfidence(confidence)) * 0.20)
}

// ConservativeReport is the report used when every scorer has failed
func ConservativeReport(in ScoreInput) model.ScoreReport {
	ev := in.Evidence
	used := make([]model.SourceUsed, 0, 3)
	for i, s := range ev.Sources {
		if i == 3 {
			break
		}
		used = append(used, model.SourceUsed{URL: s.URL, Why: "Primary evidence"})
	}

	return model.ScoreReport{
		Verdict:    model.Verdict(ev.Verdict),
		Confidence: ev.Confidence,
		Breakdown: model.ScoreBreakdown{
			EvidenceStrength:      15,
			EvidenceAgreement:     15,
			ContextAccuracy:       10,
			ModelConfidencePoints: ModelConfidencePoints(ev.Confidence),
		},
		ShortExplanation: fmt.Sprintf("Claim is %s based on %d source(s).",
			strings.ToLower(string(ev.Verdict)), len(ev.Sources)),
		SourcesUsed:  used,
		ContextNotes: "Fallback scoring applied",
		Provider:     ScorerConservative,
	}
}

// ScoreClaim applies the review policy for one claim. A nil primary means
// primary review is disabled. Primary failure falls back with the same
// input; fallback failure yields the conservative report. A panicking
// scorer counts as a failed one. Only a cancelled context is fatal.
func ScoreClaim(ctx context.Context, primary, fallback ClaimScorer, in ScoreInput) Outcome[model.ScoreReport] {
	var primaryErr error
	if primary != nil {
		rep, err := safeScore(ctx, primary, in)
		if err == nil {
			return OK(rep)
		}
		if out, ok := cancelled[model.ScoreReport](ctx); ok {
			return out
		}
		primaryErr = err
	}

	rep, err := safeScore(ctx, fallback, in)
	if err == nil {
		if primaryErr != nil {
			return Degraded(rep, primaryErr)
		}
		return OK(rep)
	}
	if out, ok := cancelled[model.ScoreReport](ctx); ok {
		return out
	}
	return Degraded(ConservativeReport(in), errors.Join(primaryErr, err))
}

func safeScore(ctx context.Context, s ClaimScorer, in ScoreInput) (rep model.ScoreReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer %s panic: %v", s.Name(), r)
		}
	}()
	return s.Score(ctx, in)
}

func setIfPresent(dst *int, v *float64) {
	if v != nil {
		*dst = roundInt(*v)
	}
}

func roundInt(f float64) int {
	return int(math.Round(f))
}

func nonNilSourcesUsed(s []model.SourceUsed) []model.SourceUsed {
	if s == nil {
		return []model.SourceUsed{}
	}
	return s
}
