package score

import (
	"errors"
	"fmt"
	"math"

	"github.com/ppiankov/proofpulse/internal/model"
)

// Rubric sub-score ceilings
const (
	MaxEvidenceStrength      = 30
	MaxEvidenceAgreement     = 30
	MaxContextAccuracy       = 20
	MaxModelConfidencePoints = 20
)

// Agreement multipliers
const (
	MultiplierExact      = 1.0
	MultiplierSameBucket = 0.95
	MultiplierUnclear    = 0.85
	MultiplierOpposite   = 0.70
	MultiplierDefault    = 0.85
)

// ErrScoreOutOfRange marks a rubric sub-score outside its declared range
var ErrScoreOutOfRange = errors.New("rubric score out of range")

// Scorer turns evidence and score reports into final verdicts.
// It holds no state and never calls out.
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Formula documents the arithmetic applied, for inclusion in debug output
func (s *Scorer) Formula() map[string]string {
	return map[string]string{
		"base_points":          "evidence_strength + evidence_agreement + context_accuracy + model_confidence_points",
		"agreement_multiplier": "exact=1.0, either UNCLEAR=0.85, same bucket=0.95, opposite buckets=0.70, otherwise 0.85",
		"final_score":          "clamp(round(base_points * agreement_multiplier), 0, 100)",
		"final_verdict":        ">=80 SUPPORTED, >=60 MOSTLY_SUPPORTED, >=40 UNCLEAR, >=20 MOSTLY_CONTRADICTED, else CONTRADICTED",
	}
}

// ValidateBreakdown rejects any sub-score outside its range
func ValidateBreakdown(b model.ScoreBreakdown) error {
	checks := []struct {
		name  string
		value int
		max   int
	}{
		{"evidence_strength", b.EvidenceStrength, MaxEvidenceStrength},
		{"evidence_agreement", b.EvidenceAgreement, MaxEvidenceAgreement},
		{"context_accuracy", b.ContextAccuracy, MaxContextAccuracy},
		{"model_confidence_points", b.ModelConfidencePoints, MaxModelConfidencePoints},
	}
	for _, c := range checks {
		if c.value < 0 || c.value > c.max {
			return fmt.Errorf("%w: %s=%d not in [0,%d]", ErrScoreOutOfRange, c.name, c.value, c.max)
		}
	}
	return nil
}

// BasePoints sums the four sub-scores
func BasePoints(b model.ScoreBreakdown) int {
	return b.EvidenceStrength + b.EvidenceAgreement + b.ContextAccuracy + b.ModelConfidencePoints
}

type bucket int

const (
	bucketOther bucket = iota
	bucketSupported
	bucketContradicted
	bucketUnclear
)

func evidenceBucket(v model.EvidenceVerdict) bucket {
	switch v {
	case model.EvidenceSupported:
		return bucketSupported
	case model.EvidenceContradicted:
		return bucketContradicted
	case model.EvidenceUnclear:
		return bucketUnclear
	}
	return bucketOther
}

func reportBucket(v model.Verdict) bucket {
	switch v {
	case model.VerdictSupported, model.VerdictMostlySupported:
		return bucketSupported
	case model.VerdictContradicted, model.VerdictMostlyContradicted:
		return bucketContradicted
	case model.VerdictUnclear:
		return bucketUnclear
	}
	return bucketOther
}

// AgreementMultiplier compares the 3-way evidence verdict with the 5-way
// report verdict. Rules apply in order: exact label match, either side
// UNCLEAR, same bucket, opposite buckets, default.
func AgreementMultiplier(ev model.EvidenceVerdict, rv model.Verdict) float64 {
	if string(ev) == string(rv) {
		return MultiplierExact
	}
	eb, rb := evidenceBucket(ev), reportBucket(rv)
	switch {
	case eb == bucketUnclear || rb == bucketUnclear:
		return MultiplierUnclear
	case eb == rb && eb != bucketOther:
		return MultiplierSameBucket
	case (eb == bucketSupported && rb == bucketContradicted) ||
		(eb == bucketContradicted && rb == bucketSupported):
		return MultiplierOpposite
	}
	return MultiplierDefault
}

// FinalScore applies the multiplier, rounds half away from zero and clamps to 0-100
func FinalScore(base int, multiplier float64) int {
	score := int(math.Round(float64(base) * multiplier))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// VerdictForScore maps a final score to its verdict. It is the only
// source of a final verdict.
func VerdictForScore(score int) model.Verdict {
	switch {
	case score >= 80:
		return model.VerdictSupported
	case score >= 60:
		return model.VerdictMostlySupported
	case score >= 40:
		return model.VerdictUnclear
	case score >= 20:
		return model.VerdictMostlyContradicted
	default:
		return model.VerdictContradicted
	}
}

// ScoreClaim builds the final verdict for one claim
func (s *Scorer) ScoreClaim(claim model.Claim, ev model.Evidence, report model.ScoreReport) (model.FinalClaim, error) {
	if err := ValidateBreakdown(report.Breakdown); err != nil {
		return model.FinalClaim{}, fmt.Errorf("claim %s: %w", claim.ID, err)
	}

	base := BasePoints(report.Breakdown)
	mult := AgreementMultiplier(ev.Verdict, report.Verdict)
	final := FinalScore(base, mult)

	sources := ev.Sources
	if sources == nil {
		sources = []model.Source{}
	}

	return model.FinalClaim{
		ClaimID:      claim.ID,
		ClaimText:    claim.Text,
		ClaimType:    claim.Type,
		StartTime:    claim.StartTime,
		EndTime:      claim.EndTime,
		FinalVerdict: VerdictForScore(final),
		FinalScore:   final,
		Breakdown: model.FinalBreakdown{
			ScoreBreakdown:      report.Breakdown,
			BasePoints:          base,
			AgreementMultiplier: mult,
			FinalScore:          final,
		},
		Explanation:        report.ShortExplanation,
		Sources:            sources,
		EvidenceVerdict:    ev.Verdict,
		EvidenceConfidence: ev.Confidence,
	}, nil
}

// Drop records a claim left out of the final result and why
type Drop struct {
	ClaimID string
	Reason  error
}

// Finalize scores every claim, in claim order, that has both evidence and
// a report. Claims missing either, or whose sub-scores are out of range,
// are dropped and reported; the rest still score.
func (s *Scorer) Finalize(claims []model.Claim, evidence map[string]model.Evidence, reports map[string]model.ScoreReport) ([]model.FinalClaim, []Drop) {
	out := make([]model.FinalClaim, 0, len(claims))
	var dropped []Drop

	for _, claim := range claims {
		ev, hasEv := evidence[claim.ID]
		rep, hasRep := reports[claim.ID]
		if !hasEv || !hasRep {
			dropped = append(dropped, Drop{
				ClaimID: claim.ID,
				Reason:  fmt.Errorf("missing evidence=%v report=%v", !hasEv, !hasRep),
			})
			continue
		}

		fc, err := s.ScoreClaim(claim, ev, rep)
		if err != nil {
			dropped = append(dropped, Drop{ClaimID: claim.ID, Reason: err})
			continue
		}
		out = append(out, fc)
	}

	return out, dropped
}
