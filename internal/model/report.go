package model

import (
	"strings"
	"time"
)

// Verdict is the 5-way verdict used by scoring providers and final results
type Verdict string

const (
	VerdictSupported          Verdict = "SUPPORTED"
	VerdictMostlySupported    Verdict = "MOSTLY_SUPPORTED"
	VerdictUnclear            Verdict = "UNCLEAR"
	VerdictMostlyContradicted Verdict = "MOSTLY_CONTRADICTED"
	VerdictContradicted       Verdict = "CONTRADICTED"
)

// ParseVerdict normalizes a provider verdict; unknown values become UNCLEAR
func ParseVerdict(s string) Verdict {
	v := Verdict(strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, " ", "_"))))
	switch v {
	case VerdictSupported, VerdictMostlySupported, VerdictMostlyContradicted, VerdictContradicted:
		return v
	default:
		return VerdictUnclear
	}
}

// ScoreBreakdown holds the four rubric sub-scores
type ScoreBreakdown struct {
	EvidenceStrength      int `json:"evidence_strength"`       // 0-30
	EvidenceAgreement     int `json:"evidence_agreement"`      // 0-30
	ContextAccuracy       int `json:"context_accuracy"`        // 0-20
	ModelConfidencePoints int `json:"model_confidence_points"` // 0-20
}

// SourceUsed references a source that informed a score, with a justification
type SourceUsed struct {
	URL string `json:"url"`
	Why string `json:"why"`
}

// ScoreReport is one scoring provider's rubric assessment of a claim
type ScoreReport struct {
	Verdict          Verdict        `json:"verdict"`
	Confidence       int            `json:"confidence"`
	Breakdown        ScoreBreakdown `json:"score_breakdown"`
	ShortExplanation string         `json:"short_explanation"`
	SourcesUsed      []SourceUsed   `json:"sources_used"`
	ContextNotes     string         `json:"context_notes,omitempty"`
	Provider         string         `json:"provider,omitempty"` // Which scorer produced the report
}

// FinalBreakdown is the sub-scores plus the derived arithmetic
type FinalBreakdown struct {
	ScoreBreakdown
	BasePoints          int     `json:"base_points"`
	AgreementMultiplier float64 `json:"agreement_multiplier"`
	FinalScore          int     `json:"final_score"`
}

// FinalClaim is the externally visible verdict for one claim
type FinalClaim struct {
	ClaimID      string         `json:"claim_id"`
	ClaimText    string         `json:"claim_text"`
	ClaimType    ClaimType      `json:"claim_type"`
	StartTime    *float64       `json:"start_time"`
	EndTime      *float64       `json:"end_time"`
	FinalVerdict Verdict        `json:"final_verdict"`
	FinalScore   int            `json:"final_score"`
	Breakdown    FinalBreakdown `json:"breakdown"`
	Explanation  string         `json:"explanation"`
	Sources      []Source       `json:"sources"`

	// Evidence verdict kept for transparency; it never drives FinalVerdict
	EvidenceVerdict    EvidenceVerdict `json:"evidence_verdict"`
	EvidenceConfidence int             `json:"evidence_confidence"`
}

// Result is the final output of a job
type Result struct {
	JobID          string       `json:"job_id"`
	InputType      InputType    `json:"input_type"`
	Timestamps     []Timestamp  `json:"timestamps"`
	Claims         []FinalClaim `json:"claims"`
	ProcessingTime float64      `json:"processing_time"` // Seconds since ingestion
	CreatedAt      time.Time    `json:"created_at"`
}

// InputType tags the kind of raw input a job carries
type InputType string

const (
	InputText  InputType = "text"
	InputTxt   InputType = "txt"
	InputURL   InputType = "url"
	InputPDF   InputType = "pdf"
	InputVideo InputType = "video"
)

// ParseInputType validates an input type tag
func ParseInputType(s string) (InputType, bool) {
	switch t := InputType(strings.ToLower(strings.TrimSpace(s))); t {
	case InputText, InputTxt, InputURL, InputPDF, InputVideo:
		return t, true
	default:
		return "", false
	}
}

// IsFileBased reports whether the raw input is an uploaded file path rather
// than inline content. A txt upload is read inline at ingestion.
func (t InputType) IsFileBased() bool {
	return t == InputPDF || t == InputVideo
}

// DemoMode selects cached demo data or live processing for a client
type DemoMode string

const (
	DemoModeCached DemoMode = "cached"
	DemoModeLive   DemoMode = "live"
)

// ClientSettings are per-client preferences stored alongside jobs
type ClientSettings struct {
	PrimaryScoringEnabled bool     `json:"gemini_enabled"`
	DemoMode              DemoMode `json:"demo_mode"`
}
