package model

import "strings"

// Claim is a single verifiable factual statement extracted from input text
type Claim struct {
	ID        string    `json:"claim_id"`
	Text      string    `json:"claim_text"`
	Type      ClaimType `json:"claim_type"`
	StartTime *float64  `json:"start_time"` // Only meaningful for time-coded input
	EndTime   *float64  `json:"end_time"`
}

// ClaimType categorizes the nature of the claim
type ClaimType string

const (
	ClaimTypeStatistical ClaimType = "statistical"
	ClaimTypeScientific  ClaimType = "scientific"
	ClaimTypePolicy      ClaimType = "policy"
	ClaimTypeHistorical  ClaimType = "historical"
)

// ParseClaimType normalizes a provider-supplied type, defaulting to statistical
func ParseClaimType(s string) ClaimType {
	switch ClaimType(strings.ToLower(strings.TrimSpace(s))) {
	case ClaimTypeScientific:
		return ClaimTypeScientific
	case ClaimTypePolicy:
		return ClaimTypePolicy
	case ClaimTypeHistorical:
		return ClaimTypeHistorical
	default:
		return ClaimTypeStatistical
	}
}

// Timestamp is one time-coded transcript segment
type Timestamp struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Extraction is the normalized output of a content extractor
type Extraction struct {
	Text       string      `json:"text"`
	Timestamps []Timestamp `json:"timestamps"`
}
