package model

import "strings"

// EvidenceVerdict is the 3-way preliminary judgment from evidence retrieval
type EvidenceVerdict string

const (
	EvidenceSupported    EvidenceVerdict = "SUPPORTED"
	EvidenceContradicted EvidenceVerdict = "CONTRADICTED"
	EvidenceUnclear      EvidenceVerdict = "UNCLEAR"
)

// ParseEvidenceVerdict normalizes a provider verdict; unknown values become UNCLEAR
func ParseEvidenceVerdict(s string) EvidenceVerdict {
	switch EvidenceVerdict(strings.ToUpper(strings.TrimSpace(s))) {
	case EvidenceSupported:
		return EvidenceSupported
	case EvidenceContradicted:
		return EvidenceContradicted
	default:
		return EvidenceUnclear
	}
}

// AuthorityTier ranks how close a source is to the underlying record
type AuthorityTier string

const (
	TierPrimary   AuthorityTier = "primary"   // statistics offices, courts, journals, .gov/.edu
	TierSecondary AuthorityTier = "secondary" // established news and reference outlets
	TierTertiary  AuthorityTier = "tertiary"  // everything else
)

// Rank orders tiers for sorting, primary first
func (t AuthorityTier) Rank() int {
	switch t {
	case TierPrimary:
		return 0
	case TierSecondary:
		return 1
	default:
		return 2
	}
}

// Source is a cited reference backing an evidence verdict
type Source struct {
	Title     string        `json:"title"`
	Publisher string        `json:"publisher"`
	Date      string        `json:"date,omitempty"`
	URL       string        `json:"url"`
	Snippet   string        `json:"snippet"`
	Authority AuthorityTier `json:"authority,omitempty"`
}

// Evidence is the evidence verdict for one claim
type Evidence struct {
	Verdict    EvidenceVerdict `json:"verdict"`
	Confidence int             `json:"confidence"` // 0-100
	Sources    []Source        `json:"sources"`
	Rationale  string          `json:"rationale"`
}

// NoSourcesEvidence is the canonical evidence substituted when retrieval yields
// no sources or fails outright
func NoSourcesEvidence() Evidence {
	return Evidence{
		Verdict:    EvidenceUnclear,
		Confidence: 10,
		Sources: []Source{{
			Title:     "No sources found",
			Publisher: "System",
			URL:       "https://example.com",
			Snippet:   "No sources returned by retrieval",
		}},
		Rationale: "No sources available",
	}
}

// ClampConfidence bounds a confidence value to 0-100
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
