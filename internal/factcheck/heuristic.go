package factcheck

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/ppiankov/proofpulse/internal/model"
)

// HeuristicClaimExtractor picks claim-like sentences by keyword and number
// matching. It needs no model and is used when none is configured.
type HeuristicClaimExtractor struct {
	keywords map[model.ClaimType][]string
}

// NewHeuristicClaimExtractor creates a new heuristic extractor
func NewHeuristicClaimExtractor() *HeuristicClaimExtractor {
	return &HeuristicClaimExtractor{
		keywords: map[model.ClaimType][]string{
			model.ClaimTypeStatistical: {
				"percent", "%", "million", "billion", "average", "rate",
				"increased", "decreased", "doubled", "per capita",
			},
			model.ClaimTypeScientific: {
				"study", "research", "scientists", "according to", "discovered",
				"evidence shows", "clinical", "causes",
			},
			model.ClaimTypePolicy: {
				"law", "act", "bill", "regulation", "government", "shall",
				"must", "is required", "passed", "signed",
			},
			model.ClaimTypeHistorical: {
				"founded", "established", "invented", "first", "originated",
				"introduced", "in the year", "century",
			},
		},
	}
}

// classification order; statistical wins ties
var claimTypeOrder = []model.ClaimType{
	model.ClaimTypeStatistical,
	model.ClaimTypeScientific,
	model.ClaimTypePolicy,
	model.ClaimTypeHistorical,
}

// ExtractClaims returns claim-like sentences in text order
func (e *HeuristicClaimExtractor) ExtractClaims(_ context.Context, text string, timestamps []model.Timestamp) ([]model.Claim, error) {
	var claims []model.Claim
	for _, sentence := range splitSentences(text) {
		claimType, ok := e.classify(sentence)
		if !ok {
			continue
		}
		claims = append(claims, model.Claim{
			ID:   uuid.NewString(),
			Text: sentence,
			Type: claimType,
		})
	}
	return AlignTimestamps(dedupeClaims(claims), timestamps), nil
}

func (e *HeuristicClaimExtractor) classify(sentence string) (model.ClaimType, bool) {
	lower := strings.ToLower(sentence)
	for _, t := range claimTypeOrder {
		for _, kw := range e.keywords[t] {
			if strings.Contains(lower, kw) {
				return t, true
			}
		}
	}
	// A bare figure is still a checkable statement
	if strings.IndexFunc(sentence, unicode.IsDigit) >= 0 {
		return model.ClaimTypeStatistical, true
	}
	return "", false
}

// splitSentences splits text into sentences of checkable length
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)

	var sentences []string
	var current strings.Builder
	flush := func() {
		s := strings.TrimSpace(current.String())
		if n := len([]rune(s)); n >= 20 && n <= 500 {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Only split before whitespace so decimals like 3.5 stay whole
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()

	return sentences
}

func dedupeClaims(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool)
	unique := make([]model.Claim, 0, len(claims))
	for _, c := range claims {
		key := strings.ToLower(strings.TrimSpace(c.Text))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, c)
		}
	}
	return unique
}

// OfflineEvidenceRetriever returns evidence without sources, so the
// no-sources guard applies to every claim. Used when no model is configured.
type OfflineEvidenceRetriever struct{}

// RetrieveEvidence returns an UNCLEAR verdict with no sources
func (OfflineEvidenceRetriever) RetrieveEvidence(_ context.Context, _ model.Claim) (model.Evidence, error) {
	return model.Evidence{
		Verdict:   model.EvidenceUnclear,
		Sources:   []model.Source{},
		Rationale: "No evidence provider configured",
	}, nil
}
