package factcheck

import (
	"fmt"
	"strings"

	"github.com/ppiankov/proofpulse/internal/model"
)

const systemJSONOnly = "You are a precise fact-checking analyst. Return valid JSON only."

// buildClaimsPrompt asks for 3-5 verifiable claims
func buildClaimsPrompt(text string) string {
	return fmt.Sprintf(`Analyze the text and extract ONLY verifiable factual claims.

Text:
%s

Extract 3-5 claims that are:
- Specific and verifiable
- Statistical, scientific, policy, or historical
- Not opinions or predictions

Return STRICT JSON only:
{
  "claims": [
    {
      "claim_text": "exact claim",
      "claim_type": "statistical|scientific|policy|historical"
    }
  ]
}`, text)
}

// buildEvidencePrompt asks for sources and a 3-way verdict
func buildEvidencePrompt(claim string) string {
	return fmt.Sprintf(`Verify this claim against credible, citable sources.

Claim: %s

Return STRICT JSON only:
{
  "verdict": "SUPPORTED|CONTRADICTED|UNCLEAR",
  "confidence": 0,
  "sources": [
    {
      "title": "source title",
      "publisher": "publisher name",
      "date": "YYYY-MM-DD",
      "url": "https://...",
      "snippet": "relevant excerpt"
    }
  ],
  "rationale": "brief explanation"
}

Only list sources you can cite with a real URL. Return an empty sources list
rather than inventing one.`, claim)
}

// buildReviewPrompt is the full rubric prompt for the primary scorer
func buildReviewPrompt(in ScoreInput) string {
	ev := in.Evidence
	return fmt.Sprintf(`You are an expert fact checker. Output strict JSON only.

Input:
Claim: %s
Context snippet: %s
Evidence verdict: %s
Evidence confidence: %d
Sources:
%s

Task:
Score the claim using this rubric. Output JSON only.

Rubric:
- Evidence Strength (0-30): Quality and authority of sources
- Evidence Agreement (0-30): How well sources align
- Context Accuracy (0-20): How well claim matches context
- Model Confidence Points (0-20):
  combined_conf = 0.60 * %d + 0.40 * your_confidence
  model_confidence_points = round(combined_conf * 0.20)

Guidelines:
- Use provided sources only. Do not invent sources.
- If sources are weak, lower Evidence Strength.
- If sources conflict, lower Evidence Agreement.
- If context is misleading, lower Context Accuracy.
- Set confidence (0-100) reflecting your certainty.

Verdicts:
- SUPPORTED (80-100): credible sources confirm the claim
- MOSTLY_SUPPORTED (60-79): majority of evidence supports it
- UNCLEAR (40-59): insufficient evidence either way
- MOSTLY_CONTRADICTED (20-39): majority of evidence refutes it
- CONTRADICTED (0-19): credible sources disprove the claim

Output JSON schema:
{
  "verdict": "SUPPORTED|MOSTLY_SUPPORTED|UNCLEAR|MOSTLY_CONTRADICTED|CONTRADICTED",
  "confidence": 0,
  "score_breakdown": {
    "evidence_strength": 0,
    "evidence_agreement": 0,
    "context_accuracy": 0,
    "model_confidence_points": 0
  },
  "short_explanation": "string",
  "sources_used": [{"url": "string", "why": "string"}],
  "context_notes": "string"
}

Rules:
- All score fields must be integers in range.
- short_explanation: 2-4 sentences stating what the claim says, what the
  sources say, and why the verdict follows.
- sources_used must reference only given sources.`,
		in.Claim.Text, in.Context, ev.Verdict, ev.Confidence, formatSources(ev.Sources), ev.Confidence)
}

// buildFallbackPrompt derives rubric scores from the evidence verdict alone
func buildFallbackPrompt(in ScoreInput) string {
	ev := in.Evidence
	return fmt.Sprintf(`Based on the claim verification, produce rubric scores.

Claim: %s
Verdict: %s
Confidence: %d%%
Sources found: %d

SUPPORTED means credible sources confirm the claim. CONTRADICTED means
credible sources disprove it. UNCLEAR means the evidence is insufficient.

Score bands by verdict:
- SUPPORTED: evidence_strength 20-30, evidence_agreement 20-30, context_accuracy 15-20
- CONTRADICTED: evidence_strength 15-25, evidence_agreement 0-10, context_accuracy 0-10
- UNCLEAR: evidence_strength 10-20, evidence_agreement 10-20, context_accuracy 10-15

model_confidence_points: round(%d * 0.20)

Return STRICT JSON only:
{
  "verdict": "%s",
  "confidence": %d,
  "score_breakdown": {
    "evidence_strength": 0,
    "evidence_agreement": 0,
    "context_accuracy": 0,
    "model_confidence_points": 0
  },
  "short_explanation": "3-5 sentences on what the claim states, what sources say, and why",
  "sources_used": [{"url": "source url", "why": "how this source bears on the claim"}],
  "context_notes": "string"
}`,
		in.Claim.Text, ev.Verdict, ev.Confidence, len(ev.Sources), ev.Confidence, ev.Verdict, ev.Confidence)
}

func formatSources(sources []model.Source) string {
	if len(sources) == 0 {
		return "No sources provided."
	}
	lines := make([]string, 0, len(sources))
	for i, s := range sources {
		date := s.Date
		if date == "" {
			date = "N/A"
		}
		lines = append(lines, fmt.Sprintf("%d. %s | %s | %s | %s | %s", i+1, s.Title, s.Publisher, date, s.URL, s.Snippet))
	}
	return strings.Join(lines, "\n")
}
