package factcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ppiankov/proofpulse/internal/llm"
	"github.com/ppiankov/proofpulse/internal/model"
)

// LLMClaimExtractor asks a model for claims
type LLMClaimExtractor struct {
	provider llm.Provider
}

// NewLLMClaimExtractor creates an extractor backed by provider
func NewLLMClaimExtractor(provider llm.Provider) *LLMClaimExtractor {
	return &LLMClaimExtractor{provider: provider}
}

type claimsPayload struct {
	Claims []struct {
		ID        string   `json:"claim_id"`
		Text      string   `json:"claim_text"`
		Type      string   `json:"claim_type"`
		StartTime *float64 `json:"start_time"`
		EndTime   *float64 `json:"end_time"`
	} `json:"claims"`
}

// ExtractClaims returns the claims the model found, in its order
func (e *LLMClaimExtractor) ExtractClaims(ctx context.Context, text string, timestamps []model.Timestamp) ([]model.Claim, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		System: systemJSONOnly,
		Prompt: buildClaimsPrompt(text),
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("claim extraction via %s: %w", e.provider.Name(), err)
	}

	var payload claimsPayload
	if err := llm.DecodeJSON(resp.Text, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderResponse, err)
	}

	claims := make([]model.Claim, 0, len(payload.Claims))
	for _, c := range payload.Claims {
		t := strings.TrimSpace(c.Text)
		if t == "" {
			continue
		}
		id := c.ID
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		claims = append(claims, model.Claim{
			ID:        id,
			Text:      t,
			Type:      model.ParseClaimType(c.Type),
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
		})
	}

	return AlignTimestamps(claims, timestamps), nil
}

// BestEffortClaim turns the head of the text into a single claim. It stands
// in when claim extraction fails.
func BestEffortClaim(text string) model.Claim {
	return model.Claim{
		ID:   uuid.NewString(),
		Text: truncateRunes(strings.TrimSpace(text), 200),
		Type: model.ClaimTypeStatistical,
	}
}

// ExtractClaims runs extractor and applies the stage policy: a failure
// degrades to one best-effort claim, and at most maxClaims are kept
func ExtractClaims(ctx context.Context, extractor ClaimExtractor, text string, timestamps []model.Timestamp, maxClaims int) Outcome[[]model.Claim] {
	claims, err := extractor.ExtractClaims(ctx, text, timestamps)
	if err != nil {
		if out, ok := cancelled[[]model.Claim](ctx); ok {
			return out
		}
		return Degraded([]model.Claim{BestEffortClaim(text)}, err)
	}
	return OK(CapClaims(claims, maxClaims))
}

// CapClaims keeps the first n claims
func CapClaims(claims []model.Claim, n int) []model.Claim {
	if claims == nil {
		return []model.Claim{}
	}
	if n > 0 && len(claims) > n {
		return claims[:n]
	}
	return claims
}

// AlignTimestamps fills missing claim times from the first transcript segment
// that shares the claim's opening words
func AlignTimestamps(claims []model.Claim, timestamps []model.Timestamp) []model.Claim {
	if len(timestamps) == 0 {
		return claims
	}
	for i := range claims {
		if claims[i].StartTime != nil {
			continue
		}
		probe := openingWords(claims[i].Text, 4)
		if probe == "" {
			continue
		}
		for _, ts := range timestamps {
			if strings.Contains(strings.ToLower(ts.Text), probe) {
				start, end := ts.Start, ts.End
				claims[i].StartTime = &start
				claims[i].EndTime = &end
				break
			}
		}
	}
	return claims
}

func openingWords(s string, n int) string {
	words := strings.Fields(strings.ToLower(s))
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
