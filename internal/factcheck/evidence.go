package factcheck

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/proofpulse/internal/llm"
	"github.com/ppiankov/proofpulse/internal/model"
)

// LLMEvidenceRetriever asks a model for sources and a preliminary verdict
type LLMEvidenceRetriever struct {
	provider llm.Provider
}

// NewLLMEvidenceRetriever creates a retriever backed by provider
func NewLLMEvidenceRetriever(provider llm.Provider) *LLMEvidenceRetriever {
	return &LLMEvidenceRetriever{provider: provider}
}

type evidencePayload struct {
	Verdict    string         `json:"verdict"`
	Confidence float64        `json:"confidence"`
	Sources    []model.Source `json:"sources"`
	Rationale  string         `json:"rationale"`
}

// RetrieveEvidence returns the model's evidence for claim. Sources without a
// usable http(s) URL are discarded.
func (r *LLMEvidenceRetriever) RetrieveEvidence(ctx context.Context, claim model.Claim) (model.Evidence, error) {
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		System: systemJSONOnly,
		Prompt: buildEvidencePrompt(claim.Text),
		JSON:   true,
	})
	if err != nil {
		return model.Evidence{}, fmt.Errorf("evidence retrieval via %s: %w", r.provider.Name(), err)
	}

	var payload evidencePayload
	if err := llm.DecodeJSON(resp.Text, &payload); err != nil {
		return model.Evidence{}, fmt.Errorf("%w: %v", ErrProviderResponse, err)
	}

	sources := make([]model.Source, 0, len(payload.Sources))
	for _, s := range payload.Sources {
		if !isWebURL(s.URL) {
			continue
		}
		sources = append(sources, s)
	}

	return model.Evidence{
		Verdict:    model.ParseEvidenceVerdict(payload.Verdict),
		Confidence: model.ClampConfidence(int(payload.Confidence + 0.5)),
		Sources:    sources,
		Rationale:  strings.TrimSpace(payload.Rationale),
	}, nil
}

// RetrieveEvidence runs retriever and applies the zero-source guard: an error
// or an empty source list yields the canonical no-sources evidence
func RetrieveEvidence(ctx context.Context, retriever EvidenceRetriever, claim model.Claim) Outcome[model.Evidence] {
	ev, err := retriever.RetrieveEvidence(ctx, claim)
	if err != nil {
		if out, ok := cancelled[model.Evidence](ctx); ok {
			return out
		}
		return Degraded(model.NoSourcesEvidence(), err)
	}
	if len(ev.Sources) == 0 {
		return Degraded(model.NoSourcesEvidence(), nil)
	}
	ev.Confidence = model.ClampConfidence(ev.Confidence)
	return OK(ev)
}

func isWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
