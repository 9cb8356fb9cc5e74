package validate

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/proofpulse/internal/factcheck"
	"github.com/ppiankov/proofpulse/internal/model"
)

// Retriever decorates an evidence retriever with source link checking
type Retriever struct {
	next      factcheck.EvidenceRetriever
	validator *Validator
	logger    *zap.Logger
}

// NewRetriever wraps next so that dead source links never reach scoring
func NewRetriever(next factcheck.EvidenceRetriever, validator *Validator, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{next: next, validator: validator, logger: logger}
}

// RetrieveEvidence implements factcheck.EvidenceRetriever. When every source
// is dead the evidence comes back with no sources and the zero-source guard
// downstream takes over.
func (r *Retriever) RetrieveEvidence(ctx context.Context, claim model.Claim) (model.Evidence, error) {
	ev, err := r.next.RetrieveEvidence(ctx, claim)
	if err != nil || len(ev.Sources) == 0 {
		return ev, err
	}

	live, statuses := r.validator.CheckSources(ctx, ev.Sources)
	for _, s := range statuses {
		if s.Dead {
			r.logger.Debug("dropped dead source",
				zap.String("claim_id", claim.ID),
				zap.String("url", s.URL),
				zap.Int("status", s.StatusCode),
				zap.Error(s.Err))
		}
	}
	ev.Sources = live
	return ev, nil
}
