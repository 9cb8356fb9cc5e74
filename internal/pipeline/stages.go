package pipeline

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/proofpulse/internal/factcheck"
	"github.com/ppiankov/proofpulse/internal/jobstore"
	"github.com/ppiankov/proofpulse/internal/model"
)

// Stage 1: raw input to normalized text and timestamps
func (p *Pipeline) extractText(ctx context.Context, r *jobRun) (string, []model.Timestamp, error) {
	start := p.now()
	if err := p.advance(ctx, r, model.StatusExtractingText, "Stage 1/5: Parsing text content..."); err != nil {
		return "", nil, err
	}

	var text string
	found, err := p.cached(ctx, r, jobstore.KeyText, &text)
	if err != nil {
		return "", nil, err
	}

	var timestamps []model.Timestamp
	if found {
		if _, err := p.cached(ctx, r, jobstore.KeyTimestamps, &timestamps); err != nil {
			return "", nil, err
		}
		r.trace("stage 1 cache hit", zap.Int("chars", utf8.RuneCountInString(text)))
	} else {
		raw, ok, err := p.store.GetString(ctx, r.id, jobstore.KeyRaw)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, eris.Errorf("job %s has no raw input", r.id)
		}
		r.trace("stage 1 input", zap.String("type", string(r.inputType)), zap.String("raw", truncate(raw, 100)))

		out, err := p.router.Route(ctx, string(r.inputType), raw)
		if err != nil {
			return "", nil, eris.Wrap(err, "stage 1")
		}
		text, timestamps = out.Text, out.Timestamps

		if err := p.store.SetMany(ctx, r.id, map[string]any{
			jobstore.KeyText:       text,
			jobstore.KeyTimestamps: timestamps,
		}); err != nil {
			return "", nil, err
		}
		r.trace("stage 1 output", zap.String("text", truncate(text, 200)), zap.Int("timestamps", len(timestamps)))
	}
	if timestamps == nil {
		timestamps = []model.Timestamp{}
	}

	chars := utf8.RuneCountInString(text)
	if err := p.advance(ctx, r, model.StatusTextReady, fmt.Sprintf("Extracted %d characters", chars)); err != nil {
		return "", nil, err
	}
	p.stageDone(r, "extract_text", start, zap.Int("chars", chars), zap.Bool("cached", found))
	return text, timestamps, nil
}

// Stage 2: text to at most max_claims claims. Zero claims finishes the job.
func (p *Pipeline) extractClaims(ctx context.Context, r *jobRun, text string, timestamps []model.Timestamp) ([]model.Claim, error) {
	start := p.now()
	if err := p.advance(ctx, r, model.StatusClaimExtraction, "Stage 2/5: Extracting claims..."); err != nil {
		return nil, err
	}

	var claims []model.Claim
	found, err := p.cached(ctx, r, jobstore.KeyClaims, &claims)
	if err != nil {
		return nil, err
	}

	if found {
		r.trace("stage 2 cache hit", zap.Int("claims", len(claims)))
	} else {
		out := factcheck.ExtractClaims(ctx, p.claims, text, timestamps, p.config.MaxClaims)
		if out.IsFatal() {
			return nil, eris.Wrap(out.Err, "stage 2")
		}
		if out.Kind == factcheck.OutcomeDegraded {
			r.log.Warn("claim extraction failed, using best-effort claim", zap.Error(out.Err))
		}
		claims = out.Value
		r.trace("stage 2 output", zap.Any("claims", claims))
	}

	if len(claims) == 0 {
		if err := p.finishEmpty(ctx, r, timestamps); err != nil {
			return nil, err
		}
		p.stageDone(r, "extract_claims", start, zap.Int("claims", 0))
		return nil, nil
	}

	if !found {
		if err := p.store.SetData(ctx, r.id, jobstore.KeyClaims, claims); err != nil {
			return nil, err
		}
	}
	if err := p.advance(ctx, r, model.StatusClaimsReady, fmt.Sprintf("Extracted %d claims", len(claims))); err != nil {
		return nil, err
	}
	p.stageDone(r, "extract_claims", start, zap.Int("claims", len(claims)), zap.Bool("cached", found))
	return claims, nil
}

// finishEmpty completes a job that has no claims without calling evidence
// retrieval or scoring
func (p *Pipeline) finishEmpty(ctx context.Context, r *jobRun, timestamps []model.Timestamp) error {
	if err := p.store.SetMany(ctx, r.id, map[string]any{
		jobstore.KeyClaims:   []model.Claim{},
		jobstore.KeyEvidence: map[string]model.Evidence{},
		jobstore.KeyReports:  map[string]model.ScoreReport{},
	}); err != nil {
		return err
	}

	exists, err := p.store.Exists(ctx, r.id, jobstore.KeyFinalResult)
	if err != nil {
		return err
	}
	if !exists {
		result := p.buildResult(r, timestamps, []model.FinalClaim{})
		if err := p.store.SetData(ctx, r.id, jobstore.KeyFinalResult, result); err != nil {
			return err
		}
	}
	return p.advance(ctx, r, model.StatusReady, "No factual claims found in input")
}

// Stage 3: evidence for every claim, in claim order
func (p *Pipeline) retrieveEvidence(ctx context.Context, r *jobRun, claims []model.Claim) (map[string]model.Evidence, error) {
	start := p.now()
	if err := p.advance(ctx, r, model.StatusEvidenceRetrieval, "Stage 3/5: Retrieving evidence..."); err != nil {
		return nil, err
	}

	results := make([]model.Evidence, len(claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.ClaimWorkers)
	for i, claim := range claims {
		goRecover(g, func() error {
			ev, err := p.claimEvidence(gctx, r, i+1, claim)
			if err != nil {
				return err
			}
			results[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	evidence := make(map[string]model.Evidence, len(claims))
	for i, claim := range claims {
		evidence[claim.ID] = results[i]
	}
	if err := p.store.SetData(ctx, r.id, jobstore.KeyEvidence, evidence); err != nil {
		return nil, err
	}
	if err := p.advance(ctx, r, model.StatusEvidenceReady, fmt.Sprintf("Retrieved evidence for %d claims", len(claims))); err != nil {
		return nil, err
	}
	p.stageDone(r, "retrieve_evidence", start, zap.Int("claims", len(claims)))
	return evidence, nil
}

func (p *Pipeline) claimEvidence(ctx context.Context, r *jobRun, idx int, claim model.Claim) (model.Evidence, error) {
	key := jobstore.EvidenceKey(claim.ID)

	var ev model.Evidence
	found, err := p.cached(ctx, r, key, &ev)
	if err != nil {
		return model.Evidence{}, err
	}
	if found {
		if len(ev.Sources) == 0 {
			ev = model.NoSourcesEvidence()
		}
		r.trace("stage 3 cache hit", zap.Int("claim", idx), zap.String("claim_id", claim.ID))
		return ev, nil
	}

	out := factcheck.RetrieveEvidence(ctx, p.evidence, claim)
	if out.IsFatal() {
		return model.Evidence{}, eris.Wrapf(out.Err, "stage 3: claim %s", claim.ID)
	}
	if out.Kind == factcheck.OutcomeDegraded {
		r.log.Warn("no usable evidence, applying no-sources fallback",
			zap.String("claim_id", claim.ID), zap.Error(out.Err))
	}
	ev = out.Value
	r.trace("stage 3 output", zap.Int("claim", idx), zap.String("verdict", string(ev.Verdict)),
		zap.Int("confidence", ev.Confidence), zap.Any("sources", ev.Sources))

	if err := p.store.SetData(ctx, r.id, key, ev); err != nil {
		return model.Evidence{}, err
	}
	return ev, nil
}

// Stage 4: a rubric report for every claim, primary reviewer first when enabled
func (p *Pipeline) reviewClaims(ctx context.Context, r *jobRun, text string, claims []model.Claim, evidence map[string]model.Evidence) (map[string]model.ScoreReport, error) {
	start := p.now()
	if err := p.advance(ctx, r, model.StatusGeminiReview, "Stage 4/5: Scoring claims..."); err != nil {
		return nil, err
	}

	var primary factcheck.ClaimScorer
	if p.primaryEnabled(ctx, r) {
		primary = p.primary
	}
	snippet := truncate(text, p.config.ContextSnippetChars)

	results := make([]model.ScoreReport, len(claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.ClaimWorkers)
	for i, claim := range claims {
		ev, ok := evidence[claim.ID]
		if !ok {
			ev = model.NoSourcesEvidence()
		}
		in := factcheck.ScoreInput{Claim: claim, Context: snippet, Evidence: ev}
		goRecover(g, func() error {
			rep, err := p.claimReport(gctx, r, i+1, primary, in)
			if err != nil {
				return err
			}
			results[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reports := make(map[string]model.ScoreReport, len(claims))
	for i, claim := range claims {
		reports[claim.ID] = results[i]
	}
	if err := p.store.SetData(ctx, r.id, jobstore.KeyReports, reports); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Primary review scored %d claims", len(claims))
	if primary == nil {
		message = fmt.Sprintf("Fallback scored %d claims (primary review disabled)", len(claims))
	}
	if err := p.advance(ctx, r, model.StatusGeminiReady, message); err != nil {
		return nil, err
	}
	p.stageDone(r, "review", start, zap.Int("claims", len(claims)), zap.Bool("primary", primary != nil))
	return reports, nil
}

func (p *Pipeline) claimReport(ctx context.Context, r *jobRun, idx int, primary factcheck.ClaimScorer, in factcheck.ScoreInput) (model.ScoreReport, error) {
	key := jobstore.ReportKey(in.Claim.ID)

	var rep model.ScoreReport
	found, err := p.cached(ctx, r, key, &rep)
	if err != nil {
		return model.ScoreReport{}, err
	}
	if found {
		r.trace("stage 4 cache hit", zap.Int("claim", idx), zap.String("claim_id", in.Claim.ID))
		return rep, nil
	}

	out := factcheck.ScoreClaim(ctx, primary, p.fallback, in)
	if out.IsFatal() {
		return model.ScoreReport{}, eris.Wrapf(out.Err, "stage 4: claim %s", in.Claim.ID)
	}
	if out.Kind == factcheck.OutcomeDegraded {
		r.log.Warn("review degraded",
			zap.String("claim_id", in.Claim.ID),
			zap.String("provider", out.Value.Provider),
			zap.Error(out.Err))
	}
	rep = out.Value
	r.trace("stage 4 output", zap.Int("claim", idx), zap.Any("report", rep))

	if err := p.store.SetData(ctx, r.id, key, rep); err != nil {
		return model.ScoreReport{}, err
	}
	return rep, nil
}

// primaryEnabled resolves the primary review toggle: the client's stored
// setting wins over the configured default
func (p *Pipeline) primaryEnabled(ctx context.Context, r *jobRun) bool {
	if p.primary == nil {
		return false
	}
	if r.clientID != "" {
		settings, found, err := p.store.GetSettings(ctx, r.clientID)
		if err != nil {
			r.log.Warn("read client settings", zap.String("client_id", r.clientID), zap.Error(err))
		} else if found {
			return settings.PrimaryScoringEnabled
		}
	}
	return p.config.PrimaryScoringEnabled
}

// Stage 5: deterministic final scores and the job result
func (p *Pipeline) finalize(ctx context.Context, r *jobRun, timestamps []model.Timestamp, claims []model.Claim, evidence map[string]model.Evidence, reports map[string]model.ScoreReport) error {
	start := p.now()
	if err := p.advance(ctx, r, model.StatusScoring, "Stage 5/5: Generating report..."); err != nil {
		return err
	}

	r.trace("stage 5 formula", zap.Any("formula", p.scorer.Formula()))
	finals, dropped := p.scorer.Finalize(claims, evidence, reports)
	for _, d := range dropped {
		r.log.Warn("claim dropped from result", zap.String("claim_id", d.ClaimID), zap.Error(d.Reason))
	}
	for _, fc := range finals {
		r.trace("stage 5 claim", zap.String("claim_id", fc.ClaimID),
			zap.Int("base_points", fc.Breakdown.BasePoints),
			zap.Float64("multiplier", fc.Breakdown.AgreementMultiplier),
			zap.Int("final_score", fc.FinalScore),
			zap.String("final_verdict", string(fc.FinalVerdict)))
	}

	result := p.buildResult(r, timestamps, finals)
	if err := p.store.SetData(ctx, r.id, jobstore.KeyFinalResult, result); err != nil {
		return err
	}
	if err := p.advance(ctx, r, model.StatusReady, fmt.Sprintf("Finalized %d claims", len(finals))); err != nil {
		return err
	}
	p.stageDone(r, "finalize", start, zap.Int("claims", len(finals)), zap.Int("dropped", len(dropped)))
	return nil
}

func (p *Pipeline) buildResult(r *jobRun, timestamps []model.Timestamp, claims []model.FinalClaim) model.Result {
	elapsed := p.now().Sub(r.createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return model.Result{
		JobID:          r.id,
		InputType:      r.inputType,
		Timestamps:     timestamps,
		Claims:         claims,
		ProcessingTime: math.Round(elapsed.Seconds()*1000) / 1000,
		CreatedAt:      r.createdAt,
	}
}

// truncate keeps the first n runes of s
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
