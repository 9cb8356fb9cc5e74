package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/proofpulse/internal/cache"
	"github.com/ppiankov/proofpulse/internal/extract"
	"github.com/ppiankov/proofpulse/internal/factcheck"
	"github.com/ppiankov/proofpulse/internal/jobstore"
	"github.com/ppiankov/proofpulse/internal/model"
)

const sampleText = "Unemployment fell to 3.5 percent in September. The bill passed the Senate in 2019."

// recordingCache remembers every status written, in order
type recordingCache struct {
	*cache.MemoryCache
	mu       sync.Mutex
	statuses []model.Status
}

func (c *recordingCache) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	c.mu.Lock()
	for k, v := range values {
		if strings.HasSuffix(k, ":"+jobstore.KeyStatus) && len(v) > 0 {
			c.statuses = append(c.statuses, model.Status(v[1:]))
		}
	}
	c.mu.Unlock()
	return c.MemoryCache.SetMany(ctx, values, ttl)
}

func (c *recordingCache) history() []model.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Status(nil), c.statuses...)
}

type fakeClaims struct {
	claims []model.Claim
	err    error
	panics bool
	calls  atomic.Int32
}

func (f *fakeClaims) ExtractClaims(ctx context.Context, _ string, _ []model.Timestamp) ([]model.Claim, error) {
	f.calls.Add(1)
	if f.panics {
		panic("extractor exploded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.claims, f.err
}

type fakeEvidence struct {
	fn    func(model.Claim) (model.Evidence, error)
	calls atomic.Int32
}

func (f *fakeEvidence) RetrieveEvidence(_ context.Context, claim model.Claim) (model.Evidence, error) {
	f.calls.Add(1)
	return f.fn(claim)
}

type fakeScorer struct {
	name  string
	fn    func(factcheck.ScoreInput) (model.ScoreReport, error)
	calls atomic.Int32
}

func (f *fakeScorer) Name() string { return f.name }

func (f *fakeScorer) Score(_ context.Context, in factcheck.ScoreInput) (model.ScoreReport, error) {
	f.calls.Add(1)
	rep, err := f.fn(in)
	rep.Provider = f.name
	return rep, err
}

type harness struct {
	cfg      *model.Config
	rec      *recordingCache
	store    *jobstore.Store
	claims   *fakeClaims
	evidence *fakeEvidence
	primary  *fakeScorer
	fallback *fakeScorer
	pipeline *Pipeline
}

func claim(id, text string) model.Claim {
	return model.Claim{ID: id, Text: text, Type: model.ClaimTypeStatistical}
}

func source(url string) model.Source {
	return model.Source{Title: "Report", Publisher: "Agency", URL: url, Snippet: "snippet"}
}

func report(v model.Verdict, s, a, c, m int) model.ScoreReport {
	return model.ScoreReport{
		Verdict:          v,
		Confidence:       80,
		Breakdown:        model.ScoreBreakdown{EvidenceStrength: s, EvidenceAgreement: a, ContextAccuracy: c, ModelConfidencePoints: m},
		ShortExplanation: "reviewed",
		SourcesUsed:      []model.SourceUsed{},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		cfg: model.DefaultConfig(),
		rec: &recordingCache{MemoryCache: cache.NewMemoryCache(time.Hour, time.Minute)},
		claims: &fakeClaims{claims: []model.Claim{
			claim("c1", "Unemployment fell to 3.5 percent in September."),
		}},
		evidence: &fakeEvidence{fn: func(model.Claim) (model.Evidence, error) {
			return model.Evidence{
				Verdict:    model.EvidenceSupported,
				Confidence: 90,
				Sources:    []model.Source{source("https://bls.gov/release")},
				Rationale:  "Matches the release",
			}, nil
		}},
		primary: &fakeScorer{name: factcheck.ScorerPrimary, fn: func(factcheck.ScoreInput) (model.ScoreReport, error) {
			return report(model.VerdictSupported, 28, 28, 18, 18), nil
		}},
		fallback: &fakeScorer{name: factcheck.ScorerFallback, fn: func(factcheck.ScoreInput) (model.ScoreReport, error) {
			return report(model.VerdictUnclear, 15, 15, 10, 10), nil
		}},
	}
	h.cfg.Pipeline.LockTTL = time.Minute
	h.store = jobstore.New(h.rec, "memory", time.Hour)
	h.build(t)
	return h
}

func (h *harness) build(t *testing.T) {
	t.Helper()
	h.pipeline = NewPipeline(h.cfg, Deps{
		Store:    h.store,
		Router:   extract.NewRouter().Register(extract.TextExtractor{}, model.InputText, model.InputTxt),
		Claims:   h.claims,
		Evidence: h.evidence,
		Primary:  h.primary,
		Fallback: h.fallback,
		Logger:   zaptest.NewLogger(t),
	})
}

func (h *harness) ingest(t *testing.T, jobID string, inputType model.InputType, raw, clientID string) {
	t.Helper()
	if err := h.store.Initialize(context.Background(), jobID, inputType, raw, clientID); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

func (h *harness) status(t *testing.T, jobID string) jobstore.StatusInfo {
	t.Helper()
	info, found, err := h.store.GetStatus(context.Background(), jobID)
	if err != nil || !found {
		t.Fatalf("GetStatus: found=%v err=%v", found, err)
	}
	return info
}

func (h *harness) result(t *testing.T, jobID string) model.Result {
	t.Helper()
	var res model.Result
	found, err := h.store.GetData(context.Background(), jobID, jobstore.KeyFinalResult, &res)
	if err != nil || !found {
		t.Fatalf("final_result: found=%v err=%v", found, err)
	}
	return res
}

func TestRun_ScoresClaims(t *testing.T) {
	tests := []struct {
		name        string
		evidence    model.EvidenceVerdict
		report      model.ScoreReport
		wantScore   int
		wantMult    float64
		wantVerdict model.Verdict
	}{
		{
			name:        "verdicts agree",
			evidence:    model.EvidenceSupported,
			report:      report(model.VerdictSupported, 28, 28, 18, 18),
			wantScore:   92,
			wantMult:    1.0,
			wantVerdict: model.VerdictSupported,
		},
		{
			name:        "verdicts oppose",
			evidence:    model.EvidenceSupported,
			report:      report(model.VerdictContradicted, 10, 10, 10, 10),
			wantScore:   28,
			wantMult:    0.70,
			wantVerdict: model.VerdictMostlyContradicted,
		},
		{
			name:        "verdict comes from score only",
			evidence:    model.EvidenceContradicted,
			report:      report(model.VerdictSupported, 30, 30, 20, 20),
			wantScore:   70,
			wantMult:    0.70,
			wantVerdict: model.VerdictMostlySupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.evidence.fn = func(model.Claim) (model.Evidence, error) {
				return model.Evidence{Verdict: tt.evidence, Confidence: 80, Sources: []model.Source{source("https://example.org/a")}}, nil
			}
			h.primary.fn = func(factcheck.ScoreInput) (model.ScoreReport, error) { return tt.report, nil }

			h.ingest(t, "job-1", model.InputText, sampleText, "")
			if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
				t.Fatalf("Run: %v", err)
			}

			info := h.status(t, "job-1")
			if info.Status != model.StatusReady || info.Message != "Finalized 1 claims" {
				t.Errorf("Unexpected final status: %+v", info)
			}

			res := h.result(t, "job-1")
			if len(res.Claims) != 1 {
				t.Fatalf("Expected 1 claim, got %d", len(res.Claims))
			}
			fc := res.Claims[0]
			if fc.FinalScore != tt.wantScore || fc.Breakdown.AgreementMultiplier != tt.wantMult || fc.FinalVerdict != tt.wantVerdict {
				t.Errorf("Got score=%d mult=%.2f verdict=%s, want %d %.2f %s",
					fc.FinalScore, fc.Breakdown.AgreementMultiplier, fc.FinalVerdict,
					tt.wantScore, tt.wantMult, tt.wantVerdict)
			}
			if res.JobID != "job-1" || res.InputType != model.InputText {
				t.Errorf("Unexpected result identity: %s %s", res.JobID, res.InputType)
			}
		})
	}
}

func TestRun_WalksEveryStatus(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := model.AllStatuses()[:12]
	got := h.rec.history()
	if len(got) != len(want) {
		t.Fatalf("Expected %d status writes, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Status %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRun_NoClaims(t *testing.T) {
	h := newHarness(t)
	h.claims.claims = nil
	h.ingest(t, "job-1", model.InputText, "Hello there, how are you today?", "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	info := h.status(t, "job-1")
	if info.Status != model.StatusReady || info.Message != "No factual claims found in input" {
		t.Errorf("Unexpected status: %+v", info)
	}
	if n := h.evidence.calls.Load(); n != 0 {
		t.Errorf("Evidence retrieval should not run, got %d calls", n)
	}
	if n := h.primary.calls.Load() + h.fallback.calls.Load(); n != 0 {
		t.Errorf("Scoring should not run, got %d calls", n)
	}

	res := h.result(t, "job-1")
	if res.Claims == nil || len(res.Claims) != 0 {
		t.Errorf("Expected empty claims list, got %v", res.Claims)
	}

	history := h.rec.history()
	if last := history[len(history)-1]; last != model.StatusReady {
		t.Errorf("Expected READY last, got %s", last)
	}
	for _, st := range history {
		if st == model.StatusClaimsReady || st == model.StatusEvidenceRetrieval {
			t.Errorf("Unexpected status %s in empty run", st)
		}
	}
}

func TestRun_NotRunnableAfterReady(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := h.pipeline.Run(context.Background(), "job-1"); !errors.Is(err, ErrNotRunnable) {
		t.Errorf("Expected ErrNotRunnable, got %v", err)
	}
}

func TestRun_UnknownJob(t *testing.T) {
	h := newHarness(t)
	if err := h.pipeline.Run(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestRun_ReentryUsesCachedOutputs(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	first := h.result(t, "job-1")

	// Force re-entry through FAILED; every stage output is already stored
	if err := h.store.SetStatus(context.Background(), "job-1", model.StatusFailed, "Pipeline failed: test"); err != nil {
		t.Fatal(err)
	}
	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Re-run: %v", err)
	}

	if h.claims.calls.Load() != 1 || h.evidence.calls.Load() != 1 || h.primary.calls.Load() != 1 {
		t.Errorf("Collaborators called again: claims=%d evidence=%d primary=%d",
			h.claims.calls.Load(), h.evidence.calls.Load(), h.primary.calls.Load())
	}

	second := h.result(t, "job-1")
	if len(second.Claims) != len(first.Claims) || second.Claims[0].FinalScore != first.Claims[0].FinalScore {
		t.Errorf("Re-run changed the result: %+v vs %+v", first.Claims, second.Claims)
	}
}

func TestRun_ResumesAfterFailure(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var interrupt atomic.Bool
	interrupt.Store(true)
	h.primary.fn = func(factcheck.ScoreInput) (model.ScoreReport, error) {
		if interrupt.Load() {
			cancel()
			return model.ScoreReport{}, context.Canceled
		}
		return report(model.VerdictSupported, 28, 28, 18, 18), nil
	}
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(ctx, "job-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	info := h.status(t, "job-1")
	if info.Status != model.StatusFailed || !strings.HasPrefix(info.Message, "Pipeline failed: ") {
		t.Fatalf("Expected FAILED with message, got %+v", info)
	}

	interrupt.Store(false)
	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if h.status(t, "job-1").Status != model.StatusReady {
		t.Errorf("Expected READY after resume")
	}
	if h.claims.calls.Load() != 1 || h.evidence.calls.Load() != 1 {
		t.Errorf("Earlier stages re-ran: claims=%d evidence=%d", h.claims.calls.Load(), h.evidence.calls.Load())
	}
	if h.fallback.calls.Load() != 0 {
		t.Errorf("Cancelled review should not fall back, got %d fallback calls", h.fallback.calls.Load())
	}
}

func TestRun_PanicFailsJob(t *testing.T) {
	h := newHarness(t)
	h.claims.panics = true
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	err := h.pipeline.Run(context.Background(), "job-1")
	if err == nil || !strings.Contains(err.Error(), "extractor exploded") {
		t.Fatalf("Expected panic error, got %v", err)
	}
	info := h.status(t, "job-1")
	if info.Status != model.StatusFailed || !strings.HasPrefix(info.Message, "Pipeline failed: ") {
		t.Fatalf("Expected FAILED with message, got %+v", info)
	}
}

func TestRun_ExtractionFailure(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, "job-1", model.InputText, "too short", "")

	err := h.pipeline.Run(context.Background(), "job-1")
	if !errors.Is(err, extract.ErrTextTooShort) {
		t.Fatalf("Expected ErrTextTooShort, got %v", err)
	}

	info := h.status(t, "job-1")
	if info.Status != model.StatusFailed {
		t.Fatalf("Expected FAILED, got %s", info.Status)
	}
	if !strings.Contains(info.Message, "extracted text too short") {
		t.Errorf("Failure message should carry the cause: %q", info.Message)
	}
	if h.claims.calls.Load() != 0 {
		t.Error("Claim extraction should not run after stage 1 failure")
	}
}

func TestRun_UnsupportedType(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, "job-1", model.InputType("audio"), "raw audio reference", "")

	if err := h.pipeline.Run(context.Background(), "job-1"); !errors.Is(err, extract.ErrUnsupportedType) {
		t.Fatalf("Expected ErrUnsupportedType, got %v", err)
	}
	if h.status(t, "job-1").Status != model.StatusFailed {
		t.Error("Expected FAILED")
	}
}

func TestRun_ClaimExtractionDegrades(t *testing.T) {
	h := newHarness(t)
	h.claims.err = errors.New("provider timeout")
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := h.result(t, "job-1")
	if len(res.Claims) != 1 {
		t.Fatalf("Expected one best-effort claim, got %d", len(res.Claims))
	}
	if res.Claims[0].ClaimText != sampleText || res.Claims[0].ClaimType != model.ClaimTypeStatistical {
		t.Errorf("Unexpected best-effort claim: %+v", res.Claims[0])
	}
}

func TestRun_CapsClaims(t *testing.T) {
	h := newHarness(t)
	h.claims.claims = nil
	for i := 0; i < 7; i++ {
		h.claims.claims = append(h.claims.claims, claim(fmt.Sprintf("c%d", i), fmt.Sprintf("Claim number %d is a fact.", i)))
	}
	h.cfg.Pipeline.ClaimWorkers = 3
	h.build(t)
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := h.result(t, "job-1")
	if len(res.Claims) != 5 {
		t.Fatalf("Expected 5 claims, got %d", len(res.Claims))
	}
	for i, fc := range res.Claims {
		if fc.ClaimID != fmt.Sprintf("c%d", i) {
			t.Errorf("Claim %d out of order: %s", i, fc.ClaimID)
		}
	}
	if h.evidence.calls.Load() != 5 {
		t.Errorf("Expected 5 evidence calls, got %d", h.evidence.calls.Load())
	}
}

func TestRun_ZeroSourceGuard(t *testing.T) {
	h := newHarness(t)
	h.evidence.fn = func(model.Claim) (model.Evidence, error) {
		return model.Evidence{Verdict: model.EvidenceSupported, Confidence: 95}, nil
	}
	var seen factcheck.ScoreInput
	h.primary.fn = func(in factcheck.ScoreInput) (model.ScoreReport, error) {
		seen = in
		return report(model.VerdictUnclear, 12, 12, 12, 2), nil
	}
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var ev model.Evidence
	if _, err := h.store.GetData(context.Background(), "job-1", jobstore.EvidenceKey("c1"), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Verdict != model.EvidenceUnclear || ev.Confidence != 10 || len(ev.Sources) != 1 {
		t.Errorf("Expected no-sources fallback evidence, got %+v", ev)
	}
	if seen.Evidence.Verdict != model.EvidenceUnclear {
		t.Errorf("Scorer saw %s, want UNCLEAR", seen.Evidence.Verdict)
	}

	fc := h.result(t, "job-1").Claims[0]
	if fc.Sources[0].Title != "No sources found" || fc.EvidenceVerdict != model.EvidenceUnclear {
		t.Errorf("Unexpected final sources: %+v", fc)
	}
}

func TestRun_PrimaryFailureFallsBack(t *testing.T) {
	h := newHarness(t)
	h.primary.fn = func(factcheck.ScoreInput) (model.ScoreReport, error) {
		return model.ScoreReport{}, factcheck.ErrProviderResponse
	}
	var fallbackInput factcheck.ScoreInput
	h.fallback.fn = func(in factcheck.ScoreInput) (model.ScoreReport, error) {
		fallbackInput = in
		return report(model.VerdictMostlySupported, 25, 25, 17, 16), nil
	}
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if h.primary.calls.Load() != 1 || h.fallback.calls.Load() != 1 {
		t.Errorf("Expected one primary and one fallback call, got %d/%d", h.primary.calls.Load(), h.fallback.calls.Load())
	}
	if fallbackInput.Context != sampleText || fallbackInput.Evidence.Verdict != model.EvidenceSupported {
		t.Errorf("Fallback did not receive the primary inputs: %+v", fallbackInput)
	}

	var rep model.ScoreReport
	if _, err := h.store.GetData(context.Background(), "job-1", jobstore.ReportKey("c1"), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Provider != factcheck.ScorerFallback {
		t.Errorf("Expected stored report from fallback, got %q", rep.Provider)
	}
}

func TestRun_PrimaryPanicFallsBack(t *testing.T) {
	h := newHarness(t)
	h.primary.fn = func(factcheck.ScoreInput) (model.ScoreReport, error) {
		panic("primary scorer crashed")
	}
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.status(t, "job-1").Status != model.StatusReady {
		t.Fatal("Expected READY after fallback")
	}
	if h.fallback.calls.Load() != 1 {
		t.Errorf("Fallback calls = %d, want 1", h.fallback.calls.Load())
	}

	var rep model.ScoreReport
	if _, err := h.store.GetData(context.Background(), "job-1", jobstore.ReportKey("c1"), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Provider != factcheck.ScorerFallback {
		t.Errorf("Expected stored report from fallback, got %q", rep.Provider)
	}
}

func TestRun_FallbackFailureUsesConservativeDefaults(t *testing.T) {
	h := newHarness(t)
	h.primary.fn = func(factcheck.ScoreInput) (model.ScoreReport, error) {
		return model.ScoreReport{}, errors.New("503 from primary")
	}
	h.fallback.fn = func(factcheck.ScoreInput) (model.ScoreReport, error) {
		return model.ScoreReport{}, errors.New("fallback down")
	}
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	fc := h.result(t, "job-1").Claims[0]
	want := model.ScoreBreakdown{EvidenceStrength: 15, EvidenceAgreement: 15, ContextAccuracy: 10, ModelConfidencePoints: 18}
	if fc.Breakdown.ScoreBreakdown != want {
		t.Errorf("Expected conservative breakdown %+v, got %+v", want, fc.Breakdown.ScoreBreakdown)
	}
}

func TestRun_ClientSettingsDisablePrimary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.store.SetSettings(ctx, "client-1", model.ClientSettings{PrimaryScoringEnabled: false, DemoMode: model.DemoModeLive}); err != nil {
		t.Fatal(err)
	}
	h.ingest(t, "job-1", model.InputText, sampleText, "client-1")

	if err := h.pipeline.Run(ctx, "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.primary.calls.Load() != 0 || h.fallback.calls.Load() != 1 {
		t.Errorf("Expected fallback only, got primary=%d fallback=%d", h.primary.calls.Load(), h.fallback.calls.Load())
	}

	// A client without stored settings gets the configured default
	h.ingest(t, "job-2", model.InputText, sampleText, "client-2")
	if err := h.pipeline.Run(ctx, "job-2"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.primary.calls.Load() != 1 {
		t.Errorf("Expected primary for default settings, got %d calls", h.primary.calls.Load())
	}
}

func TestRun_OutOfRangeClaimDropped(t *testing.T) {
	h := newHarness(t)
	h.claims.claims = []model.Claim{
		claim("c1", "Unemployment fell to 3.5 percent in September."),
		claim("c2", "The bill passed the Senate in 2019."),
	}
	h.primary.fn = func(in factcheck.ScoreInput) (model.ScoreReport, error) {
		if in.Claim.ID == "c1" {
			return report(model.VerdictSupported, 35, 28, 18, 18), nil
		}
		return report(model.VerdictSupported, 28, 28, 18, 18), nil
	}
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := h.result(t, "job-1")
	if len(res.Claims) != 1 || res.Claims[0].ClaimID != "c2" {
		t.Fatalf("Expected only c2 to survive, got %+v", res.Claims)
	}
	if msg := h.status(t, "job-1").Message; msg != "Finalized 1 claims" {
		t.Errorf("Unexpected message %q", msg)
	}
}

func TestRun_Locked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	if ok, err := h.store.TryLock(ctx, "job-1", "other-worker", time.Minute); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	if err := h.pipeline.Run(ctx, "job-1"); !errors.Is(err, ErrJobLocked) {
		t.Fatalf("Expected ErrJobLocked, got %v", err)
	}
	if h.status(t, "job-1").Status != model.StatusIngested {
		t.Error("Locked run must not touch status")
	}

	if err := h.store.Unlock(ctx, "job-1", "other-worker"); err != nil {
		t.Fatal(err)
	}
	if err := h.pipeline.Run(ctx, "job-1"); err != nil {
		t.Fatalf("Run after unlock: %v", err)
	}
	if ok, _ := h.store.Exists(ctx, "job-1", jobstore.KeyLock); ok {
		t.Error("Lock should be released after the run")
	}
}

func TestRun_CancelledContextFails(t *testing.T) {
	h := newHarness(t)
	h.ingest(t, "job-1", model.InputText, sampleText, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.pipeline.Run(ctx, "job-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if h.status(t, "job-1").Status != model.StatusFailed {
		t.Error("Cancelled run should be recorded as FAILED")
	}
}

func TestRun_ProcessingTime(t *testing.T) {
	h := newHarness(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.store = jobstore.New(h.rec, "memory", time.Hour, jobstore.WithClock(func() time.Time { return created }))
	h.build(t)
	h.pipeline.now = func() time.Time { return created.Add(1500 * time.Millisecond) }

	h.ingest(t, "job-1", model.InputText, sampleText, "")
	if err := h.pipeline.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := h.result(t, "job-1")
	if res.ProcessingTime != 1.5 {
		t.Errorf("Expected processing_time 1.5, got %v", res.ProcessingTime)
	}
	if !res.CreatedAt.Equal(created) {
		t.Errorf("Expected created_at %v, got %v", created, res.CreatedAt)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo world", 5); got != "héllo" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 500); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
