// Package pipeline runs a job through the five processing stages, from raw
// input to scored result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/proofpulse/internal/extract"
	"github.com/ppiankov/proofpulse/internal/factcheck"
	"github.com/ppiankov/proofpulse/internal/jobstore"
	"github.com/ppiankov/proofpulse/internal/model"
	"github.com/ppiankov/proofpulse/internal/score"
)

var (
	// ErrJobNotFound is returned for a job id with no stored status
	ErrJobNotFound = errors.New("job not found")

	// ErrNotRunnable is returned when a job is neither INGESTED nor FAILED
	ErrNotRunnable = errors.New("job is not runnable")

	// ErrJobLocked is returned when another run already holds the job
	ErrJobLocked = errors.New("job is locked by another run")

	// ErrIllegalTransition is returned when a stage tries to skip the status order
	ErrIllegalTransition = errors.New("illegal status transition")
)

// Deps are the collaborators a Pipeline calls out to
type Deps struct {
	Store    *jobstore.Store
	Router   *extract.Router
	Claims   factcheck.ClaimExtractor
	Evidence factcheck.EvidenceRetriever
	Primary  factcheck.ClaimScorer // nil when no primary reviewer is configured
	Fallback factcheck.ClaimScorer
	Scorer   *score.Scorer
	Logger   *zap.Logger
}

// Pipeline orchestrates the complete job process
type Pipeline struct {
	store    *jobstore.Store
	router   *extract.Router
	claims   factcheck.ClaimExtractor
	evidence factcheck.EvidenceRetriever
	primary  factcheck.ClaimScorer
	fallback factcheck.ClaimScorer
	scorer   *score.Scorer
	logger   *zap.Logger

	config     model.PipelineConfig
	debugJobID string

	inflight sync.Map
	now      func() time.Time
}

// NewPipeline creates a pipeline from cfg and its collaborators
func NewPipeline(cfg *model.Config, deps Deps) *Pipeline {
	pc := cfg.Pipeline
	if pc.ClaimWorkers <= 0 {
		pc.ClaimWorkers = 1
	}
	if pc.ContextSnippetChars <= 0 {
		pc.ContextSnippetChars = 500
	}

	p := &Pipeline{
		store:      deps.Store,
		router:     deps.Router,
		claims:     deps.Claims,
		evidence:   deps.Evidence,
		primary:    deps.Primary,
		fallback:   deps.Fallback,
		scorer:     deps.Scorer,
		logger:     deps.Logger,
		config:     pc,
		debugJobID: cfg.Logging.DebugJobID,
		now:        time.Now,
	}
	if p.scorer == nil {
		p.scorer = score.NewScorer()
	}
	if p.fallback == nil {
		p.fallback = factcheck.NewRubricScorer()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// jobRun is the state of one Run call
type jobRun struct {
	id        string
	status    model.Status
	inputType model.InputType
	clientID  string
	createdAt time.Time
	log       *zap.Logger
	debug     bool
}

// trace logs stage detail for the job named by logging.debug_job_id
func (r *jobRun) trace(msg string, fields ...zap.Field) {
	if r.debug {
		r.log.Info("trace: "+msg, fields...)
	}
}

// Run processes one job from its current status to READY. The job must be
// INGESTED or FAILED. Stage outputs already stored are reused, so a failed
// job resumes where it stopped.
func (p *Pipeline) Run(ctx context.Context, jobID string) error {
	info, found, err := p.store.GetStatus(ctx, jobID)
	if err != nil {
		return eris.Wrapf(err, "read status for job %s", jobID)
	}
	if !found {
		return eris.Wrapf(ErrJobNotFound, "job %s", jobID)
	}

	if _, busy := p.inflight.LoadOrStore(jobID, struct{}{}); busy {
		return eris.Wrapf(ErrJobLocked, "job %s", jobID)
	}
	defer p.inflight.Delete(jobID)

	owner := uuid.NewString()
	locked, err := p.store.TryLock(ctx, jobID, owner, p.config.LockTTL)
	if err != nil {
		return err
	}
	if !locked {
		return eris.Wrapf(ErrJobLocked, "job %s", jobID)
	}
	defer func() {
		if err := p.store.Unlock(context.WithoutCancel(ctx), jobID, owner); err != nil {
			p.logger.Warn("release job lock", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	// Re-read under the lock; a run that finished in between leaves READY
	if info, _, err = p.store.GetStatus(ctx, jobID); err != nil {
		return eris.Wrapf(err, "read status for job %s", jobID)
	}
	if !info.Status.Runnable() {
		return eris.Wrapf(ErrNotRunnable, "job %s is %s", jobID, info.Status)
	}

	r := &jobRun{
		id:     jobID,
		status: info.Status,
		log:    p.logger.With(zap.String("job_id", jobID)),
		debug:  p.debugJobID != "" && p.debugJobID == jobID,
	}

	start := p.now()
	if err := p.runStages(ctx, r); err != nil {
		p.fail(ctx, r, err)
		return err
	}
	r.log.Info("pipeline complete",
		zap.String("status", string(r.status)),
		zap.Int64("duration_ms", p.now().Sub(start).Milliseconds()))
	return nil
}

// runStages executes the five stages in order, turning a panic into an error
func (p *Pipeline) runStages(ctx context.Context, r *jobRun) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()

	if err := p.loadJob(ctx, r); err != nil {
		return err
	}
	if err := p.advance(ctx, r, model.StatusProcessing, "Pipeline started"); err != nil {
		return err
	}

	text, timestamps, err := p.extractText(ctx, r)
	if err != nil {
		return err
	}

	claims, err := p.extractClaims(ctx, r, text, timestamps)
	if err != nil {
		return err
	}
	if r.status == model.StatusReady {
		r.log.Info("pipeline completed early, no claims to process")
		return nil
	}

	evidence, err := p.retrieveEvidence(ctx, r, claims)
	if err != nil {
		return err
	}

	reports, err := p.reviewClaims(ctx, r, text, claims, evidence)
	if err != nil {
		return err
	}

	return p.finalize(ctx, r, timestamps, claims, evidence, reports)
}

// goRecover runs fn in g, turning a panic into the group's error
func goRecover(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = eris.Errorf("panic: %v\n%s", rec, debug.Stack())
			}
		}()
		return fn()
	})
}

// loadJob reads the ingestion fields every stage relies on
func (p *Pipeline) loadJob(ctx context.Context, r *jobRun) error {
	vals, err := p.store.GetMany(ctx, r.id, []string{jobstore.KeyType, jobstore.KeyClientID})
	if err != nil {
		return err
	}
	r.inputType = model.InputType(vals[jobstore.KeyType].String())
	r.clientID = vals[jobstore.KeyClientID].String()

	createdAt, found, err := p.store.CreatedAt(ctx, r.id)
	if err != nil && !errors.Is(err, jobstore.ErrUndecodable) {
		return err
	}
	if !found || err != nil {
		createdAt = p.now().UTC()
	}
	r.createdAt = createdAt
	return nil
}

// advance moves the job to next if the transition table allows it
func (p *Pipeline) advance(ctx context.Context, r *jobRun, next model.Status, message string) error {
	if !r.status.CanTransition(next) {
		return eris.Wrapf(ErrIllegalTransition, "%s -> %s", r.status, next)
	}
	if err := p.store.SetStatus(ctx, r.id, next, message); err != nil {
		return err
	}
	r.status = next
	return nil
}

// fail records err as the job's terminal state. Cached stage outputs stay.
func (p *Pipeline) fail(ctx context.Context, r *jobRun, err error) {
	r.log.Error("pipeline failed", zap.String("status", string(r.status)), zap.Error(err))
	if !r.status.CanTransition(model.StatusFailed) {
		return
	}

	message := fmt.Sprintf("Pipeline failed: %v\n%s", err, eris.ToString(err, true))
	if serr := p.store.SetStatus(context.WithoutCancel(ctx), r.id, model.StatusFailed, message); serr != nil {
		r.log.Error("record failure status", zap.Error(serr))
		return
	}
	r.status = model.StatusFailed
}

// cached reads a stage output, treating an undecodable value as a miss
func (p *Pipeline) cached(ctx context.Context, r *jobRun, key string, dst any) (bool, error) {
	found, err := p.store.GetData(ctx, r.id, key, dst)
	if errors.Is(err, jobstore.ErrUndecodable) {
		r.log.Warn("ignoring undecodable cached value", zap.String("key", key))
		return false, nil
	}
	return found, err
}

func (p *Pipeline) stageDone(r *jobRun, stage string, start time.Time, fields ...zap.Field) {
	fields = append(fields,
		zap.String("stage", stage),
		zap.Int64("duration_ms", p.now().Sub(start).Milliseconds()))
	r.log.Info("stage complete", fields...)
}
