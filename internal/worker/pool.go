// Package worker runs jobs on a bounded set of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by TrySubmit when no queue slot is free
	ErrQueueFull = errors.New("worker queue is full")

	// ErrPoolClosed is returned when submitting to a pool that is draining or shut down
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool manages a fixed set of workers fed from a bounded queue. Every
// result is handed to the pool's result handler.
type Pool struct {
	workers    int
	jobQueue   chan Job
	onResult   func(Result)
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool with the given number of workers and queue slots.
// onResult may be nil.
func NewPool(workers, queueSize int, onResult func(Result)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	if onResult == nil {
		onResult = func(Result) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, queueSize),
		onResult:   onResult,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.onResult(job.Execute(p.ctx))
		}
	}
}

// Submit queues job, blocking until a slot frees up or ctx ends
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// TrySubmit queues job without blocking
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.ctx.Err() != nil {
		return ErrPoolClosed
	}

	select {
	case p.jobQueue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending is the number of queued jobs not yet picked up
func (p *Pool) Pending() int {
	return len(p.jobQueue)
}

// Wait stops accepting jobs and blocks until every queued job has run
func (p *Pool) Wait() {
	p.close()
	p.wg.Wait()
}

// Shutdown cancels running jobs and waits for workers to exit, or for ctx
// to end first
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancelFunc()
	p.close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
}

// ResultCollector gathers results from concurrent workers
type ResultCollector struct {
	results []Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make([]Result, 0),
	}
}

// Add adds a result to the collector (thread-safe)
func (c *ResultCollector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns all collected results
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}

// Runner processes one stored job by id
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// RunJob runs a stored job through a Runner
type RunJob struct {
	JobID  string
	Runner Runner
}

// Execute runs the job
func (j *RunJob) Execute(ctx context.Context) Result {
	start := time.Now()
	err := j.Runner.Run(ctx, j.JobID)
	return &RunResult{JobID: j.JobID, Duration: time.Since(start), Error: err}
}

// RunResult is the outcome of a RunJob
type RunResult struct {
	JobID    string
	Duration time.Duration
	Error    error
}

// GetError returns the run error
func (r *RunResult) GetError() error {
	return r.Error
}

// LogResults returns a result handler that logs each finished run
func LogResults(logger *zap.Logger) func(Result) {
	return func(res Result) {
		rr, ok := res.(*RunResult)
		if !ok {
			return
		}
		if rr.Error != nil {
			logger.Warn("background job failed",
				zap.String("job_id", rr.JobID),
				zap.Int64("duration_ms", rr.Duration.Milliseconds()),
				zap.Error(rr.Error))
			return
		}
		logger.Info("background job finished",
			zap.String("job_id", rr.JobID),
			zap.Int64("duration_ms", rr.Duration.Milliseconds()))
	}
}
