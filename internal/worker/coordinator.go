// Package worker runs the execution coordinator: a fixed pool of executors
// that pull admitted jobs, invoke the content pipeline with retry and
// backoff, and write outcomes back through the job registry.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/draftsmith/internal/cache"
	"github.com/kiranshivaraju/draftsmith/internal/pipeline/pipeerr"
	"github.com/kiranshivaraju/draftsmith/internal/retry"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	statusCacheTTL      = 30 * time.Minute
)

// Registry is the slice of the job registry the coordinator mutates. Each
// claimed job is owned by exactly one executor until it reaches a terminal
// state, so these calls never race per job.
type Registry interface {
	ClaimNext(ctx context.Context) (*models.Job, error)
	RecordAttempt(ctx context.Context, id uuid.UUID) (int, error)
	Complete(ctx context.Context, id uuid.UUID, artifacts models.Artifacts, executionSecs int) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}

// Coordinator owns the executor pool.
type Coordinator struct {
	registry     Registry
	provider     models.PipelineProvider
	policy       retry.Policy
	cache        cache.Cache
	timeout      time.Duration
	concurrency  int
	pollInterval time.Duration

	wakeCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPollInterval overrides how long an idle executor waits before checking
// the queue again. Mostly for tests.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.pollInterval = d }
}

// NewCoordinator creates a Coordinator with concurrency executors. timeout
// bounds each individual pipeline invocation.
func NewCoordinator(
	reg Registry,
	provider models.PipelineProvider,
	policy retry.Policy,
	ca cache.Cache,
	concurrency int,
	timeout time.Duration,
	opts ...Option,
) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	c := &Coordinator{
		registry:     reg,
		provider:     provider,
		policy:       policy,
		cache:        ca,
		timeout:      timeout,
		concurrency:  concurrency,
		pollInterval: defaultPollInterval,
		wakeCh:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the executors. They run until ctx is cancelled; Wait blocks
// until every executor has returned.
func (c *Coordinator) Start(ctx context.Context) {
	slog.Info("execution coordinator starting",
		"concurrency", c.concurrency,
		"provider", c.provider.Name(),
		"pipeline_timeout", c.timeout)

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.runExecutor(ctx)
		}()
	}
}

// Wait blocks until all executors have exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Wake nudges an idle executor to check the queue immediately. Safe to call
// from any goroutine; redundant wakes coalesce.
func (c *Coordinator) Wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) runExecutor(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := c.registry.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("claim error", "error", err)
			if !c.idle(ctx) {
				return
			}
			continue
		}
		if job == nil {
			if !c.idle(ctx) {
				return
			}
			continue
		}

		c.execute(ctx, job)
	}
}

// idle waits for a wake signal or the poll interval. Returns false when ctx
// is done.
func (c *Coordinator) idle(ctx context.Context) bool {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.wakeCh:
		return true
	case <-timer.C:
		return true
	}
}

// execute drives one job through its full processing episode: repeated
// pipeline invocations under the retry policy until a terminal state. All
// retries happen here, inside processing; the job is never re-queued, so
// attempt counts and backoff state stay local to this executor.
func (c *Coordinator) execute(ctx context.Context, job *models.Job) {
	log := slog.With("job_id", job.ID, "topic", job.Topic)
	log.Info("job started", "provider", c.provider.Name())

	_ = c.cache.SetJobStatus(context.Background(), job.ID, models.JobStatusProcessing, statusCacheTTL)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during job execution", "error", r)
			c.finishFailed(job.ID, fmt.Sprintf("internal error: panic: %v", r), log)
		}
	}()

	start := time.Now()
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		artifacts, err := c.provider.Generate(attemptCtx, job.Topic)
		cancel()

		if err == nil {
			execSecs := int(time.Since(start).Seconds())
			if err := c.registry.Complete(context.Background(), job.ID, artifacts, execSecs); err != nil {
				log.Error("failed to mark completed", "error", err)
				return
			}
			_ = c.cache.SetJobStatus(context.Background(), job.ID, models.JobStatusCompleted, statusCacheTTL)
			log.Info("job completed",
				"execution_secs", execSecs,
				"tokens_used", artifacts.TokensUsed)
			return
		}

		// A shutdown mid-call leaves the job in processing for an external
		// supervisor to reconcile; mutating state here would race the next
		// process's view of the job.
		if ctx.Err() != nil {
			log.Info("job execution abandoned due to shutdown")
			return
		}

		attempts, recErr := c.registry.RecordAttempt(context.Background(), job.ID)
		if recErr != nil {
			log.Error("failed to record attempt", "error", recErr)
			c.finishFailed(job.ID, fmt.Sprintf("bookkeeping failure: %v (pipeline error: %v)", recErr, err), log)
			return
		}

		kind := pipeerr.Classify(err)
		decision := c.policy.Decide(kind, attempts)
		if !decision.Retry {
			var msg string
			if kind == retry.KindPermanent {
				msg = fmt.Sprintf("permanent pipeline failure: %v", err)
			} else {
				msg = fmt.Sprintf("retries exhausted after %d attempts: last error: %v", attempts, err)
			}
			c.finishFailed(job.ID, msg, log)
			log.Warn("job failed", "attempts", attempts, "kind", kind.String(), "error", err)
			return
		}

		log.Warn("pipeline attempt failed, will retry",
			"attempt", attempts,
			"delay", decision.Delay,
			"error", err)

		if !sleep(ctx, decision.Delay) {
			log.Info("job execution abandoned during backoff")
			return
		}
	}
}

func (c *Coordinator) finishFailed(jobID uuid.UUID, message string, log *slog.Logger) {
	if err := c.registry.Fail(context.Background(), jobID, message); err != nil {
		log.Error("failed to mark failed", "error", err)
		return
	}
	_ = c.cache.SetJobStatus(context.Background(), jobID, models.JobStatusFailed, statusCacheTTL)
}

// sleep waits d, returning false if ctx finished first. No lock is held
// while sleeping.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
