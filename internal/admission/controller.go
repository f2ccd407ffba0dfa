// Package admission validates incoming submissions against account quotas
// before any job state exists. Either a submission passes every gate and a
// queued job is created, or nothing is mutated at all.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/draftsmith/internal/cache"
	"github.com/kiranshivaraju/draftsmith/internal/jobs"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

const dedupTTL = 30 * time.Minute

// Reserver is the quota side of the account service the controller needs.
type Reserver interface {
	TryReserve(ctx context.Context, account *models.Account) error
}

// Registry is the slice of the job registry the controller needs.
type Registry interface {
	Create(ctx context.Context, accountID uuid.UUID, topic string) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// Controller admits submissions. Wake is invoked after a job is enqueued so
// the execution coordinator picks it up without waiting a poll interval.
type Controller struct {
	accounts Reserver
	registry Registry
	cache    cache.Cache
	wake     func()
}

func NewController(accounts Reserver, registry Registry, ca cache.Cache, wake func()) *Controller {
	if wake == nil {
		wake = func() {}
	}
	return &Controller{accounts: accounts, registry: registry, cache: ca, wake: wake}
}

// Submit runs the full admission sequence: topic validation, topic
// deduplication, quota reservation, job creation. The returned bool is true
// when an existing in-flight job for the same topic was reused; reused
// submissions consume no quota.
func (c *Controller) Submit(ctx context.Context, account *models.Account, topic string) (*models.Job, bool, error) {
	if err := jobs.ValidateTopic(topic); err != nil {
		return nil, false, err
	}

	if existing := c.lookupDuplicate(ctx, account.ID, topic); existing != nil {
		return existing, true, nil
	}

	if err := c.accounts.TryReserve(ctx, account); err != nil {
		return nil, false, err
	}

	job, err := c.registry.Create(ctx, account.ID, topic)
	if err != nil {
		// Quota was already consumed; the reservation is not rolled back
		// (windows count admitted attempts, and the caller sees the error).
		return nil, false, fmt.Errorf("creating job after reservation: %w", err)
	}

	dedupKey := cache.DedupKey(account.ID, topic)
	if _, err := c.cache.SetNXString(ctx, dedupKey, job.ID.String(), dedupTTL); err != nil {
		slog.Warn("dedup key write failed", "job_id", job.ID, "error", err)
	}
	_ = c.cache.SetJobStatus(ctx, job.ID, job.Status, dedupTTL)

	c.wake()
	return job, false, nil
}

// lookupDuplicate returns a non-terminal job previously admitted for the same
// account and topic, if one is still tracked in the dedup cache. Cache errors
// fail open: a missed dedup only costs a duplicate run.
func (c *Controller) lookupDuplicate(ctx context.Context, accountID uuid.UUID, topic string) *models.Job {
	val, ok, err := c.cache.GetString(ctx, cache.DedupKey(accountID, topic))
	if err != nil || !ok {
		return nil
	}
	jobID, err := uuid.Parse(val)
	if err != nil {
		return nil
	}
	job, err := c.registry.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, jobs.ErrNotFound) {
			slog.Warn("dedup lookup failed", "job_id", jobID, "error", err)
		}
		return nil
	}
	if job.Terminal() || job.AccountID != accountID {
		return nil
	}
	return job
}
