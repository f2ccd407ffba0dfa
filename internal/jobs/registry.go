// Package jobs owns job records and their state machine. Every mutation goes
// through the Registry; status transitions are guarded at the storage layer
// so no interleaving of writers can produce an illegal sequence.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

var (
	ErrEmptyTopic   = errors.New("topic must not be empty")
	ErrTopicTooLong = fmt.Errorf("topic must not exceed %d characters", models.MaxTopicLength)
	ErrNotFound     = errors.New("job not found")
	ErrForbidden    = errors.New("job belongs to another account")
)

// ValidateTopic applies the submission rules shared by the admission
// controller and Create.
func ValidateTopic(topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrEmptyTopic
	}
	if len([]rune(topic)) > models.MaxTopicLength {
		return ErrTopicTooLong
	}
	return nil
}

// Registry is the single owner of job records.
type Registry struct {
	store store.Store
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st}
}

// Create inserts a new queued job for the account.
func (r *Registry) Create(ctx context.Context, accountID uuid.UUID, topic string) (*models.Job, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		AccountID: accountID,
		Topic:     strings.TrimSpace(topic),
		Status:    models.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return job, nil
}

// Get returns the job regardless of owner.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := r.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}

// GetForAccount returns the job only if the account owns it. A job owned by
// someone else yields ErrForbidden, never the record itself, so callers
// cannot enumerate other accounts' jobs.
func (r *Registry) GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.Job, error) {
	job, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.AccountID != accountID {
		return nil, ErrForbidden
	}
	return job, nil
}

// ClaimNext dequeues the oldest queued job and transitions it to processing.
// Returns (nil, nil) when nothing is queued.
func (r *Registry) ClaimNext(ctx context.Context) (*models.Job, error) {
	return r.store.ClaimNextJob(ctx)
}

// RecordAttempt increments and returns the job's attempt counter.
func (r *Registry) RecordAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	return r.store.RecordJobAttempt(ctx, id)
}

// Complete moves a processing job to completed and records its artifacts.
func (r *Registry) Complete(ctx context.Context, id uuid.UUID, artifacts models.Artifacts, executionSecs int) error {
	return r.store.CompleteJob(ctx, id, artifacts, executionSecs)
}

// Fail moves a processing job to failed. message must be non-empty; a failed
// job without a reason is unusable to polling clients.
func (r *Registry) Fail(ctx context.Context, id uuid.UUID, message string) error {
	if message == "" {
		message = "unknown error"
	}
	return r.store.FailJob(ctx, id, message)
}
