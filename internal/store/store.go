package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// QuotaExceededError reports which usage window had no headroom left.
type QuotaExceededError struct {
	Window string
	Limit  int
}

func (e *QuotaExceededError) Error() string {
	return "quota exceeded for " + e.Window + " window"
}

// CostSummary aggregates estimated pipeline spend across completed jobs.
type CostSummary struct {
	CompletedJobs int
	TotalCost     float64
}

// WindowLimit pairs a window kind with its admission ceiling for the
// account's tier. Passed into ReserveUsage by the account service, which owns
// the tier-to-quota mapping.
type WindowLimit struct {
	Kind  string
	Limit int
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, account *models.Account, windows []string) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountsByKeyPrefix(ctx context.Context, prefix string) ([]*models.Account, error)
	UpdateAccountLastUsed(ctx context.Context, id uuid.UUID) error
	ListAccounts(ctx context.Context) ([]*models.Account, error)

	// ReserveUsage atomically reserves one unit of quota across every window.
	// Expired windows are reset first. If any window is at its limit, no
	// counter is mutated and a *QuotaExceededError is returned.
	ReserveUsage(ctx context.Context, accountID uuid.UUID, limits []WindowLimit) error
	GetUsage(ctx context.Context, accountID uuid.UUID) ([]*models.UsageWindow, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// ClaimNextJob moves the oldest queued job to processing and returns it.
	// Returns (nil, nil) when the queue is empty. Safe to call from many
	// workers concurrently; each job is claimed by exactly one caller.
	ClaimNextJob(ctx context.Context) (*models.Job, error)
	RecordJobAttempt(ctx context.Context, id uuid.UUID) (int, error)
	CompleteJob(ctx context.Context, id uuid.UUID, artifacts models.Artifacts, executionSecs int) error
	FailJob(ctx context.Context, id uuid.UUID, message string) error
	CountJobsByStatus(ctx context.Context) (map[string]int, error)
	CountAccounts(ctx context.Context) (int, error)
	GetCostSummary(ctx context.Context) (*CostSummary, error)
}
