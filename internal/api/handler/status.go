package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/draftsmith/internal/api/middleware"
	"github.com/kiranshivaraju/draftsmith/internal/api/response"
	"github.com/kiranshivaraju/draftsmith/internal/cache"
	"github.com/kiranshivaraju/draftsmith/internal/jobs"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

const viewCacheTTL = 30 * time.Minute

// StatusReader is the registry surface the status handler needs.
type StatusReader interface {
	GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.Job, error)
}

// JobView is the polling projection of a job. Result is present only on
// completed jobs, Error only on failed ones.
type JobView struct {
	JobID        uuid.UUID         `json:"job_id"`
	Status       string            `json:"status"`
	Topic        string            `json:"topic"`
	AttemptCount int               `json:"attempt_count"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Result       *models.Artifacts `json:"result,omitempty"`
	Error        *string           `json:"error,omitempty"`
}

// NewJobView builds the polling projection from a job record.
func NewJobView(job *models.Job) JobView {
	view := JobView{
		JobID:        job.ID,
		Status:       job.Status,
		Topic:        job.Topic,
		AttemptCount: job.AttemptCount,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
	switch job.Status {
	case models.JobStatusCompleted:
		result := &models.Artifacts{}
		if job.ReportPath != nil {
			result.ReportPath = *job.ReportPath
		}
		if job.BlogPath != nil {
			result.BlogPath = *job.BlogPath
		}
		if job.TokensUsed != nil {
			result.TokensUsed = *job.TokensUsed
		}
		if job.EstimatedCost != nil {
			result.EstimatedCost = *job.EstimatedCost
		}
		view.Result = result
	case models.JobStatusFailed:
		view.Error = job.ErrorMessage
	}
	return view
}

// NewStatusHandler returns the handler for GET /status/{jobID}. Terminal
// views never change, so they are served from the cache once the ownership
// check has passed for this account; in-flight jobs are always read fresh.
// The cache key binds the view to the owning account so a hit can never leak
// another account's job.
func NewStatusHandler(reader StatusReader, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, ok := mw.GetAccount(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Job ID must be a UUID", nil)
			return
		}

		cacheKey := cache.JobViewKey(acct.ID, jobID)
		if body, found, err := ca.Get(r.Context(), cacheKey); err == nil && found {
			var view JobView
			if json.Unmarshal(body, &view) == nil {
				response.JSON(w, view)
				return
			}
		}

		job, err := reader.GetForAccount(r.Context(), jobID, acct.ID)
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		case errors.Is(err, jobs.ErrForbidden):
			response.Error(w, http.StatusForbidden, "FORBIDDEN", "Job belongs to another account", nil)
			return
		case err != nil:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read job", nil)
			return
		}

		view := NewJobView(job)
		if job.Terminal() {
			if body, err := json.Marshal(view); err == nil {
				_ = ca.Set(r.Context(), cacheKey, body, viewCacheTTL)
			}
		}

		response.JSON(w, view)
	}
}
