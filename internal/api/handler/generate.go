package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/draftsmith/internal/account"
	mw "github.com/kiranshivaraju/draftsmith/internal/api/middleware"
	"github.com/kiranshivaraju/draftsmith/internal/api/response"
	"github.com/kiranshivaraju/draftsmith/internal/jobs"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

// Submitter is the admission controller surface the generate handler needs.
type Submitter interface {
	Submit(ctx context.Context, acct *models.Account, topic string) (*models.Job, bool, error)
}

// UsageReader reports current consumption, included in the submission
// response so clients can see headroom without a second request.
type UsageReader interface {
	GetUsage(ctx context.Context, acct *models.Account) (*account.Usage, error)
}

// NewGenerateHandler returns the handler for POST /generate. Submission is
// non-blocking: the job is admitted, queued, and the response returns
// immediately; clients poll /status/{job_id} for the outcome.
func NewGenerateHandler(submitter Submitter, usage UsageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, ok := mw.GetAccount(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		var req struct {
			Topic string `json:"topic"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, deduped, err := submitter.Submit(r.Context(), acct, req.Topic)
		if err != nil {
			var quotaErr *store.QuotaExceededError
			switch {
			case errors.Is(err, jobs.ErrEmptyTopic), errors.Is(err, jobs.ErrTopicTooLong):
				response.Error(w, http.StatusUnprocessableEntity, "INVALID_TOPIC", err.Error(), nil)
			case errors.As(err, &quotaErr):
				response.Error(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED",
					fmt.Sprintf("Quota exceeded: %s window limit of %d reached. Upgrade your plan.", quotaErr.Window, quotaErr.Limit),
					map[string]any{"window": quotaErr.Window, "limit": quotaErr.Limit})
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to submit job", nil)
			}
			return
		}

		message := "Job accepted; poll /status/{job_id} for the result"
		if deduped {
			message = "An identical topic is already in flight; returning the existing job"
		}

		body := map[string]any{
			"job_id":  job.ID,
			"status":  job.Status,
			"message": message,
		}
		if u, err := usage.GetUsage(r.Context(), acct); err == nil {
			if monthly, ok := u.MonthlyWindow(); ok {
				body["usage"] = fmt.Sprintf("%d/%d", monthly.Count, monthly.Limit)
			}
		}

		response.Accepted(w, body)
	}
}
