package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// MaxTopicLength is the longest topic accepted at submission.
const MaxTopicLength = 200

// Job tracks one asynchronous content-generation run. The API returns a
// job ID on POST /generate; the client polls GET /status/{job_id} until the
// status is completed or failed. Transitions are monotonic:
// queued -> processing -> completed|failed. Retries happen inside a single
// processing episode, never by re-queuing.
type Job struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	AccountID     uuid.UUID  `db:"account_id"     json:"account_id"`
	Topic         string     `db:"topic"          json:"topic"`
	Status        string     `db:"status"         json:"status"`
	AttemptCount  int        `db:"attempt_count"  json:"attempt_count"`
	ErrorMessage  *string    `db:"error_message"  json:"error_message,omitempty"`
	ReportPath    *string    `db:"report_path"    json:"report_path,omitempty"`
	BlogPath      *string    `db:"blog_path"      json:"blog_path,omitempty"`
	TokensUsed    *int       `db:"tokens_used"    json:"tokens_used,omitempty"`
	EstimatedCost *float64   `db:"estimated_cost" json:"estimated_cost,omitempty"`
	ExecutionSecs *int       `db:"execution_secs" json:"execution_secs,omitempty"`
	StartedAt     *time.Time `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
