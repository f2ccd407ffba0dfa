package jobs_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/draftsmith/internal/jobs"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore stubs only the store methods the registry exercises. Calling
// anything else panics through the embedded nil interface, which is exactly
// what we want: the registry must not touch them.
type fakeStore struct {
	store.Store

	createJobFn func(ctx context.Context, job *models.Job) error
	getJobFn    func(ctx context.Context, id uuid.UUID) (*models.Job, error)
	failJobFn   func(ctx context.Context, id uuid.UUID, message string) error
}

func (f *fakeStore) CreateJob(ctx context.Context, job *models.Job) error {
	return f.createJobFn(ctx, job)
}

func (f *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return f.getJobFn(ctx, id)
}

func (f *fakeStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	return f.failJobFn(ctx, id, message)
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr error
	}{
		{"valid", "AI in healthcare", nil},
		{"empty", "", jobs.ErrEmptyTopic},
		{"whitespace only", "   \t  ", jobs.ErrEmptyTopic},
		{"at limit", strings.Repeat("a", models.MaxTopicLength), nil},
		{"over limit", strings.Repeat("a", models.MaxTopicLength+1), jobs.ErrTopicTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := jobs.ValidateTopic(tt.topic)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	var stored *models.Job
	st := &fakeStore{
		createJobFn: func(_ context.Context, job *models.Job) error {
			stored = job
			return nil
		},
	}
	r := jobs.NewRegistry(st)
	accountID := uuid.New()

	job, err := r.Create(context.Background(), accountID, "  Quantum computing  ")
	require.NoError(t, err)

	assert.Equal(t, stored, job)
	assert.Equal(t, accountID, job.AccountID)
	assert.Equal(t, "Quantum computing", job.Topic, "topic should be trimmed")
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.NotEqual(t, uuid.Nil, job.ID)
}

func TestCreate_InvalidTopic(t *testing.T) {
	r := jobs.NewRegistry(&fakeStore{})

	_, err := r.Create(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, jobs.ErrEmptyTopic)
}

func TestGet_NotFound(t *testing.T) {
	st := &fakeStore{
		getJobFn: func(_ context.Context, _ uuid.UUID) (*models.Job, error) {
			return nil, store.ErrNotFound
		},
	}
	r := jobs.NewRegistry(st)

	_, err := r.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestGetForAccount(t *testing.T) {
	owner := uuid.New()
	job := &models.Job{ID: uuid.New(), AccountID: owner, Status: models.JobStatusCompleted}
	st := &fakeStore{
		getJobFn: func(_ context.Context, id uuid.UUID) (*models.Job, error) {
			if id == job.ID {
				return job, nil
			}
			return nil, store.ErrNotFound
		},
	}
	r := jobs.NewRegistry(st)

	t.Run("owner sees the job", func(t *testing.T) {
		got, err := r.GetForAccount(context.Background(), job.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, job, got)
	})

	t.Run("other account is forbidden", func(t *testing.T) {
		_, err := r.GetForAccount(context.Background(), job.ID, uuid.New())
		assert.ErrorIs(t, err, jobs.ErrForbidden)
	})

	t.Run("missing job is not found", func(t *testing.T) {
		_, err := r.GetForAccount(context.Background(), uuid.New(), owner)
		assert.ErrorIs(t, err, jobs.ErrNotFound)
	})
}

func TestFail_EmptyMessageGetsPlaceholder(t *testing.T) {
	var gotMessage string
	st := &fakeStore{
		failJobFn: func(_ context.Context, _ uuid.UUID, message string) error {
			gotMessage = message
			return nil
		},
	}
	r := jobs.NewRegistry(st)

	require.NoError(t, r.Fail(context.Background(), uuid.New(), ""))
	assert.Equal(t, "unknown error", gotMessage)
}

func TestFail_PropagatesStoreError(t *testing.T) {
	st := &fakeStore{
		failJobFn: func(_ context.Context, _ uuid.UUID, _ string) error {
			return errors.New("db down")
		},
	}
	r := jobs.NewRegistry(st)

	err := r.Fail(context.Background(), uuid.New(), "pipeline exploded")
	assert.EqualError(t, err, "db down")
}
