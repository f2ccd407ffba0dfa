package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("draftsmith_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

var bothWindows = []string{models.WindowHourly, models.WindowMonthly}

// createTestAccount inserts a free-tier account with both usage windows seeded.
func createTestAccount(t *testing.T, s store.Store, email string) *models.Account {
	t.Helper()
	now := time.Now().UTC()
	account := &models.Account{
		ID:        uuid.New(),
		Email:     email,
		KeyHash:   "$2a$10$fakehashfakehashfakehashfak",
		KeyPrefix: "ds_" + email[:5],
		Tier:      models.TierFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAccount(context.Background(), account, bothWindows))
	return account
}

// createTestJob inserts a queued job for the account.
func createTestJob(t *testing.T, s store.Store, accountID uuid.UUID, topic string, createdAt time.Time) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:        uuid.New(),
		AccountID: accountID,
		Topic:     topic,
		Status:    models.JobStatusQueued,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

// --- Account Tests ---

func TestCreateAccount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")

	got, err := s.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Email, got.Email)
	assert.Equal(t, account.KeyPrefix, got.KeyPrefix)
	assert.Equal(t, models.TierFree, got.Tier)
	assert.Nil(t, got.LastUsedAt)

	windows, err := s.GetUsage(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, windows, 2, "both usage windows should be seeded")
	for _, w := range windows {
		assert.Zero(t, w.Count)
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	createTestAccount(t, s, "alice@example.com")

	now := time.Now().UTC()
	dup := &models.Account{
		ID:        uuid.New(),
		Email:     "alice@example.com",
		KeyHash:   "otherhash",
		KeyPrefix: "ds_other",
		Tier:      models.TierFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.CreateAccount(ctx, dup, bothWindows)
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	// The failed insert must not leave orphaned windows behind.
	windows, err := s.GetUsage(ctx, dup.ID)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestGetAccountByID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetAccountByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetAccountsByKeyPrefix(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")

	got, err := s.GetAccountsByKeyPrefix(ctx, account.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, account.ID, got[0].ID)

	none, err := s.GetAccountsByKeyPrefix(ctx, "ds_nope0")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateAccountLastUsed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	require.NoError(t, s.UpdateAccountLastUsed(ctx, account.ID))

	got, err := s.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.WithinDuration(t, time.Now().UTC(), *got.LastUsedAt, time.Minute)
}

// --- Usage Window Tests ---

func freeLimits() []store.WindowLimit {
	return []store.WindowLimit{
		{Kind: models.WindowHourly, Limit: 2},
		{Kind: models.WindowMonthly, Limit: 10},
	}
}

func windowCount(t *testing.T, s store.Store, accountID uuid.UUID, kind string) int {
	t.Helper()
	windows, err := s.GetUsage(context.Background(), accountID)
	require.NoError(t, err)
	for _, w := range windows {
		if w.Kind == kind {
			return w.Count
		}
	}
	t.Fatalf("window %s not found", kind)
	return 0
}

func TestReserveUsage_IncrementsAllWindows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")

	require.NoError(t, s.ReserveUsage(ctx, account.ID, freeLimits()))
	require.NoError(t, s.ReserveUsage(ctx, account.ID, freeLimits()))

	assert.Equal(t, 2, windowCount(t, s, account.ID, models.WindowHourly))
	assert.Equal(t, 2, windowCount(t, s, account.ID, models.WindowMonthly))
}

func TestReserveUsage_ExhaustedWindowRejectsWithoutMutation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")

	require.NoError(t, s.ReserveUsage(ctx, account.ID, freeLimits()))
	require.NoError(t, s.ReserveUsage(ctx, account.ID, freeLimits()))

	err := s.ReserveUsage(ctx, account.ID, freeLimits())
	var quotaErr *store.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, models.WindowHourly, quotaErr.Window)
	assert.Equal(t, 2, quotaErr.Limit)

	// The monthly counter must not move on a rejected reservation.
	assert.Equal(t, 2, windowCount(t, s, account.ID, models.WindowMonthly))
}

func TestReserveUsage_ElapsedWindowResets(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")

	// Exhaust the hourly window, then age it past its period.
	require.NoError(t, s.ReserveUsage(ctx, account.ID, freeLimits()))
	require.NoError(t, s.ReserveUsage(ctx, account.ID, freeLimits()))
	_, err := pool.Exec(ctx,
		`UPDATE usage_windows SET window_start = NOW() - INTERVAL '2 hours'
		 WHERE account_id = $1 AND kind = $2`, account.ID, models.WindowHourly)
	require.NoError(t, err)

	require.NoError(t, s.ReserveUsage(ctx, account.ID, freeLimits()))

	assert.Equal(t, 1, windowCount(t, s, account.ID, models.WindowHourly), "reset window counts from 1")
	assert.Equal(t, 3, windowCount(t, s, account.ID, models.WindowMonthly), "monthly window keeps accumulating")
}

func TestReserveUsage_ConcurrentNeverOvershoots(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")

	limits := []store.WindowLimit{
		{Kind: models.WindowHourly, Limit: 5},
		{Kind: models.WindowMonthly, Limit: 5},
	}

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.ReserveUsage(ctx, account.ID, limits)
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for err := range results {
		if err == nil {
			accepted++
			continue
		}
		var quotaErr *store.QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
	}

	assert.Equal(t, 5, accepted, "exactly the limit should be admitted")
	assert.Equal(t, 5, windowCount(t, s, account.ID, models.WindowHourly))
}

// --- Job Tests ---

func TestCreateAndGetJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	job := createTestJob(t, s, account.ID, "AI in healthcare", time.Now().UTC())

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, account.ID, got.AccountID)
	assert.Equal(t, "AI in healthcare", got.Topic)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Zero(t, got.AttemptCount)
	assert.Nil(t, got.StartedAt)
}

func TestGetJob_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClaimNextJob_FIFO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	base := time.Now().UTC().Add(-time.Minute)
	first := createTestJob(t, s, account.ID, "first", base)
	second := createTestJob(t, s, account.ID, "second", base.Add(time.Second))
	third := createTestJob(t, s, account.ID, "third", base.Add(2*time.Second))

	for i, want := range []*models.Job{first, second, third} {
		claimed, err := s.ClaimNextJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed, "claim %d", i+1)
		assert.Equal(t, want.ID, claimed.ID, "claims must follow insertion order")
		assert.Equal(t, models.JobStatusProcessing, claimed.Status)
		assert.NotNil(t, claimed.StartedAt)
	}

	empty, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty, "an empty queue yields no job and no error")
}

func TestClaimNextJob_SingleConsumer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	base := time.Now().UTC().Add(-time.Minute)
	const jobCount = 10
	for i := 0; i < jobCount; i++ {
		createTestJob(t, s, account.ID, fmt.Sprintf("topic %d", i), base.Add(time.Duration(i)*time.Second))
	}

	var wg sync.WaitGroup
	claims := make(chan uuid.UUID, jobCount*2)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := s.ClaimNextJob(ctx)
				if !assert.NoError(t, err) || job == nil {
					return
				}
				claims <- job.ID
			}
		}()
	}
	wg.Wait()
	close(claims)

	seen := make(map[uuid.UUID]bool)
	for id := range claims {
		assert.False(t, seen[id], "job %s claimed twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, jobCount)
}

func TestRecordJobAttempt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	job := createTestJob(t, s, account.ID, "topic", time.Now().UTC())

	for want := 1; want <= 3; want++ {
		got, err := s.RecordJobAttempt(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := s.RecordJobAttempt(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	createTestJob(t, s, account.ID, "topic", time.Now().UTC())
	job, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	artifacts := models.Artifacts{
		ReportPath:    "output/strategic_report_topic.md",
		BlogPath:      "output/blog_post_topic.md",
		TokensUsed:    15000,
		EstimatedCost: 0.675,
	}
	require.NoError(t, s.CompleteJob(ctx, job.ID, artifacts, 42))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.ReportPath)
	assert.Equal(t, artifacts.ReportPath, *got.ReportPath)
	require.NotNil(t, got.TokensUsed)
	assert.Equal(t, 15000, *got.TokensUsed)
	require.NotNil(t, got.ExecutionSecs)
	assert.Equal(t, 42, *got.ExecutionSecs)
	assert.NotNil(t, got.CompletedAt)
}

func TestFailJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	createTestJob(t, s, account.ID, "topic", time.Now().UTC())
	job, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, s.FailJob(ctx, job.ID, "retries exhausted after 3 attempts"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "retries exhausted")
}

func TestJobTransitionGuards(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	queued := createTestJob(t, s, account.ID, "still queued", time.Now().UTC())

	t.Run("completing a queued job is illegal", func(t *testing.T) {
		err := s.CompleteJob(ctx, queued.ID, models.Artifacts{}, 0)
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("failing a queued job is illegal", func(t *testing.T) {
		err := s.FailJob(ctx, queued.ID, "nope")
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})

	t.Run("missing job is not found", func(t *testing.T) {
		assert.ErrorIs(t, s.CompleteJob(ctx, uuid.New(), models.Artifacts{}, 0), store.ErrNotFound)
		assert.ErrorIs(t, s.FailJob(ctx, uuid.New(), "nope"), store.ErrNotFound)
	})

	t.Run("terminal jobs stay terminal", func(t *testing.T) {
		job, err := s.ClaimNextJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		require.NoError(t, s.CompleteJob(ctx, job.ID, models.Artifacts{}, 1))

		assert.ErrorIs(t, s.FailJob(ctx, job.ID, "too late"), store.ErrInvalidTransition)
		assert.ErrorIs(t, s.CompleteJob(ctx, job.ID, models.Artifacts{}, 2), store.ErrInvalidTransition)
	})
}

// --- Admin Tests ---

func TestCountJobsByStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	account := createTestAccount(t, s, "alice@example.com")
	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		createTestJob(t, s, account.ID, fmt.Sprintf("topic %d", i), base.Add(time.Duration(i)*time.Second))
	}
	job, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NoError(t, s.CompleteJob(ctx, job.ID, models.Artifacts{}, 1))

	counts, err := s.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.JobStatusQueued])
	assert.Equal(t, 1, counts[models.JobStatusCompleted])
}

func TestCountAccounts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	n, err := s.CountAccounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	createTestAccount(t, s, "alice@example.com")
	createTestAccount(t, s, "bob@example.com")

	n, err = s.CountAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestGetCostSummary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	summary, err := s.GetCostSummary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.CompletedJobs)
	assert.Zero(t, summary.TotalCost)

	account := createTestAccount(t, s, "alice@example.com")
	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		createTestJob(t, s, account.ID, fmt.Sprintf("topic %d", i), base.Add(time.Duration(i)*time.Second))
	}

	// Complete two with known costs; the third stays queued and must not count.
	for _, cost := range []float64{0.5, 0.25} {
		job, err := s.ClaimNextJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		require.NoError(t, s.CompleteJob(ctx, job.ID, models.Artifacts{EstimatedCost: cost}, 1))
	}

	summary, err = s.GetCostSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CompletedJobs)
	assert.InDelta(t, 0.75, summary.TotalCost, 1e-9)
}
