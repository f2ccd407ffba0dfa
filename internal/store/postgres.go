package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Accounts ---

// CreateAccount inserts the account together with one zeroed usage window per
// kind in windows, in a single transaction.
func (s *PostgresStore) CreateAccount(ctx context.Context, account *models.Account, windows []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create account: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, email, key_hash, key_prefix, tier, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.Email, account.KeyHash, account.KeyPrefix, account.Tier,
		account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}

	for _, kind := range windows {
		_, err = tx.Exec(ctx,
			`INSERT INTO usage_windows (account_id, kind, window_start, count)
			 VALUES ($1, $2, $3, 0)`,
			account.ID, kind, account.CreatedAt)
		if err != nil {
			return fmt.Errorf("seed usage window %s: %w", kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, key_hash, key_prefix, tier, last_used_at, created_at, updated_at
		 FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Email, &a.KeyHash, &a.KeyPrefix, &a.Tier, &a.LastUsedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) GetAccountsByKeyPrefix(ctx context.Context, prefix string) ([]*models.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, key_hash, key_prefix, tier, last_used_at, created_at, updated_at
		 FROM accounts WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get accounts by key prefix: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Email, &a.KeyHash, &a.KeyPrefix, &a.Tier,
			&a.LastUsedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) UpdateAccountLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE accounts SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update account last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, key_hash, key_prefix, tier, last_used_at, created_at, updated_at
		 FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Email, &a.KeyHash, &a.KeyPrefix, &a.Tier,
			&a.LastUsedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

// --- Usage windows ---

// ReserveUsage locks the account's window rows, resets any whose period has
// elapsed, and increments all of them only if every one has headroom.
// The row lock is the single critical section that keeps concurrent
// reservations from overshooting a limit.
func (s *PostgresStore) ReserveUsage(ctx context.Context, accountID uuid.UUID, limits []WindowLimit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reserve usage: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT kind, window_start, count FROM usage_windows
		 WHERE account_id = $1 ORDER BY kind FOR UPDATE`, accountID)
	if err != nil {
		return fmt.Errorf("lock usage windows: %w", err)
	}

	type windowState struct {
		start time.Time
		count int
	}
	current := make(map[string]windowState)
	for rows.Next() {
		var kind string
		var st windowState
		if err := rows.Scan(&kind, &st.start, &st.count); err != nil {
			rows.Close()
			return fmt.Errorf("scan usage window: %w", err)
		}
		current[kind] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read usage windows: %w", err)
	}

	now := time.Now().UTC()
	for _, wl := range limits {
		st, ok := current[wl.Kind]
		if !ok {
			return fmt.Errorf("usage window %q missing for account %s: %w", wl.Kind, accountID, ErrNotFound)
		}
		if now.Sub(st.start) >= models.WindowLength(wl.Kind) {
			st = windowState{start: now, count: 0}
			current[wl.Kind] = st
		}
		if st.count >= wl.Limit {
			return &QuotaExceededError{Window: wl.Kind, Limit: wl.Limit}
		}
	}

	// Every window has headroom; commit the increments together.
	for _, wl := range limits {
		st := current[wl.Kind]
		_, err = tx.Exec(ctx,
			`UPDATE usage_windows SET window_start = $3, count = $4
			 WHERE account_id = $1 AND kind = $2`,
			accountID, wl.Kind, st.start, st.count+1)
		if err != nil {
			return fmt.Errorf("increment usage window %s: %w", wl.Kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reserve usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUsage(ctx context.Context, accountID uuid.UUID) ([]*models.UsageWindow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, kind, window_start, count FROM usage_windows
		 WHERE account_id = $1 ORDER BY kind`, accountID)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	defer rows.Close()

	var windows []*models.UsageWindow
	for rows.Next() {
		var w models.UsageWindow
		if err := rows.Scan(&w.AccountID, &w.Kind, &w.WindowStart, &w.Count); err != nil {
			return nil, fmt.Errorf("scan usage window: %w", err)
		}
		windows = append(windows, &w)
	}
	return windows, rows.Err()
}

// --- Jobs ---

const jobColumns = `id, account_id, topic, status, attempt_count, error_message,
	report_path, blog_path, tokens_used, estimated_cost, execution_secs,
	started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.AccountID, &j.Topic, &j.Status, &j.AttemptCount, &j.ErrorMessage,
		&j.ReportPath, &j.BlogPath, &j.TokensUsed, &j.EstimatedCost, &j.ExecutionSecs,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, account_id, topic, status, attempt_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.AccountID, job.Topic, job.Status, job.AttemptCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ClaimNextJob atomically claims the oldest queued job, FIFO by created_at
// with ties broken by id. SKIP LOCKED keeps concurrent workers from blocking
// on each other and guarantees single-consumer dispatch per job.
func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $1, started_at = NOW(), updated_at = NOW()
		 WHERE id = (
		   SELECT id FROM jobs WHERE status = $2
		   ORDER BY created_at, id
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 RETURNING `+jobColumns,
		models.JobStatusProcessing, models.JobStatusQueued))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) RecordJobAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET attempt_count = attempt_count + 1, updated_at = NOW()
		 WHERE id = $1 RETURNING attempt_count`, id,
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record job attempt: %w", err)
	}
	return attempts, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, artifacts models.Artifacts, executionSecs int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, report_path = $3, blog_path = $4, tokens_used = $5,
		        estimated_cost = $6, execution_secs = $7, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $8`,
		id, models.JobStatusCompleted, artifacts.ReportPath, artifacts.BlogPath,
		artifacts.TokensUsed, artifacts.EstimatedCost, executionSecs, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, models.JobStatusFailed, message, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// transitionError distinguishes a missing job from an illegal transition
// after a guarded UPDATE touched zero rows.
func (s *PostgresStore) transitionError(ctx context.Context, id uuid.UUID) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: job is %s", ErrInvalidTransition, status)
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// GetCostSummary totals the estimated spend recorded on completed jobs.
func (s *PostgresStore) GetCostSummary(ctx context.Context) (*CostSummary, error) {
	var summary CostSummary
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(estimated_cost), 0)
		FROM jobs
		WHERE status = $1`, models.JobStatusCompleted).
		Scan(&summary.CompletedJobs, &summary.TotalCost)
	if err != nil {
		return nil, fmt.Errorf("cost summary: %w", err)
	}
	return &summary, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
