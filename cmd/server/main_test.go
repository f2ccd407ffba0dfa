package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/draftsmith/internal/cache"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) CreateAccount(_ context.Context, _ *models.Account, _ []string) error {
	return nil
}
func (s *testStore) GetAccountByID(_ context.Context, _ uuid.UUID) (*models.Account, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetAccountsByKeyPrefix(_ context.Context, _ string) ([]*models.Account, error) {
	return nil, nil
}
func (s *testStore) UpdateAccountLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) ListAccounts(_ context.Context) ([]*models.Account, error)  { return nil, nil }
func (s *testStore) ReserveUsage(_ context.Context, _ uuid.UUID, _ []store.WindowLimit) error {
	return nil
}
func (s *testStore) GetUsage(_ context.Context, _ uuid.UUID) ([]*models.UsageWindow, error) {
	return nil, nil
}
func (s *testStore) CreateJob(_ context.Context, _ *models.Job) error { return nil }
func (s *testStore) GetJob(_ context.Context, _ uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ClaimNextJob(_ context.Context) (*models.Job, error) { return nil, nil }
func (s *testStore) RecordJobAttempt(_ context.Context, _ uuid.UUID) (int, error) {
	return 0, store.ErrNotFound
}
func (s *testStore) CompleteJob(_ context.Context, _ uuid.UUID, _ models.Artifacts, _ int) error {
	return nil
}
func (s *testStore) FailJob(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (s *testStore) CountJobsByStatus(_ context.Context) (map[string]int, error) {
	return nil, nil
}
func (s *testStore) CountAccounts(_ context.Context) (int, error) { return 0, nil }
func (s *testStore) GetCostSummary(_ context.Context) (*store.CostSummary, error) {
	return &store.CostSummary{}, nil
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *testCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *testCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *testCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}
func (c *testCache) SetNXString(_ context.Context, _, _ string, _ time.Duration) (bool, error) {
	return true, nil
}
func (c *testCache) GetString(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_BothDegraded(t *testing.T) {
	h := healthHandler(
		&testStore{pingErr: errors.New("db down")},
		&testCache{pingErr: errors.New("redis down")},
	)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	// Clear all env vars that config.Load() requires
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "PIPELINE_PROVIDER", "CREW_BASE_URL",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PIPELINE_PROVIDER", "mock")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
