// Package account owns account records, API-key issuance, and usage-window
// accounting. It is the only component allowed to mutate usage counters.
package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/draftsmith/internal/config"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of a raw key are stored in
// clear for indexed lookup. The rest is only ever compared via bcrypt.
const KeyPrefixLen = 8

const keyEntropyBytes = 32

var (
	ErrEmailExists  = errors.New("email already registered")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrUnknownTier  = errors.New("unknown subscription tier")
)

// Service implements account creation, authentication support, and quota
// reservation over the store.
type Service struct {
	store  store.Store
	quotas config.QuotaConfig
}

// NewService creates an account Service. quotas is loaded once at startup and
// treated as immutable.
func NewService(st store.Store, quotas config.QuotaConfig) *Service {
	return &Service{store: st, quotas: quotas}
}

// Signup creates a free-tier account and returns it together with the raw API
// key. The raw key is shown exactly once; only its bcrypt hash is persisted.
func (s *Service) Signup(ctx context.Context, email string) (*models.Account, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", ErrInvalidEmail
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("generating api key: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing api key: %w", err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:        uuid.New(),
		Email:     email,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:KeyPrefixLen],
		Tier:      models.TierFree,
		CreatedAt: now,
		UpdatedAt: now,
	}

	windows := []string{models.WindowHourly, models.WindowMonthly}
	if err := s.store.CreateAccount(ctx, account, windows); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, "", ErrEmailExists
		}
		return nil, "", fmt.Errorf("creating account: %w", err)
	}

	return account, rawKey, nil
}

// TryReserve consumes one unit of quota across every window configured for
// the account's tier, or none at all. Returns *store.QuotaExceededError when
// a window has no headroom.
func (s *Service) TryReserve(ctx context.Context, account *models.Account) error {
	limits, err := s.windowLimits(account.Tier)
	if err != nil {
		return err
	}
	return s.store.ReserveUsage(ctx, account.ID, limits)
}

// WindowUsage is one window of a usage snapshot.
type WindowUsage struct {
	Kind      string    `json:"kind"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Usage is a consistent read of an account's consumption across all windows.
type Usage struct {
	Email   string        `json:"email"`
	Tier    string        `json:"subscription_tier"`
	Windows []WindowUsage `json:"windows"`
}

// MonthlyWindow returns the monthly window of the snapshot, if present.
func (u *Usage) MonthlyWindow() (WindowUsage, bool) {
	for _, w := range u.Windows {
		if w.Kind == models.WindowMonthly {
			return w, true
		}
	}
	return WindowUsage{}, false
}

// GetUsage returns a snapshot consistent with the latest committed
// reservation. Windows whose period has elapsed are reported as fresh even
// though the stored row resets lazily on the next reservation.
func (s *Service) GetUsage(ctx context.Context, account *models.Account) (*Usage, error) {
	limits, err := s.windowLimits(account.Tier)
	if err != nil {
		return nil, err
	}

	windows, err := s.store.GetUsage(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("reading usage: %w", err)
	}

	byKind := make(map[string]*models.UsageWindow, len(windows))
	for _, w := range windows {
		byKind[w.Kind] = w
	}

	now := time.Now().UTC()
	usage := &Usage{Email: account.Email, Tier: account.Tier}
	for _, wl := range limits {
		wu := WindowUsage{Kind: wl.Kind, Limit: wl.Limit}
		if w, ok := byKind[wl.Kind]; ok {
			length := models.WindowLength(wl.Kind)
			if now.Sub(w.WindowStart) >= length {
				wu.Count = 0
				wu.ResetsAt = now.Add(length)
			} else {
				wu.Count = w.Count
				wu.ResetsAt = w.WindowStart.Add(length)
			}
		}
		wu.Remaining = wl.Limit - wu.Count
		if wu.Remaining < 0 {
			wu.Remaining = 0
		}
		usage.Windows = append(usage.Windows, wu)
	}
	return usage, nil
}

func (s *Service) windowLimits(tier string) ([]store.WindowLimit, error) {
	q, ok := s.quotas.Tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	// Fixed kind order so concurrent reservations lock rows consistently.
	return []store.WindowLimit{
		{Kind: models.WindowHourly, Limit: q.HourlyLimit},
		{Kind: models.WindowMonthly, Limit: q.MonthlyLimit},
	}, nil
}

// generateAPIKey returns a bearer token of the form ds_<43 urlsafe chars>.
func generateAPIKey() (string, error) {
	buf := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ds_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
