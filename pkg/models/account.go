// Package models contains shared data models used across the Draftsmith codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Account represents an authenticated principal. Raw API keys are shown once
// at signup; only the bcrypt hash is stored.
type Account struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	Email      string     `db:"email"        json:"email"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Tier       string     `db:"tier"         json:"tier"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}

const (
	WindowHourly  = "hourly"
	WindowMonthly = "monthly"
)

// UsageWindow is one rate-limit bucket for an account. The count resets when
// the current time crosses WindowStart plus the window's length.
type UsageWindow struct {
	AccountID   uuid.UUID `db:"account_id"   json:"-"`
	Kind        string    `db:"kind"         json:"kind"`
	WindowStart time.Time `db:"window_start" json:"window_start"`
	Count       int       `db:"count"        json:"count"`
}

// WindowLength returns the duration of a window kind.
func WindowLength(kind string) time.Duration {
	if kind == WindowHourly {
		return time.Hour
	}
	return 30 * 24 * time.Hour
}
