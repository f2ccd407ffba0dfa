// Package handler contains the HTTP handlers for the public API surface.
// Handlers depend on narrow interfaces so tests can inject fakes.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/draftsmith/internal/account"
	"github.com/kiranshivaraju/draftsmith/internal/api/response"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

// SignupService is the slice of the account service the signup handler needs.
type SignupService interface {
	Signup(ctx context.Context, email string) (*models.Account, string, error)
}

// NewSignupHandler returns the handler for POST /signup. monthlyLimit is the
// free tier's monthly quota, echoed in the response so new users know their
// ceiling.
func NewSignupHandler(svc SignupService, monthlyLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		acct, rawKey, err := svc.Signup(r.Context(), req.Email)
		switch {
		case errors.Is(err, account.ErrInvalidEmail):
			response.Error(w, http.StatusBadRequest, "INVALID_EMAIL", "A valid email address is required", nil)
			return
		case errors.Is(err, account.ErrEmailExists):
			response.Error(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		case err != nil:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", nil)
			return
		}

		response.Created(w, map[string]any{
			"account_id":        acct.ID,
			"email":             acct.Email,
			"api_key":           rawKey,
			"subscription_tier": acct.Tier,
			"monthly_limit":     monthlyLimit,
		})
	}
}
