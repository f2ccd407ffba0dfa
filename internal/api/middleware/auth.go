package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/draftsmith/internal/account"
	"github.com/kiranshivaraju/draftsmith/internal/api/response"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader carries the bearer key on every authenticated request.
const APIKeyHeader = "X-API-Key"

// Auth resolves the X-API-Key header to an account.
type Auth struct {
	store store.Store
}

// NewAuth creates the authentication middleware.
func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Authenticate validates the API key and sets the owning account in the
// request context. Candidate accounts are fetched by key prefix and the full
// key is only ever checked through bcrypt, so comparison cost does not depend
// on how much of the key matches.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing "+APIKeyHeader+" header", nil)
			return
		}

		if len(rawKey) < account.KeyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		prefix := rawKey[:account.KeyPrefixLen]

		candidates, err := a.store.GetAccountsByKeyPrefix(r.Context(), prefix)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		for _, acct := range candidates {
			if bcrypt.CompareHashAndPassword([]byte(acct.KeyHash), []byte(rawKey)) == nil {
				r = r.WithContext(SetAccount(r.Context(), acct))

				// Update last_used_at async
				go a.store.UpdateAccountLastUsed(context.Background(), acct.ID)

				next.ServeHTTP(w, r)
				return
			}
		}

		response.Error(w, http.StatusUnauthorized,
			"INVALID_TOKEN", "Invalid API key", nil)
	})
}
