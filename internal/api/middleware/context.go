package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

type contextKey string

const accountKey contextKey = "account"

// SetAccount stores the authenticated account in the context.
// Exported for handler tests.
func SetAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// GetAccount retrieves the authenticated account from the request context.
func GetAccount(r *http.Request) (*models.Account, bool) {
	account, ok := r.Context().Value(accountKey).(*models.Account)
	return account, ok
}
