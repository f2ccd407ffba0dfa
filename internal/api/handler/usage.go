package handler

import (
	"net/http"

	mw "github.com/kiranshivaraju/draftsmith/internal/api/middleware"
	"github.com/kiranshivaraju/draftsmith/internal/api/response"
)

// NewUsageHandler returns the handler for GET /usage.
func NewUsageHandler(usage UsageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, ok := mw.GetAccount(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		u, err := usage.GetUsage(r.Context(), acct)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read usage", nil)
			return
		}

		body := map[string]any{
			"email":             u.Email,
			"subscription_tier": u.Tier,
			"windows":           u.Windows,
		}
		// Monthly totals duplicated at the top level for older clients.
		if monthly, ok := u.MonthlyWindow(); ok {
			body["usage_count"] = monthly.Count
			body["monthly_limit"] = monthly.Limit
			body["remaining"] = monthly.Remaining
		}

		response.JSON(w, body)
	}
}
