package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/draftsmith/internal/api/response"
	"github.com/kiranshivaraju/draftsmith/internal/store"
	"github.com/kiranshivaraju/draftsmith/pkg/models"
)

// AdminStore is the read-only store surface behind the admin endpoints.
type AdminStore interface {
	CountAccounts(ctx context.Context) (int, error)
	CountJobsByStatus(ctx context.Context) (map[string]int, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	GetCostSummary(ctx context.Context) (*store.CostSummary, error)
}

// NewAdminStatsHandler returns the handler for GET /admin/stats.
func NewAdminStatsHandler(st AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := st.CountAccounts(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stats", nil)
			return
		}
		jobCounts, err := st.CountJobsByStatus(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stats", nil)
			return
		}

		total := 0
		for _, n := range jobCounts {
			total += n
		}
		successRate := "0%"
		if total > 0 {
			successRate = fmt.Sprintf("%.1f%%", float64(jobCounts[models.JobStatusCompleted])/float64(total)*100)
		}

		response.JSON(w, map[string]any{
			"total_accounts": accounts,
			"total_jobs":     total,
			"jobs_by_status": jobCounts,
			"success_rate":   successRate,
		})
	}
}

// NewAdminAccountsHandler returns the handler for GET /admin/accounts.
func NewAdminAccountsHandler(st AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := st.ListAccounts(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list accounts", nil)
			return
		}

		out := make([]map[string]any, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, map[string]any{
				"account_id":        a.ID,
				"email":             a.Email,
				"subscription_tier": a.Tier,
				"created_at":        a.CreatedAt,
				"last_used_at":      a.LastUsedAt,
			})
		}
		response.JSON(w, out)
	}
}

// NewAdminCostsHandler returns the handler for GET /admin/costs. Figures
// cover completed jobs only; the monthly estimate treats the current total
// as a daily rate.
func NewAdminCostsHandler(st AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := st.GetCostSummary(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load costs", nil)
			return
		}

		avg := 0.0
		if summary.CompletedJobs > 0 {
			avg = summary.TotalCost / float64(summary.CompletedJobs)
		}

		response.JSON(w, map[string]any{
			"total_jobs":        summary.CompletedJobs,
			"total_cost":        fmt.Sprintf("$%.2f", summary.TotalCost),
			"avg_cost_per_job":  fmt.Sprintf("$%.4f", avg),
			"estimated_monthly": fmt.Sprintf("$%.2f", summary.TotalCost*30),
		})
	}
}
