package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/draftsmith/internal/api/middleware"
	"github.com/kiranshivaraju/draftsmith/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// AdminKey guards /admin; admin routes are not mounted when empty.
	AdminKey string

	HealthHandler        http.HandlerFunc
	SignupHandler        http.HandlerFunc
	GenerateHandler      http.HandlerFunc
	StatusHandler        http.HandlerFunc
	UsageHandler         http.HandlerFunc
	AdminStatsHandler    http.HandlerFunc
	AdminAccountsHandler http.HandlerFunc
	AdminCostsHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Post("/signup", orNotImplemented(deps.SignupHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/generate", orNotImplemented(deps.GenerateHandler))
		r.Get("/status/{jobID}", orNotImplemented(deps.StatusHandler))
		r.Get("/usage", orNotImplemented(deps.UsageHandler))
	})

	// Admin routes
	if deps.AdminKey != "" {
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdmin(deps.AdminKey))

			r.Get("/admin/stats", orNotImplemented(deps.AdminStatsHandler))
			r.Get("/admin/accounts", orNotImplemented(deps.AdminAccountsHandler))
			r.Get("/admin/costs", orNotImplemented(deps.AdminCostsHandler))
		})
	}

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
