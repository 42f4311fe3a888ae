// internal/server/router.go
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shelfmark/internal/accounts"
	"shelfmark/internal/catalog"
	"shelfmark/internal/ledger"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Accounts *accounts.Handler
	Catalog  *catalog.Handler
	Ledger   *ledger.Handler
	Auth     *accounts.Middleware
}

// NewRouter registers all HTTP routes and the middleware stack. Admin routes
// sit behind both token authentication and the admin-role check.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true}`))
	})

	r.Post("/accounts/register", h.Accounts.HandleRegister)
	r.Post("/accounts/login", h.Accounts.HandleLogin)

	r.Get("/documents", h.Catalog.HandleList)
	r.Get("/documents/{id}", h.Catalog.HandleGet)

	r.Group(func(r chi.Router) {
		r.Use(h.Auth.Authenticate)
		r.Post("/loans/borrow", h.Ledger.HandleBorrow)
		r.Post("/loans/return", h.Ledger.HandleReturn)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAdmin)
			r.Post("/documents", h.Catalog.HandleAdd)
			r.Delete("/documents/{id}", h.Catalog.HandleRemove)
			r.Post("/admin/documents/{id}/toggle", h.Ledger.HandleToggle)
			r.Get("/admin/stats", h.Ledger.HandleStats)
			r.Get("/admin/loans/overdue", h.Ledger.HandleOverdue)
			r.Get("/admin/reconcile", h.Ledger.HandleReconcile)
		})
	})

	return r
}
