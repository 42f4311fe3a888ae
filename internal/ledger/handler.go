// internal/ledger/handler.go
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shelfmark/internal/accounts"
)

// StatsCache lets the stats endpoint serve a recent snapshot without hitting
// the store on every dashboard refresh. A nil cache disables caching.
type StatsCache interface {
	Get(ctx context.Context) (Stats, bool, error)
	Set(ctx context.Context, stats Stats) error
}

type Handler struct {
	service Service
	stats   StatsCache
}

func NewHandler(service Service, stats StatsCache) *Handler {
	return &Handler{service: service, stats: stats}
}

// HandleBorrow lends the document named in the body to the authenticated
// user.
func (h *Handler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	claims, ok := accounts.ClaimsFromContext(r.Context())
	if !ok {
		h.respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "authentication required"})
		return
	}

	documentID, ok := h.documentIDFromBody(w, r)
	if !ok {
		return
	}

	dueAt, err := h.service.Borrow(r.Context(), documentID, claims.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusCreated, map[string]any{"success": true, "due_at": dueAt})
}

// HandleReturn closes the authenticated user's loan on the document named in
// the body.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	claims, ok := accounts.ClaimsFromContext(r.Context())
	if !ok {
		h.respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "authentication required"})
		return
	}

	documentID, ok := h.documentIDFromBody(w, r)
	if !ok {
		return
	}

	if err := h.service.Return(r.Context(), documentID, claims.UserID); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, map[string]any{"success": true})
}

// HandleToggle is the admin availability override.
func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid document ID"})
		return
	}

	availability, err := h.service.Toggle(r.Context(), documentID)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, map[string]any{"success": true, "availability": availability})
}

// HandleStats serves the dashboard aggregates, preferring a cached snapshot.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats != nil {
		if cached, ok, err := h.stats.Get(r.Context()); err == nil && ok {
			h.respond(w, http.StatusOK, map[string]any{"success": true, "stats": cached, "cached": true})
			return
		}
	}

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	if h.stats != nil {
		if err := h.stats.Set(r.Context(), stats); err != nil {
			// Cache failures never fail the request.
			log.Printf("stats cache set failed: %v", err)
		}
	}

	h.respond(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// HandleOverdue lists active loans past due. An `as_of` query parameter
// (RFC 3339) overrides the default of now.
func (h *Handler) HandleOverdue(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid as_of timestamp"})
			return
		}
		asOf = parsed
	}

	loans, err := h.service.OverdueLoans(r.Context(), asOf)
	if err != nil {
		h.fail(w, err)
		return
	}
	if loans == nil {
		loans = []*Loan{}
	}

	h.respond(w, http.StatusOK, map[string]any{"success": true, "loans": loans})
}

// HandleReconcile runs the consistency cross-check and reports what it found.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	discrepancies, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if discrepancies == nil {
		discrepancies = []Discrepancy{}
	}

	h.respond(w, http.StatusOK, map[string]any{
		"success":       true,
		"consistent":    len(discrepancies) == 0,
		"discrepancies": discrepancies,
	})
}

func (h *Handler) documentIDFromBody(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req struct {
		DocumentID uuid.UUID `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return uuid.Nil, false
	}
	if req.DocumentID == uuid.Nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": "document_id is required"})
		return uuid.Nil, false
	}
	return req.DocumentID, true
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var limitErr *BorrowLimitExceededError
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.As(err, &limitErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrDocumentUnavailable), errors.Is(err, ErrNoActiveLoan):
		status = http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	h.respond(w, status, map[string]any{"success": false, "error": err.Error()})
}
