// internal/ledger/handler_test.go
package ledger_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmark/internal/accounts"
	"shelfmark/internal/ledger"
)

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	claims := accounts.Claims{UserID: userID, Role: accounts.RoleMember}
	return req.WithContext(accounts.ContextWithClaims(req.Context(), claims))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleBorrow(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, 3)
	doc := f.seedDocument(t, "Dubliners")
	h := ledger.NewHandler(f.svc, nil)

	body := fmt.Sprintf(`{"document_id":%q}`, doc.ID)
	rec := httptest.NewRecorder()
	h.HandleBorrow(rec, authedRequest(http.MethodPost, "/api/loans/borrow", body, user.ID))

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["due_at"])
}

func TestHandleBorrowWithoutClaims(t *testing.T) {
	f := newFixture(t)
	h := ledger.NewHandler(f.svc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/loans/borrow", strings.NewReader(`{}`))
	h.HandleBorrow(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleBorrowStatusMapping(t *testing.T) {
	f := newFixture(t)
	limited := f.seedUser(t, 0)
	user := f.seedUser(t, 3)
	doc := f.seedDocument(t, "Ulysses")
	h := ledger.NewHandler(f.svc, nil)

	_, err := f.svc.Borrow(context.Background(), doc.ID, user.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   string
		userID uuid.UUID
		want   int
	}{
		{"unknown document", fmt.Sprintf(`{"document_id":%q}`, uuid.New()), user.ID, http.StatusNotFound},
		{"unknown user", fmt.Sprintf(`{"document_id":%q}`, doc.ID), uuid.New(), http.StatusNotFound},
		{"already borrowed", fmt.Sprintf(`{"document_id":%q}`, doc.ID), f.seedUser(t, 3).ID, http.StatusConflict},
		{"over limit", fmt.Sprintf(`{"document_id":%q}`, f.seedDocument(t, "Exiles").ID), limited.ID, http.StatusUnprocessableEntity},
		{"missing document_id", `{}`, user.ID, http.StatusBadRequest},
		{"malformed body", `{`, user.ID, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleBorrow(rec, authedRequest(http.MethodPost, "/api/loans/borrow", tc.body, tc.userID))
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, false, decodeBody(t, rec)["success"])
		})
	}
}

func TestHandleReturn(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, 3)
	doc := f.seedDocument(t, "Finnegans Wake")
	h := ledger.NewHandler(f.svc, nil)

	_, err := f.svc.Borrow(context.Background(), doc.ID, user.ID)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"document_id":%q}`, doc.ID)
	rec := httptest.NewRecorder()
	h.HandleReturn(rec, authedRequest(http.MethodPost, "/api/loans/return", body, user.ID))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Second return of the same document conflicts.
	rec = httptest.NewRecorder()
	h.HandleReturn(rec, authedRequest(http.MethodPost, "/api/loans/return", body, user.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleToggle(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t, "Chamber Music")
	h := ledger.NewHandler(f.svc, nil)

	router := chi.NewRouter()
	router.Post("/admin/documents/{id}/toggle", h.HandleToggle)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/admin/documents/%s/toggle", doc.ID), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "borrowed", decodeBody(t, rec)["availability"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/documents/not-a-uuid/toggle", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/admin/documents/%s/toggle", uuid.New()), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubStatsCache struct {
	stats  ledger.Stats
	hit    bool
	sets   int
	setErr error
}

func (c *stubStatsCache) Get(context.Context) (ledger.Stats, bool, error) {
	return c.stats, c.hit, nil
}

func (c *stubStatsCache) Set(_ context.Context, stats ledger.Stats) error {
	c.sets++
	c.stats = stats
	return c.setErr
}

func TestHandleStats(t *testing.T) {
	f := newFixture(t)
	f.seedDocument(t, "A Portrait")
	h := ledger.NewHandler(f.svc, nil)

	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeBody(t, rec)["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["total_documents"])
	assert.Equal(t, float64(1), stats["available"])
}

func TestHandleStatsCache(t *testing.T) {
	f := newFixture(t)
	f.seedDocument(t, "Stephen Hero")
	cache := &stubStatsCache{}
	h := ledger.NewHandler(f.svc, cache)

	// Miss populates the cache.
	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, int64(1), cache.stats.TotalDocuments)

	// Hit serves the snapshot and marks it cached.
	cache.hit = true
	rec = httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["cached"])
	assert.Equal(t, 1, cache.sets)
}

func TestHandleStatsCacheSetFailureIgnored(t *testing.T) {
	f := newFixture(t)
	cache := &stubStatsCache{setErr: fmt.Errorf("redis down")}
	h := ledger.NewHandler(f.svc, cache)

	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleOverdue(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	loan := &ledger.Loan{
		ID:         uuid.New(),
		DocumentID: uuid.New(),
		UserID:     uuid.New(),
		BorrowedAt: now.AddDate(0, 0, -40),
		DueAt:      now.AddDate(0, 0, -10),
		Status:     ledger.LoanActive,
	}
	require.NoError(t, f.store.Loans().Insert(context.Background(), loan))
	h := ledger.NewHandler(f.svc, nil)

	rec := httptest.NewRecorder()
	h.HandleOverdue(rec, httptest.NewRequest(http.MethodGet, "/admin/loans/overdue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["loans"], 1)

	// Before the due date nothing is overdue.
	asOf := now.AddDate(0, 0, -20).Format(time.RFC3339)
	rec = httptest.NewRecorder()
	h.HandleOverdue(rec, httptest.NewRequest(http.MethodGet, "/admin/loans/overdue?as_of="+asOf, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["loans"], 0)

	rec = httptest.NewRecorder()
	h.HandleOverdue(rec, httptest.NewRequest(http.MethodGet, "/admin/loans/overdue?as_of=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReconcile(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t, "Giacomo Joyce")
	h := ledger.NewHandler(f.svc, nil)

	rec := httptest.NewRecorder()
	h.HandleReconcile(rec, httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["consistent"])

	_, err := f.svc.Toggle(context.Background(), doc.ID)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h.HandleReconcile(rec, httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, false, resp["consistent"])
	assert.Len(t, resp["discrepancies"], 1)
}
