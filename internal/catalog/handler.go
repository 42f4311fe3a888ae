// internal/catalog/handler.go
package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListDocuments(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if docs == nil {
		docs = []*Document{}
	}
	h.respond(w, http.StatusOK, map[string]any{"success": true, "documents": docs})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid document ID"})
		return
	}

	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"success": true, "document": doc})
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		Author string `json:"author"`
		ISBN   string `json:"isbn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	doc, err := h.service.AddDocument(r.Context(), req.Title, req.Author, req.ISBN)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, map[string]any{"success": true, "document": doc})
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid document ID"})
		return
	}

	if err := h.service.RemoveDocument(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrDocumentBorrowed):
		status = http.StatusConflict
	case errors.Is(err, ErrMissingTitle):
		status = http.StatusUnprocessableEntity
	}
	h.respond(w, status, map[string]any{"success": false, "error": err.Error()})
}
