// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shelfmark/internal/store"
)

var (
	ErrDocumentNotFound = errors.New("catalog: document not found")
	ErrDocumentBorrowed = errors.New("catalog: document is currently borrowed")
	ErrMissingTitle     = errors.New("catalog: title is required")
)

// service implements the Service interface.
type service struct {
	documents DocumentStore
}

// NewService creates a new catalog service instance.
func NewService(documents DocumentStore) Service {
	return &service{documents: documents}
}

// AddDocument creates a new document in the catalog.
func (s *service) AddDocument(ctx context.Context, title, author, isbn string) (*Document, error) {
	if title == "" {
		return nil, ErrMissingTitle
	}

	now := time.Now().UTC()
	doc := &Document{
		ID:           uuid.New(),
		Title:        title,
		Author:       author,
		ISBN:         isbn,
		Availability: Available,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.documents.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	return doc, nil
}

// GetDocument retrieves a document by its ID.
func (s *service) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the catalog, optionally filtered by a search query.
func (s *service) ListDocuments(ctx context.Context, query string) ([]*Document, error) {
	docs, err := s.documents.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// RemoveDocument deletes a document. Borrowed documents are refused: deleting
// one would orphan its active loan.
func (s *service) RemoveDocument(ctx context.Context, id uuid.UUID) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.Availability == Borrowed {
		return ErrDocumentBorrowed
	}

	if err := s.documents.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
