// internal/catalog/implementation_test.go
package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmark/internal/catalog"
	"shelfmark/internal/store/memory"
)

func newCatalog(t *testing.T) (catalog.Service, catalog.DocumentStore) {
	t.Helper()
	st := memory.New()
	return catalog.NewService(st.Documents()), st.Documents()
}

func TestAddDocument(t *testing.T) {
	svc, _ := newCatalog(t)

	doc, err := svc.AddDocument(context.Background(), "Moby-Dick", "Herman Melville", "978-0142437247")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, doc.ID)
	assert.Equal(t, catalog.Available, doc.Availability)
	assert.Nil(t, doc.BorrowedBy)
	assert.Equal(t, int64(0), doc.BorrowCount)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestAddDocumentRequiresTitle(t *testing.T) {
	svc, _ := newCatalog(t)

	_, err := svc.AddDocument(context.Background(), "", "Anonymous", "")
	assert.ErrorIs(t, err, catalog.ErrMissingTitle)
}

func TestGetDocument(t *testing.T) {
	svc, _ := newCatalog(t)

	added, err := svc.AddDocument(context.Background(), "Billy Budd", "Herman Melville", "")
	require.NoError(t, err)

	doc, err := svc.GetDocument(context.Background(), added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Billy Budd", doc.Title)

	_, err = svc.GetDocument(context.Background(), uuid.New())
	assert.ErrorIs(t, err, catalog.ErrDocumentNotFound)
}

func TestListDocumentsSearch(t *testing.T) {
	svc, _ := newCatalog(t)

	ctx := context.Background()
	_, err := svc.AddDocument(ctx, "Moby-Dick", "Herman Melville", "")
	require.NoError(t, err)
	_, err = svc.AddDocument(ctx, "Typee", "Herman Melville", "")
	require.NoError(t, err)
	_, err = svc.AddDocument(ctx, "Walden", "Henry David Thoreau", "")
	require.NoError(t, err)

	all, err := svc.ListDocuments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Title match, case insensitive.
	byTitle, err := svc.ListDocuments(ctx, "moby")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, "Moby-Dick", byTitle[0].Title)

	// Author match.
	byAuthor, err := svc.ListDocuments(ctx, "melville")
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	none, err := svc.ListDocuments(ctx, "austen")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRemoveDocument(t *testing.T) {
	svc, _ := newCatalog(t)

	added, err := svc.AddDocument(context.Background(), "The Confidence-Man", "Herman Melville", "")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveDocument(context.Background(), added.ID))

	_, err = svc.GetDocument(context.Background(), added.ID)
	assert.ErrorIs(t, err, catalog.ErrDocumentNotFound)

	err = svc.RemoveDocument(context.Background(), added.ID)
	assert.ErrorIs(t, err, catalog.ErrDocumentNotFound)
}

func TestRemoveBorrowedDocumentRefused(t *testing.T) {
	svc, docs := newCatalog(t)

	added, err := svc.AddDocument(context.Background(), "Pierre", "Herman Melville", "")
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, docs.MarkBorrowed(context.Background(), added.ID, userID, time.Now().UTC()))

	err = svc.RemoveDocument(context.Background(), added.ID)
	assert.ErrorIs(t, err, catalog.ErrDocumentBorrowed)

	// Still in the catalog.
	_, err = svc.GetDocument(context.Background(), added.ID)
	assert.NoError(t, err)
}

func TestAvailabilityToggled(t *testing.T) {
	assert.Equal(t, catalog.Borrowed, catalog.Available.Toggled())
	assert.Equal(t, catalog.Available, catalog.Borrowed.Toggled())
}
