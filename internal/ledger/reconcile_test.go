// internal/ledger/reconcile_test.go
package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmark/internal/ledger"
)

func TestReconcileCleanAfterNormalTraffic(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, 3)
	kept := f.seedDocument(t, "Kept Out")
	cycled := f.seedDocument(t, "Cycled")

	_, err := f.svc.Borrow(context.Background(), kept.ID, user.ID)
	require.NoError(t, err)
	_, err = f.svc.Borrow(context.Background(), cycled.ID, user.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Return(context.Background(), cycled.ID, user.ID))

	discrepancies, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestReconcileFlagsToggledBorrowedDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t, "Forced Out")

	_, err := f.svc.Toggle(context.Background(), doc.ID)
	require.NoError(t, err)

	discrepancies, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.Equal(t, ledger.DiscrepancyBorrowedNoLoan, discrepancies[0].Kind)
	require.NotNil(t, discrepancies[0].DocumentID)
	assert.Equal(t, doc.ID, *discrepancies[0].DocumentID)
}

func TestReconcileFlagsToggledLoanedDocument(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, 3)
	doc := f.seedDocument(t, "Forced Back")

	_, err := f.svc.Borrow(context.Background(), doc.ID, user.ID)
	require.NoError(t, err)
	// Admin flips the flag while the loan is still open.
	_, err = f.svc.Toggle(context.Background(), doc.ID)
	require.NoError(t, err)

	discrepancies, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.Equal(t, ledger.DiscrepancyAvailableLoaned, discrepancies[0].Kind)
}

func TestReconcileFlagsCounterDrift(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, 5)
	doc := f.seedDocument(t, "Counted")

	_, err := f.svc.Borrow(context.Background(), doc.ID, user.ID)
	require.NoError(t, err)

	// Simulate a crashed return that decremented the counter but never
	// closed the loan.
	require.NoError(t, f.store.Users().IncrementActiveLoans(context.Background(), user.ID, -1))

	discrepancies, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.Equal(t, ledger.DiscrepancyUserCounter, discrepancies[0].Kind)
	require.NotNil(t, discrepancies[0].UserID)
	assert.Equal(t, user.ID, *discrepancies[0].UserID)
}

func TestReconcileEmptyStore(t *testing.T) {
	f := newFixture(t)
	discrepancies, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}
