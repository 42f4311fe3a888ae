// Package memory is an in-process store backend used by tests and dev mode.
// One RWMutex covers all three collections, which incidentally gives Tally
// its consistent snapshot.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shelfmark/internal/accounts"
	"shelfmark/internal/catalog"
	"shelfmark/internal/ledger"
	"shelfmark/internal/store"
)

type Store struct {
	mu sync.RWMutex

	documents   map[uuid.UUID]*catalog.Document
	users       map[uuid.UUID]*accounts.User
	credentials map[uuid.UUID]*accounts.Credential
	emails      map[string]uuid.UUID
	loans       map[uuid.UUID]*ledger.Loan
}

func New() *Store {
	return &Store{
		documents:   make(map[uuid.UUID]*catalog.Document),
		users:       make(map[uuid.UUID]*accounts.User),
		credentials: make(map[uuid.UUID]*accounts.Credential),
		emails:      make(map[string]uuid.UUID),
		loans:       make(map[uuid.UUID]*ledger.Loan),
	}
}

// Documents returns the document store port.
func (s *Store) Documents() catalog.DocumentStore { return (*documentStore)(s) }

// Users returns the user store port.
func (s *Store) Users() accounts.UserStore { return (*userStore)(s) }

// Loans returns the loan store port.
func (s *Store) Loans() ledger.LoanStore { return (*loanStore)(s) }

// ---- documents ----

type documentStore Store

func (s *documentStore) Insert(_ context.Context, doc *catalog.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return store.ErrDuplicate
	}
	copied := *doc
	s.documents[doc.ID] = &copied
	return nil
}

func (s *documentStore) FindByID(_ context.Context, id uuid.UUID) (*catalog.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *documentStore) List(_ context.Context, query string) ([]*catalog.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(query)
	var out []*catalog.Document
	for _, doc := range s.documents {
		if query != "" &&
			!strings.Contains(strings.ToLower(doc.Title), query) &&
			!strings.Contains(strings.ToLower(doc.Author), query) {
			continue
		}
		copied := *doc
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *documentStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.documents, id)
	return nil
}

func (s *documentStore) MarkBorrowed(_ context.Context, id, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok || doc.Availability != catalog.Available {
		return store.ErrNoMatch
	}
	doc.Availability = catalog.Borrowed
	doc.BorrowedBy = &userID
	doc.BorrowedAt = &at
	doc.BorrowCount++
	doc.UpdatedAt = at
	return nil
}

func (s *documentStore) MarkReturned(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Availability = catalog.Available
	doc.BorrowedBy = nil
	doc.BorrowedAt = nil
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *documentStore) SetAvailability(_ context.Context, id uuid.UUID, av catalog.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Availability = av
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *documentStore) Tally(_ context.Context) (catalog.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tally catalog.Tally
	for _, doc := range s.documents {
		tally.Total++
		if doc.Availability == catalog.Borrowed {
			tally.Borrowed++
		} else {
			tally.Available++
		}
		tally.BorrowTotal += doc.BorrowCount
	}
	return tally, nil
}

// ---- users ----

type userStore Store

func (s *userStore) Insert(_ context.Context, user *accounts.User, cred *accounts.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[user.Email]; taken {
		return store.ErrDuplicate
	}
	copiedUser := *user
	copiedCred := *cred
	s.users[user.ID] = &copiedUser
	s.credentials[user.ID] = &copiedCred
	s.emails[user.Email] = user.ID
	return nil
}

func (s *userStore) FindByID(_ context.Context, id uuid.UUID) (*accounts.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*accounts.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func (s *userStore) Credential(_ context.Context, userID uuid.UUID) (*accounts.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *userStore) List(_ context.Context) ([]*accounts.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*accounts.User, 0, len(s.users))
	for _, user := range s.users {
		copied := *user
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *userStore) IncrementActiveLoans(_ context.Context, id uuid.UUID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if user.ActiveBorrowCount+delta < 0 {
		return store.ErrNoMatch
	}
	user.ActiveBorrowCount += delta
	return nil
}

// ---- loans ----

type loanStore Store

func (s *loanStore) Insert(_ context.Context, loan *ledger.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.loans[loan.ID]; exists {
		return store.ErrDuplicate
	}
	copied := *loan
	s.loans[loan.ID] = &copied
	return nil
}

func (s *loanStore) FindActive(_ context.Context, documentID, userID uuid.UUID) (*ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loan := range s.loans {
		if loan.DocumentID == documentID && loan.UserID == userID && loan.Status == ledger.LoanActive {
			copied := *loan
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *loanStore) MarkReturned(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[id]
	if !ok || loan.Status != ledger.LoanActive {
		return store.ErrNoMatch
	}
	loan.Status = ledger.LoanReturned
	loan.ReturnedAt = &at
	return nil
}

func (s *loanStore) FindOverdue(_ context.Context, asOf time.Time) ([]*ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Loan
	for _, loan := range s.loans {
		if loan.Overdue(asOf) {
			copied := *loan
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (s *loanStore) ActiveCountByDocument(_ context.Context) (map[uuid.UUID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[uuid.UUID]int)
	for _, loan := range s.loans {
		if loan.Status == ledger.LoanActive {
			counts[loan.DocumentID]++
		}
	}
	return counts, nil
}

func (s *loanStore) ActiveCountByUser(_ context.Context) (map[uuid.UUID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[uuid.UUID]int)
	for _, loan := range s.loans {
		if loan.Status == ledger.LoanActive {
			counts[loan.UserID]++
		}
	}
	return counts, nil
}
