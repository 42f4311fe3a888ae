// Package postgres is the SQL backend. It keeps the same conditional-write
// semantics as the document backend by putting the guards in WHERE clauses
// and checking RowsAffected.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shelfmark/internal/accounts"
	"shelfmark/internal/catalog"
	"shelfmark/internal/ledger"
	"shelfmark/internal/store"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			isbn TEXT NOT NULL DEFAULT '',
			availability TEXT NOT NULL DEFAULT 'available',
			borrowed_by UUID,
			borrowed_at TIMESTAMPTZ,
			borrow_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'member',
			borrow_limit INT NOT NULL,
			active_borrow_count INT NOT NULL DEFAULT 0 CHECK (active_borrow_count >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			password_hash TEXT NOT NULL,
			salt TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS loans (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL,
			user_id UUID NOT NULL,
			borrowed_at TIMESTAMPTZ NOT NULL,
			due_at TIMESTAMPTZ NOT NULL,
			returned_at TIMESTAMPTZ,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS loans_active_idx ON loans (document_id, user_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS loans_due_idx ON loans (due_at) WHERE status = 'active'`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Documents() catalog.DocumentStore { return &documentStore{db: s.db} }
func (s *Store) Users() accounts.UserStore        { return &userStore{db: s.db} }
func (s *Store) Loans() ledger.LoanStore          { return &loanStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// ---- documents ----

type documentStore struct {
	db *sql.DB
}

func (s *documentStore) Insert(ctx context.Context, doc *catalog.Document) error {
	query := `
		INSERT INTO documents (id, title, author, isbn, availability, borrow_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.Author, doc.ISBN, doc.Availability, doc.BorrowCount, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("postgres: insert document: %w", err)
	}
	return nil
}

func (s *documentStore) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Document, error) {
	query := `
		SELECT id, title, author, isbn, availability, borrowed_by, borrowed_at, borrow_count, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find document: %w", err)
	}
	return doc, nil
}

func (s *documentStore) List(ctx context.Context, query string) ([]*catalog.Document, error) {
	dbQuery := `
		SELECT id, title, author, isbn, availability, borrowed_by, borrowed_at, borrow_count, created_at, updated_at
		FROM documents
		WHERE $1 = '' OR title ILIKE '%' || $1 || '%' OR author ILIKE '%' || $1 || '%'
		ORDER BY title
	`
	rows, err := s.db.QueryContext(ctx, dbQuery, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate documents: %w", err)
	}
	return out, nil
}

func (s *documentStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete document: %w", err)
	}
	return noneAffected(res, store.ErrNotFound)
}

func (s *documentStore) MarkBorrowed(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE documents
		SET availability = $1, borrowed_by = $2, borrowed_at = $3, borrow_count = borrow_count + 1, updated_at = $3
		WHERE id = $4 AND availability = $5
	`
	res, err := s.db.ExecContext(ctx, query, catalog.Borrowed, userID, at, id, catalog.Available)
	if err != nil {
		return fmt.Errorf("postgres: mark document borrowed: %w", err)
	}
	return noneAffected(res, store.ErrNoMatch)
}

func (s *documentStore) MarkReturned(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE documents
		SET availability = $1, borrowed_by = NULL, borrowed_at = NULL, updated_at = NOW()
		WHERE id = $2
	`
	res, err := s.db.ExecContext(ctx, query, catalog.Available, id)
	if err != nil {
		return fmt.Errorf("postgres: mark document returned: %w", err)
	}
	return noneAffected(res, store.ErrNotFound)
}

func (s *documentStore) SetAvailability(ctx context.Context, id uuid.UUID, av catalog.Availability) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET availability = $1, updated_at = NOW() WHERE id = $2`, av, id)
	if err != nil {
		return fmt.Errorf("postgres: set availability: %w", err)
	}
	return noneAffected(res, store.ErrNotFound)
}

func (s *documentStore) Tally(ctx context.Context) (catalog.Tally, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE availability = $1),
		       COUNT(*) FILTER (WHERE availability = $2),
		       COALESCE(SUM(borrow_count), 0)
		FROM documents
	`
	var tally catalog.Tally
	err := s.db.QueryRowContext(ctx, query, catalog.Available, catalog.Borrowed).
		Scan(&tally.Total, &tally.Available, &tally.Borrowed, &tally.BorrowTotal)
	if err != nil {
		return catalog.Tally{}, fmt.Errorf("postgres: tally documents: %w", err)
	}
	return tally, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*catalog.Document, error) {
	doc := &catalog.Document{}
	var borrowedBy sql.Null[uuid.UUID]
	var borrowedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.Title, &doc.Author, &doc.ISBN, &doc.Availability,
		&borrowedBy, &borrowedAt, &doc.BorrowCount, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if borrowedBy.Valid {
		doc.BorrowedBy = &borrowedBy.V
	}
	if borrowedAt.Valid {
		t := borrowedAt.Time
		doc.BorrowedAt = &t
	}
	return doc, nil
}

func noneAffected(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return sentinel
	}
	return nil
}

// ---- users ----

type userStore struct {
	db *sql.DB
}

func (s *userStore) Insert(ctx context.Context, user *accounts.User, cred *accounts.Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback()

	userQuery := `
		INSERT INTO users (id, email, name, role, borrow_limit, active_borrow_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.ExecContext(ctx, userQuery,
		user.ID, user.Email, user.Name, user.Role, user.BorrowLimit, user.ActiveBorrowCount, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("postgres: insert user: %w", err)
	}

	credQuery := `INSERT INTO credentials (user_id, password_hash, salt) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, credQuery, cred.UserID, cred.PasswordHash, cred.Salt); err != nil {
		return fmt.Errorf("postgres: insert credential: %w", err)
	}

	return tx.Commit()
}

func (s *userStore) FindByID(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	return s.findOne(ctx, `WHERE id = $1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return s.findOne(ctx, `WHERE email = $1`, email)
}

func (s *userStore) findOne(ctx context.Context, where string, arg any) (*accounts.User, error) {
	query := `
		SELECT id, email, name, role, borrow_limit, active_borrow_count, created_at
		FROM users ` + where
	user := &accounts.User{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.Role,
		&user.BorrowLimit, &user.ActiveBorrowCount, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find user: %w", err)
	}
	return user, nil
}

func (s *userStore) Credential(ctx context.Context, userID uuid.UUID) (*accounts.Credential, error) {
	cred := &accounts.Credential{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, password_hash, salt FROM credentials WHERE user_id = $1`, userID).
		Scan(&cred.UserID, &cred.PasswordHash, &cred.Salt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find credential: %w", err)
	}
	return cred, nil
}

func (s *userStore) List(ctx context.Context) ([]*accounts.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, role, borrow_limit, active_borrow_count, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	var out []*accounts.User
	for rows.Next() {
		user := &accounts.User{}
		err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.Role,
			&user.BorrowLimit, &user.ActiveBorrowCount, &user.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate users: %w", err)
	}
	return out, nil
}

func (s *userStore) IncrementActiveLoans(ctx context.Context, id uuid.UUID, delta int) error {
	query := `
		UPDATE users
		SET active_borrow_count = active_borrow_count + $1
		WHERE id = $2 AND active_borrow_count + $1 >= 0
	`
	res, err := s.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("postgres: increment active loans: %w", err)
	}
	if delta < 0 {
		return noneAffected(res, store.ErrNoMatch)
	}
	return noneAffected(res, store.ErrNotFound)
}

// ---- loans ----

type loanStore struct {
	db *sql.DB
}

func (s *loanStore) Insert(ctx context.Context, loan *ledger.Loan) error {
	query := `
		INSERT INTO loans (id, document_id, user_id, borrowed_at, due_at, returned_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		loan.ID, loan.DocumentID, loan.UserID, loan.BorrowedAt, loan.DueAt, loan.ReturnedAt, loan.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("postgres: insert loan: %w", err)
	}
	return nil
}

func (s *loanStore) FindActive(ctx context.Context, documentID, userID uuid.UUID) (*ledger.Loan, error) {
	query := `
		SELECT id, document_id, user_id, borrowed_at, due_at, returned_at, status
		FROM loans
		WHERE document_id = $1 AND user_id = $2 AND status = $3
	`
	loan, err := scanLoan(s.db.QueryRowContext(ctx, query, documentID, userID, ledger.LoanActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find active loan: %w", err)
	}
	return loan, nil
}

func (s *loanStore) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE loans
		SET status = $1, returned_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := s.db.ExecContext(ctx, query, ledger.LoanReturned, at, id, ledger.LoanActive)
	if err != nil {
		return fmt.Errorf("postgres: mark loan returned: %w", err)
	}
	return noneAffected(res, store.ErrNoMatch)
}

func (s *loanStore) FindOverdue(ctx context.Context, asOf time.Time) ([]*ledger.Loan, error) {
	query := `
		SELECT id, document_id, user_id, borrowed_at, due_at, returned_at, status
		FROM loans
		WHERE status = $1 AND due_at < $2
		ORDER BY due_at
	`
	rows, err := s.db.QueryContext(ctx, query, ledger.LoanActive, asOf)
	if err != nil {
		return nil, fmt.Errorf("postgres: find overdue loans: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan loan: %w", err)
		}
		out = append(out, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate loans: %w", err)
	}
	return out, nil
}

func (s *loanStore) ActiveCountByDocument(ctx context.Context) (map[uuid.UUID]int, error) {
	return s.activeCounts(ctx, "document_id")
}

func (s *loanStore) ActiveCountByUser(ctx context.Context) (map[uuid.UUID]int, error) {
	return s.activeCounts(ctx, "user_id")
}

func (s *loanStore) activeCounts(ctx context.Context, column string) (map[uuid.UUID]int, error) {
	// column is one of two fixed identifiers, never user input.
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM loans WHERE status = $1 GROUP BY %s`, column, column)
	rows, err := s.db.QueryContext(ctx, query, ledger.LoanActive)
	if err != nil {
		return nil, fmt.Errorf("postgres: count active loans: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate counts: %w", err)
	}
	return counts, nil
}

func scanLoan(row rowScanner) (*ledger.Loan, error) {
	loan := &ledger.Loan{}
	var returnedAt sql.NullTime
	err := row.Scan(&loan.ID, &loan.DocumentID, &loan.UserID,
		&loan.BorrowedAt, &loan.DueAt, &returnedAt, &loan.Status)
	if err != nil {
		return nil, err
	}
	if returnedAt.Valid {
		t := returnedAt.Time
		loan.ReturnedAt = &t
	}
	return loan, nil
}
