package mongo

import (
	"time"

	"github.com/google/uuid"

	"shelfmark/internal/accounts"
	"shelfmark/internal/catalog"
	"shelfmark/internal/ledger"
)

// Persistence models keep bson concerns out of the domain types. IDs are
// stored as canonical uuid strings.

type documentModel struct {
	ID           string     `bson:"_id"`
	Title        string     `bson:"title"`
	Author       string     `bson:"author"`
	ISBN         string     `bson:"isbn,omitempty"`
	Availability string     `bson:"availability"`
	BorrowedBy   *string    `bson:"borrowed_by,omitempty"`
	BorrowedAt   *time.Time `bson:"borrowed_at,omitempty"`
	BorrowCount  int64      `bson:"borrow_count"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toDocumentModel(doc *catalog.Document) *documentModel {
	m := &documentModel{
		ID:           doc.ID.String(),
		Title:        doc.Title,
		Author:       doc.Author,
		ISBN:         doc.ISBN,
		Availability: string(doc.Availability),
		BorrowedAt:   doc.BorrowedAt,
		BorrowCount:  doc.BorrowCount,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if doc.BorrowedBy != nil {
		s := doc.BorrowedBy.String()
		m.BorrowedBy = &s
	}
	return m
}

func fromDocumentModel(m *documentModel) (*catalog.Document, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	doc := &catalog.Document{
		ID:           id,
		Title:        m.Title,
		Author:       m.Author,
		ISBN:         m.ISBN,
		Availability: catalog.Availability(m.Availability),
		BorrowedAt:   m.BorrowedAt,
		BorrowCount:  m.BorrowCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.BorrowedBy != nil {
		by, err := uuid.Parse(*m.BorrowedBy)
		if err != nil {
			return nil, err
		}
		doc.BorrowedBy = &by
	}
	return doc, nil
}

type userModel struct {
	ID                string    `bson:"_id"`
	Email             string    `bson:"email"`
	Name              string    `bson:"name"`
	Role              string    `bson:"role"`
	BorrowLimit       int       `bson:"borrow_limit"`
	ActiveBorrowCount int       `bson:"active_borrow_count"`
	CreatedAt         time.Time `bson:"created_at"`
}

func toUserModel(user *accounts.User) *userModel {
	return &userModel{
		ID:                user.ID.String(),
		Email:             user.Email,
		Name:              user.Name,
		Role:              user.Role,
		BorrowLimit:       user.BorrowLimit,
		ActiveBorrowCount: user.ActiveBorrowCount,
		CreatedAt:         user.CreatedAt,
	}
}

func fromUserModel(m *userModel) (*accounts.User, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	return &accounts.User{
		ID:                id,
		Email:             m.Email,
		Name:              m.Name,
		Role:              m.Role,
		BorrowLimit:       m.BorrowLimit,
		ActiveBorrowCount: m.ActiveBorrowCount,
		CreatedAt:         m.CreatedAt,
	}, nil
}

type credentialModel struct {
	UserID       string `bson:"_id"`
	PasswordHash string `bson:"password_hash"`
	Salt         string `bson:"salt"`
}

type loanModel struct {
	ID         string     `bson:"_id"`
	DocumentID string     `bson:"document_id"`
	UserID     string     `bson:"user_id"`
	BorrowedAt time.Time  `bson:"borrowed_at"`
	DueAt      time.Time  `bson:"due_at"`
	ReturnedAt *time.Time `bson:"returned_at,omitempty"`
	Status     string     `bson:"status"`
}

func toLoanModel(loan *ledger.Loan) *loanModel {
	return &loanModel{
		ID:         loan.ID.String(),
		DocumentID: loan.DocumentID.String(),
		UserID:     loan.UserID.String(),
		BorrowedAt: loan.BorrowedAt,
		DueAt:      loan.DueAt,
		ReturnedAt: loan.ReturnedAt,
		Status:     string(loan.Status),
	}
}

func fromLoanModel(m *loanModel) (*ledger.Loan, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	documentID, err := uuid.Parse(m.DocumentID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(m.UserID)
	if err != nil {
		return nil, err
	}
	return &ledger.Loan{
		ID:         id,
		DocumentID: documentID,
		UserID:     userID,
		BorrowedAt: m.BorrowedAt,
		DueAt:      m.DueAt,
		ReturnedAt: m.ReturnedAt,
		Status:     ledger.LoanStatus(m.Status),
	}, nil
}
