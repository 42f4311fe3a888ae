// Package mongo is the document-database backend. Conditional writes lean on
// single-document atomicity: MarkBorrowed is one UpdateOne whose filter
// includes the availability guard, so two concurrent borrows of the same
// document can never both match.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"shelfmark/internal/accounts"
	"shelfmark/internal/catalog"
	"shelfmark/internal/ledger"
	"shelfmark/internal/store"
)

const (
	colDocuments   = "documents"
	colUsers       = "users"
	colCredentials = "credentials"
	colLoans       = "loans"
)

type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// EnsureIndexes creates the indexes the conditional writes and reconciliation
// queries depend on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(colUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users email index: %w", err)
	}

	_, err = s.db.Collection(colLoans).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("loans indexes: %w", err)
	}
	return nil
}

func (s *Store) Documents() catalog.DocumentStore { return &documentStore{col: s.db.Collection(colDocuments)} }

func (s *Store) Users() accounts.UserStore {
	return &userStore{users: s.db.Collection(colUsers), credentials: s.db.Collection(colCredentials)}
}

func (s *Store) Loans() ledger.LoanStore { return &loanStore{col: s.db.Collection(colLoans)} }

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// ---- documents ----

type documentStore struct {
	col *mongo.Collection
}

func (s *documentStore) Insert(ctx context.Context, doc *catalog.Document) error {
	if _, err := s.col.InsertOne(ctx, toDocumentModel(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("mongo: insert document: %w", err)
	}
	return nil
}

func (s *documentStore) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Document, error) {
	var m documentModel
	if err := s.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find document: %w", err)
	}
	return fromDocumentModel(&m)
}

func (s *documentStore) List(ctx context.Context, query string) ([]*catalog.Document, error) {
	filter := bson.M{}
	if query != "" {
		pattern := regexp.QuoteMeta(query)
		filter["$or"] = bson.A{
			bson.M{"title": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"author": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}

	cursor, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "title", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list documents: %w", err)
	}

	var models []documentModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: decode documents: %w", err)
	}

	out := make([]*catalog.Document, 0, len(models))
	for i := range models {
		doc, err := fromDocumentModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("mongo: decode document %s: %w", models[i].ID, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *documentStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("mongo: delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *documentStore) MarkBorrowed(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id.String(), "availability": string(catalog.Available)},
		bson.M{
			"$set": bson.M{
				"availability": string(catalog.Borrowed),
				"borrowed_by":  userID.String(),
				"borrowed_at":  at,
				"updated_at":   at,
			},
			"$inc": bson.M{"borrow_count": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("mongo: mark document borrowed: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNoMatch
	}
	return nil
}

func (s *documentStore) MarkReturned(ctx context.Context, id uuid.UUID) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{
			"$set":   bson.M{"availability": string(catalog.Available), "updated_at": time.Now().UTC()},
			"$unset": bson.M{"borrowed_by": "", "borrowed_at": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("mongo: mark document returned: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *documentStore) SetAvailability(ctx context.Context, id uuid.UUID, av catalog.Availability) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"availability": string(av), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mongo: set availability: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *documentStore) Tally(ctx context.Context) (catalog.Tally, error) {
	// One pipeline, one server-side pass over the collection.
	cursor, err := s.col.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "borrowed", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$availability", string(catalog.Borrowed)}}}, 1, 0,
				}},
			}}}},
			{Key: "borrow_total", Value: bson.D{{Key: "$sum", Value: "$borrow_count"}}},
		}}},
	})
	if err != nil {
		return catalog.Tally{}, fmt.Errorf("mongo: tally documents: %w", err)
	}

	var rows []struct {
		Total       int64 `bson:"total"`
		Borrowed    int64 `bson:"borrowed"`
		BorrowTotal int64 `bson:"borrow_total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return catalog.Tally{}, fmt.Errorf("mongo: decode tally: %w", err)
	}
	if len(rows) == 0 {
		return catalog.Tally{}, nil
	}

	return catalog.Tally{
		Total:       rows[0].Total,
		Available:   rows[0].Total - rows[0].Borrowed,
		Borrowed:    rows[0].Borrowed,
		BorrowTotal: rows[0].BorrowTotal,
	}, nil
}

// ---- users ----

type userStore struct {
	users       *mongo.Collection
	credentials *mongo.Collection
}

func (s *userStore) Insert(ctx context.Context, user *accounts.User, cred *accounts.Credential) error {
	if _, err := s.users.InsertOne(ctx, toUserModel(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("mongo: insert user: %w", err)
	}

	credModel := &credentialModel{
		UserID:       cred.UserID.String(),
		PasswordHash: cred.PasswordHash,
		Salt:         cred.Salt,
	}
	if _, err := s.credentials.InsertOne(ctx, credModel); err != nil {
		// Best-effort rollback so the email is not burned by a half insert.
		_, _ = s.users.DeleteOne(ctx, bson.M{"_id": user.ID.String()})
		return fmt.Errorf("mongo: insert credential: %w", err)
	}
	return nil
}

func (s *userStore) FindByID(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	var m userModel
	if err := s.users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find user: %w", err)
	}
	return fromUserModel(&m)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*accounts.User, error) {
	var m userModel
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find user by email: %w", err)
	}
	return fromUserModel(&m)
}

func (s *userStore) Credential(ctx context.Context, userID uuid.UUID) (*accounts.Credential, error) {
	var m credentialModel
	if err := s.credentials.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find credential: %w", err)
	}
	id, err := uuid.Parse(m.UserID)
	if err != nil {
		return nil, err
	}
	return &accounts.Credential{UserID: id, PasswordHash: m.PasswordHash, Salt: m.Salt}, nil
}

func (s *userStore) List(ctx context.Context) ([]*accounts.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list users: %w", err)
	}

	var models []userModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: decode users: %w", err)
	}

	out := make([]*accounts.User, 0, len(models))
	for i := range models {
		user, err := fromUserModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("mongo: decode user %s: %w", models[i].ID, err)
		}
		out = append(out, user)
	}
	return out, nil
}

func (s *userStore) IncrementActiveLoans(ctx context.Context, id uuid.UUID, delta int) error {
	filter := bson.M{"_id": id.String()}
	if delta < 0 {
		// Guard keeps the counter non-negative without a read-modify-write.
		filter["active_borrow_count"] = bson.M{"$gte": -delta}
	}

	res, err := s.users.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"active_borrow_count": delta}})
	if err != nil {
		return fmt.Errorf("mongo: increment active loans: %w", err)
	}
	if res.MatchedCount == 0 {
		if delta < 0 {
			return store.ErrNoMatch
		}
		return store.ErrNotFound
	}
	return nil
}

// ---- loans ----

type loanStore struct {
	col *mongo.Collection
}

func (s *loanStore) Insert(ctx context.Context, loan *ledger.Loan) error {
	if _, err := s.col.InsertOne(ctx, toLoanModel(loan)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("mongo: insert loan: %w", err)
	}
	return nil
}

func (s *loanStore) FindActive(ctx context.Context, documentID, userID uuid.UUID) (*ledger.Loan, error) {
	var m loanModel
	err := s.col.FindOne(ctx, bson.M{
		"document_id": documentID.String(),
		"user_id":     userID.String(),
		"status":      string(ledger.LoanActive),
	}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find active loan: %w", err)
	}
	return fromLoanModel(&m)
}

func (s *loanStore) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id.String(), "status": string(ledger.LoanActive)},
		bson.M{"$set": bson.M{"status": string(ledger.LoanReturned), "returned_at": at}},
	)
	if err != nil {
		return fmt.Errorf("mongo: mark loan returned: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNoMatch
	}
	return nil
}

func (s *loanStore) FindOverdue(ctx context.Context, asOf time.Time) ([]*ledger.Loan, error) {
	cursor, err := s.col.Find(ctx,
		bson.M{"status": string(ledger.LoanActive), "due_at": bson.M{"$lt": asOf}},
		options.Find().SetSort(bson.D{{Key: "due_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: find overdue loans: %w", err)
	}

	var models []loanModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("mongo: decode loans: %w", err)
	}

	out := make([]*ledger.Loan, 0, len(models))
	for i := range models {
		loan, err := fromLoanModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("mongo: decode loan %s: %w", models[i].ID, err)
		}
		out = append(out, loan)
	}
	return out, nil
}

func (s *loanStore) ActiveCountByDocument(ctx context.Context) (map[uuid.UUID]int, error) {
	return s.activeCounts(ctx, "$document_id")
}

func (s *loanStore) ActiveCountByUser(ctx context.Context) (map[uuid.UUID]int, error) {
	return s.activeCounts(ctx, "$user_id")
}

func (s *loanStore) activeCounts(ctx context.Context, key string) (map[uuid.UUID]int, error) {
	cursor, err := s.col.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "status", Value: string(ledger.LoanActive)}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: key},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: count active loans: %w", err)
	}

	var rows []struct {
		ID string `bson:"_id"`
		N  int    `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo: decode counts: %w", err)
	}

	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("mongo: parse id %q: %w", row.ID, err)
		}
		counts[id] = row.N
	}
	return counts, nil
}
