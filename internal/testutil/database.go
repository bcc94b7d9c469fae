// Package testutil provides database and fixture helpers for tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/pattern"
	"github.com/thinkdifferentdot/maybe/internal/storage"
)

// TestDB is a migrated SQLite database scoped to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a migrated database in the test's temp dir and closes
// it on cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// CategoryOption customizes a seeded category.
type CategoryOption func(*model.Category)

// WithParent makes the category a subcategory of parent.
func WithParent(parent model.Category) CategoryOption {
	return func(c *model.Category) {
		id := parent.ID
		c.ParentID = &id
	}
}

// WithCategoryClassification overrides the default expense classification.
func WithCategoryClassification(cl model.Classification) CategoryOption {
	return func(c *model.Category) {
		c.Classification = cl
	}
}

// Category seeds a category for the family and returns it.
func (db *TestDB) Category(familyID, name string, opts ...CategoryOption) model.Category {
	db.t.Helper()

	cat := model.Category{
		ID:             uuid.NewString(),
		FamilyID:       familyID,
		Name:           name,
		Classification: model.ClassificationExpense,
	}
	for _, opt := range opts {
		opt(&cat)
	}

	if err := db.Storage.SaveCategories(context.Background(), []model.Category{cat}); err != nil {
		db.t.Fatalf("failed to seed category %q: %v", name, err)
	}
	return cat
}

// TransactionOption customizes a seeded transaction.
type TransactionOption func(*model.Transaction)

// WithMerchant sets the merchant name.
func WithMerchant(name string) TransactionOption {
	return func(txn *model.Transaction) {
		txn.MerchantName = name
	}
}

// WithAmount sets the amount.
func WithAmount(amount float64) TransactionOption {
	return func(txn *model.Transaction) {
		txn.Amount = amount
	}
}

// WithClassification sets the transaction classification.
func WithClassification(cl model.Classification) TransactionOption {
	return func(txn *model.Transaction) {
		txn.Classification = cl
	}
}

// Transaction seeds an uncategorized transaction for the family and returns it.
func (db *TestDB) Transaction(familyID, description string, opts ...TransactionOption) model.Transaction {
	db.t.Helper()

	txn := model.Transaction{
		ID:             uuid.NewString(),
		FamilyID:       familyID,
		Date:           time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
		Description:    description,
		Amount:         42.50,
		Classification: model.ClassificationExpense,
	}
	for _, opt := range opts {
		opt(&txn)
	}

	if err := db.Storage.SaveTransactions(context.Background(), []model.Transaction{txn}); err != nil {
		db.t.Fatalf("failed to seed transaction %q: %v", description, err)
	}
	return txn
}

// Pattern seeds a learned pattern mapping merchant to cat.
func (db *TestDB) Pattern(familyID, merchant string, cat model.Category) model.LearnedPattern {
	db.t.Helper()

	p := model.LearnedPattern{
		FamilyID:           familyID,
		CategoryID:         cat.ID,
		MerchantName:       merchant,
		NormalizedMerchant: pattern.Normalize(merchant),
	}
	if _, err := db.Storage.CreateLearnedPattern(context.Background(), &p); err != nil {
		db.t.Fatalf("failed to seed pattern %q: %v", merchant, err)
	}
	return p
}

// MustTransaction reloads a transaction or fails the test.
func (db *TestDB) MustTransaction(id string) *model.Transaction {
	db.t.Helper()

	txn, err := db.Storage.GetTransactionByID(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load transaction %s: %v", id, err)
	}
	return txn
}
