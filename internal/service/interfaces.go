// Package service defines the storage contracts shared by the categorizer components.
package service

import (
	"context"
	"time"

	"github.com/thinkdifferentdot/maybe/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	FamilyID      string
	IDs           []string
	Limit         int
	Offset        int
	Uncategorized bool
}

// EnrichmentStore persists provenance-tracked attribute writes.
type EnrichmentStore interface {
	// EnrichAttribute writes value to the attribute unless it is locked against
	// source or already holds value. It reports whether the value changed.
	EnrichAttribute(ctx context.Context, entityID, attribute string, value *string, source model.EnrichmentSource) (bool, error)
	LockAttribute(ctx context.Context, entityID, attribute string) error
	UnlockAttribute(ctx context.Context, entityID, attribute string) error
	IsLocked(ctx context.Context, entityID, attribute string) (bool, error)
	GetEnrichment(ctx context.Context, entityID, attribute string) (*model.EnrichmentRecord, error)
	// ClearAttribute nulls the attribute, drops the enrichment written by
	// source and removes any lock.
	ClearAttribute(ctx context.Context, entityID, attribute string, source model.EnrichmentSource) error
}

// TransactionStore reads and updates transactions.
type TransactionStore interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	// GetTransactionsToCategorize returns the family's uncategorized transactions
	// whose category is not locked. An empty ids slice means all of them.
	GetTransactionsToCategorize(ctx context.Context, familyID string, ids []string) ([]model.Transaction, error)
	UpdateTransactionExtra(ctx context.Context, id string, extra model.TransactionExtra) error
}

// CategoryStore reads family categories.
type CategoryStore interface {
	SaveCategories(ctx context.Context, categories []model.Category) error
	GetCategories(ctx context.Context, familyID string) ([]model.Category, error)
	GetCategoryByID(ctx context.Context, id string) (*model.Category, error)
	GetCategoryByName(ctx context.Context, familyID, name string) (*model.Category, error)
}

// PatternStore persists learned patterns.
type PatternStore interface {
	GetLearnedPatterns(ctx context.Context, familyID string) ([]model.LearnedPattern, error)
	// CreateLearnedPattern inserts p and reports whether a row was created.
	// A pattern whose normalized merchant already exists for the family is ignored.
	CreateLearnedPattern(ctx context.Context, p *model.LearnedPattern) (bool, error)
	DeleteLearnedPattern(ctx context.Context, familyID, id string) error
}

// UsageStore persists the LLM usage ledger.
type UsageStore interface {
	SaveUsage(ctx context.Context, record *model.UsageRecord) error
	GetUsageRecords(ctx context.Context, familyID string, since *time.Time) ([]model.UsageRecord, error)
}

// FeedbackStore persists review outcomes.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, feedback *model.CategorizationFeedback) error
	GetCategoryAccuracy(ctx context.Context, familyID string, since *time.Time) ([]model.CategoryAccuracy, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	EnrichmentStore
	TransactionStore
	CategoryStore
	PatternStore
	UsageStore
	FeedbackStore

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}
