// Package feedback turns human review of AI categorizations into learned
// patterns and lock state, and reports how often suggestions were accepted.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/pattern"
	"github.com/thinkdifferentdot/maybe/internal/service"
)

var (
	// ErrNotAICategorized is returned when feedback targets a transaction
	// whose category did not come from an AI provider.
	ErrNotAICategorized = errors.New("transaction is not AI-categorized")
	// ErrEmptyMerchant is returned when a merchant normalizes to nothing.
	ErrEmptyMerchant = errors.New("merchant name normalizes to an empty string")
)

// Handler applies approve and reject decisions.
type Handler struct {
	storage service.Storage
	logger  *slog.Logger
	now     func() time.Time
}

// Approval describes the outcome of an approve.
type Approval struct {
	Pattern        model.LearnedPattern
	PatternCreated bool
}

// NewHandler creates a feedback handler.
func NewHandler(storage service.Storage, logger *slog.Logger) *Handler {
	return &Handler{
		storage: storage,
		logger:  common.LoggerOrDefault(logger),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Approve confirms an AI categorization. The transaction's merchant is learned
// as a pattern for its category; approving a merchant the family already
// learned leaves the existing pattern in place.
func (h *Handler) Approve(ctx context.Context, familyID, transactionID string) (Approval, error) {
	var approval Approval

	err := h.inTx(ctx, func(tx service.Transaction) error {
		txn, err := h.reviewable(ctx, tx, familyID, transactionID)
		if err != nil {
			return err
		}
		category, err := h.categoryName(ctx, tx, *txn.CategoryID)
		if err != nil {
			return err
		}

		approval.Pattern = model.LearnedPattern{
			FamilyID:           familyID,
			CategoryID:         *txn.CategoryID,
			MerchantName:       txn.Merchant(),
			NormalizedMerchant: pattern.Normalize(txn.Merchant()),
		}
		if approval.Pattern.NormalizedMerchant != "" {
			approval.PatternCreated, err = tx.CreateLearnedPattern(ctx, &approval.Pattern)
			if err != nil {
				return err
			}
		} else {
			h.logger.Warn("Merchant normalizes to empty string, no pattern learned",
				"transaction_id", txn.ID,
				"merchant", txn.Merchant())
		}

		return h.record(ctx, tx, txn, category, model.FeedbackApproved)
	})
	if err != nil {
		return Approval{}, fmt.Errorf("failed to approve %s: %w", transactionID, err)
	}

	h.logger.Info("Approved AI categorization",
		"family_id", familyID,
		"transaction_id", transactionID,
		"pattern_created", approval.PatternCreated)
	return approval, nil
}

// Reject discards an AI categorization. The category is cleared, the AI
// enrichment and lock are removed so later runs may categorize the
// transaction again.
func (h *Handler) Reject(ctx context.Context, familyID, transactionID string) error {
	err := h.inTx(ctx, func(tx service.Transaction) error {
		txn, err := h.reviewable(ctx, tx, familyID, transactionID)
		if err != nil {
			return err
		}
		category, err := h.categoryName(ctx, tx, *txn.CategoryID)
		if err != nil {
			return err
		}

		if err := tx.ClearAttribute(ctx, txn.ID, model.AttributeCategoryID, model.SourceAI); err != nil {
			return err
		}
		return h.record(ctx, tx, txn, category, model.FeedbackRejected)
	})
	if err != nil {
		return fmt.Errorf("failed to reject %s: %w", transactionID, err)
	}

	h.logger.Info("Rejected AI categorization",
		"family_id", familyID,
		"transaction_id", transactionID)
	return nil
}

// Learn stores a pattern mapping merchant to categoryID for the family. It
// reports false when the family already has a pattern for the merchant.
func (h *Handler) Learn(ctx context.Context, familyID, merchant, categoryID string) (model.LearnedPattern, bool, error) {
	category, err := h.storage.GetCategoryByID(ctx, categoryID)
	if err != nil {
		return model.LearnedPattern{}, false, fmt.Errorf("failed to load category: %w", err)
	}
	if category.FamilyID != familyID {
		return model.LearnedPattern{}, false, fmt.Errorf("category %s: %w", categoryID, common.ErrNotFound)
	}

	p := model.LearnedPattern{
		FamilyID:           familyID,
		CategoryID:         categoryID,
		MerchantName:       merchant,
		NormalizedMerchant: pattern.Normalize(merchant),
	}
	if p.NormalizedMerchant == "" {
		return model.LearnedPattern{}, false, fmt.Errorf("%w: %q", ErrEmptyMerchant, merchant)
	}

	created, err := h.storage.CreateLearnedPattern(ctx, &p)
	if err != nil {
		return model.LearnedPattern{}, false, err
	}
	return p, created, nil
}

// reviewable loads the transaction and checks it awaits AI feedback.
func (h *Handler) reviewable(ctx context.Context, tx service.Transaction, familyID, transactionID string) (*model.Transaction, error) {
	txn, err := tx.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.FamilyID != familyID {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	if !txn.AICategorized() || txn.Uncategorized() {
		return nil, ErrNotAICategorized
	}
	return txn, nil
}

func (h *Handler) categoryName(ctx context.Context, tx service.Transaction, categoryID string) (string, error) {
	category, err := tx.GetCategoryByID(ctx, categoryID)
	if errors.Is(err, common.ErrNotFound) {
		return categoryID, nil
	}
	if err != nil {
		return "", err
	}
	return category.Name, nil
}

// record marks the transaction reviewed and appends the audit row.
func (h *Handler) record(ctx context.Context, tx service.Transaction, txn *model.Transaction,
	categoryName string, outcome model.FeedbackType) error {
	now := h.now()
	confidence := *txn.Extra.AICategorizationConfidence

	extra := txn.Extra
	extra.AICategorizationConfidence = nil
	extra.AIFeedbackGiven = true
	extra.AIFeedbackType = outcome
	extra.AIFeedbackAt = &now
	if err := tx.UpdateTransactionExtra(ctx, txn.ID, extra); err != nil {
		return err
	}

	return tx.SaveFeedback(ctx, &model.CategorizationFeedback{
		FamilyID:      txn.FamilyID,
		TransactionID: txn.ID,
		CategoryID:    *txn.CategoryID,
		CategoryName:  categoryName,
		Outcome:       outcome,
		Confidence:    confidence,
		CreatedAt:     now,
	})
}

func (h *Handler) inTx(ctx context.Context, fn func(tx service.Transaction) error) (err error) {
	tx, err := h.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
