// Package storage provides the SQLite persistence layer for the categorizer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thinkdifferentdot/maybe/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidPattern     = errors.New("invalid learned pattern")
	ErrInvalidUsage       = errors.New("invalid usage record")
	ErrInvalidFeedback    = errors.New("invalid feedback")
	ErrUnknownAttribute   = errors.New("unknown enrichable attribute")
)

// enrichableColumns maps enrichable attribute names to transaction columns.
var enrichableColumns = map[string]string{
	model.AttributeCategoryID: "category_id",
	"merchant_name":           "merchant_name",
}

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateAttribute(attribute string) (string, error) {
	column, ok := enrichableColumns[attribute]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, attribute)
	}
	return column, nil
}

func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.FamilyID == "" {
		return fmt.Errorf("%w: missing family ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if txn.Classification != "" && !txn.Classification.Valid() {
		return fmt.Errorf("%w: unknown classification %q", ErrInvalidTransaction, txn.Classification)
	}
	return nil
}

func validateCategory(cat *model.Category) error {
	if cat == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if cat.ID == "" || cat.FamilyID == "" {
		return fmt.Errorf("%w: missing ID or family ID", ErrInvalidCategory)
	}
	if strings.TrimSpace(cat.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCategory)
	}
	if cat.Classification != "" && !cat.Classification.Valid() {
		return fmt.Errorf("%w: unknown classification %q", ErrInvalidCategory, cat.Classification)
	}
	return nil
}

func validateLearnedPattern(p *model.LearnedPattern) error {
	if p == nil {
		return fmt.Errorf("%w: learned pattern", ErrNilParameter)
	}
	if p.FamilyID == "" || p.CategoryID == "" {
		return fmt.Errorf("%w: missing family or category", ErrInvalidPattern)
	}
	if p.NormalizedMerchant == "" {
		return fmt.Errorf("%w: merchant normalizes to empty string", ErrInvalidPattern)
	}
	return nil
}

func validateUsage(r *model.UsageRecord) error {
	if r == nil {
		return fmt.Errorf("%w: usage record", ErrNilParameter)
	}
	if r.FamilyID == "" || r.Provider == "" || r.Model == "" || r.Operation == "" {
		return fmt.Errorf("%w: family, provider, model and operation are required", ErrInvalidUsage)
	}
	if r.PromptTokens < 0 || r.CompletionTokens < 0 || r.TotalTokens < 0 {
		return fmt.Errorf("%w: token counts cannot be negative", ErrInvalidUsage)
	}
	return nil
}

func validateFeedback(f *model.CategorizationFeedback) error {
	if f == nil {
		return fmt.Errorf("%w: feedback", ErrNilParameter)
	}
	if f.FamilyID == "" || f.TransactionID == "" || f.CategoryID == "" {
		return fmt.Errorf("%w: family, transaction and category are required", ErrInvalidFeedback)
	}
	switch f.Outcome {
	case model.FeedbackApproved, model.FeedbackRejected:
	default:
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidFeedback, f.Outcome)
	}
	return nil
}
