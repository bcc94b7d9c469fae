// Package model defines the core data structures for the categorizer.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Classification is the direction of money for transactions and categories.
type Classification string

// Classification values.
const (
	ClassificationExpense  Classification = "expense"
	ClassificationIncome   Classification = "income"
	ClassificationTransfer Classification = "transfer"
)

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationExpense, ClassificationIncome, ClassificationTransfer:
		return true
	default:
		return false
	}
}

// Transaction is a single financial transaction owned by a family.
type Transaction struct {
	Date           time.Time
	CategoryID     *string
	ID             string
	FamilyID       string
	Description    string
	MerchantName   string
	Classification Classification
	Extra          TransactionExtra
	Amount         float64
}

// Merchant returns the merchant name, falling back to the description.
func (t *Transaction) Merchant() string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	return t.Description
}

// Uncategorized reports whether the transaction has no category.
func (t *Transaction) Uncategorized() bool {
	return t.CategoryID == nil || *t.CategoryID == ""
}

// AICategorized reports whether the current category came from an AI provider.
func (t *Transaction) AICategorized() bool {
	return t.Extra.AICategorizationConfidence != nil
}

// FeedbackType records the outcome of a human review.
type FeedbackType string

// Feedback outcomes.
const (
	FeedbackApproved FeedbackType = "approved"
	FeedbackRejected FeedbackType = "rejected"
)

// TransactionExtra is the metadata bag stored alongside a transaction.
// It is persisted as JSON so that new keys can be added without migrations.
type TransactionExtra struct {
	AICategorizationConfidence *float64     `json:"ai_categorization_confidence,omitempty"`
	AIFeedbackAt               *time.Time   `json:"ai_feedback_at,omitempty"`
	AIFeedbackType             FeedbackType `json:"ai_feedback_type,omitempty"`
	AIFeedbackGiven            bool         `json:"ai_feedback_given,omitempty"`
}

// MarshalExtra encodes extra for storage.
func MarshalExtra(extra TransactionExtra) (string, error) {
	b, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction extra: %w", err)
	}
	return string(b), nil
}

// UnmarshalExtra decodes stored extra metadata. Empty input yields the zero value.
func UnmarshalExtra(raw string) (TransactionExtra, error) {
	var extra TransactionExtra
	if raw == "" {
		return extra, nil
	}
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return extra, fmt.Errorf("failed to decode transaction extra: %w", err)
	}
	return extra, nil
}
