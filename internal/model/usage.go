package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation names recorded in the usage ledger.
const (
	OperationAutoCategorize = "auto_categorize"
)

// UsageRecord is one row of the append-only LLM usage ledger.
type UsageRecord struct {
	CreatedAt        time.Time
	EstimatedCost    *decimal.Decimal
	Metadata         map[string]any
	ID               string
	FamilyID         string
	Provider         string
	Model            string
	Operation        string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// UsageSummary aggregates usage rows for one provider and model.
type UsageSummary struct {
	TotalCost        decimal.Decimal
	Provider         string
	Model            string
	Calls            int
	Failures         int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
