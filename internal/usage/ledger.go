package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/service"
)

// Ledger records provider calls in the usage store.
type Ledger struct {
	store  service.UsageStore
	logger *slog.Logger
}

// NewLedger creates a ledger writing to store.
func NewLedger(store service.UsageStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: common.LoggerOrDefault(logger),
	}
}

// Record fills in provider, operation and cost, then saves the row.
// Failures are logged and never returned so that bookkeeping cannot fail a
// categorization.
func (l *Ledger) Record(ctx context.Context, record model.UsageRecord) {
	if record.Provider == "" {
		record.Provider = InferProvider(record.Model)
	}
	if record.Operation == "" {
		record.Operation = model.OperationAutoCategorize
	}
	if record.TotalTokens == 0 {
		record.TotalTokens = record.PromptTokens + record.CompletionTokens
	}

	if record.EstimatedCost == nil && !failed(record) {
		record.EstimatedCost = CalculateCost(record.Model, record.PromptTokens, record.CompletionTokens)
		if record.EstimatedCost == nil {
			l.logger.Info("No pricing for model, usage recorded without cost",
				"model", record.Model,
				"provider", record.Provider)
		}
	}

	if err := l.store.SaveUsage(ctx, &record); err != nil {
		l.logger.Error("Failed to record LLM usage",
			"error", err,
			"family_id", record.FamilyID,
			"provider", record.Provider,
			"model", record.Model)
	}
}

// Summary returns the family's usage grouped by provider and model. A nil
// since covers all time.
func (l *Ledger) Summary(ctx context.Context, familyID string, since *time.Time) ([]model.UsageSummary, error) {
	records, err := l.store.GetUsageRecords(ctx, familyID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage records: %w", err)
	}
	return Summarize(records), nil
}

// Summarize groups records by provider and model, sorted by provider then model.
func Summarize(records []model.UsageRecord) []model.UsageSummary {
	type key struct{ provider, model string }
	groups := make(map[key]*model.UsageSummary)

	for i := range records {
		r := &records[i]
		k := key{r.Provider, r.Model}
		s, ok := groups[k]
		if !ok {
			s = &model.UsageSummary{Provider: r.Provider, Model: r.Model, TotalCost: decimal.Zero}
			groups[k] = s
		}
		s.Calls++
		if failed(*r) {
			s.Failures++
		}
		s.PromptTokens += r.PromptTokens
		s.CompletionTokens += r.CompletionTokens
		s.TotalTokens += r.TotalTokens
		if r.EstimatedCost != nil {
			s.TotalCost = s.TotalCost.Add(*r.EstimatedCost)
		}
	}

	summaries := make([]model.UsageSummary, 0, len(groups))
	for _, s := range groups {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Provider != summaries[j].Provider {
			return summaries[i].Provider < summaries[j].Provider
		}
		return summaries[i].Model < summaries[j].Model
	})
	return summaries
}

func failed(r model.UsageRecord) bool {
	_, ok := r.Metadata["error"]
	return ok
}
