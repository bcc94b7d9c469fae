// Package engine runs family auto-categorization: learned patterns first,
// then batched LLM calls for whatever the patterns could not place.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/config"
	"github.com/thinkdifferentdot/maybe/internal/llm"
	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/pattern"
	"github.com/thinkdifferentdot/maybe/internal/service"
)

const defaultConfidence = 1.0

// AutoCategorizer orchestrates one categorization run per call.
type AutoCategorizer struct {
	storage   service.Storage
	providers ProviderSource
	logger    *slog.Logger
	progress  ProgressFunc
	settings  config.CategorizationSettings
}

// Config holds configuration options for the auto-categorizer.
type Config struct {
	Logger   *slog.Logger
	Progress ProgressFunc
	Settings config.CategorizationSettings
}

// Result counts what a run did. Modified is PatternMatched plus AIMatched.
type Result struct {
	Candidates     int
	Modified       int
	PatternMatched int
	AIMatched      int
	Unmatched      int
}

// New creates an auto-categorizer.
func New(storage service.Storage, providers ProviderSource, cfg Config) *AutoCategorizer {
	return &AutoCategorizer{
		storage:   storage,
		providers: providers,
		logger:    common.LoggerOrDefault(cfg.Logger),
		progress:  cfg.Progress,
		settings:  cfg.Settings,
	}
}

// Run categorizes the family's uncategorized, unlocked transactions among
// transactionIDs, or all of them when transactionIDs is empty.
//
// The returned Result is valid even when an error is returned: writes made
// before a failing batch are kept and counted.
func (a *AutoCategorizer) Run(ctx context.Context, familyID string, transactionIDs []string) (Result, error) {
	var result Result

	candidates, err := a.storage.GetTransactionsToCategorize(ctx, familyID, transactionIDs)
	if err != nil {
		return result, fmt.Errorf("failed to load transactions: %w", err)
	}
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		a.logger.Info("No transactions to auto-categorize", "family_id", familyID)
		return result, nil
	}

	index, err := pattern.Load(ctx, a.storage, familyID)
	if err != nil {
		return result, err
	}

	remaining, err := a.patternPass(ctx, familyID, index, candidates, &result)
	if err != nil {
		return result, err
	}

	if len(remaining) > 0 {
		err = a.aiPass(ctx, familyID, index, remaining, &result)
	}

	result.Modified = result.PatternMatched + result.AIMatched
	a.logger.Info("Auto-categorization finished",
		"family_id", familyID,
		"candidate_count", result.Candidates,
		"modified_count", result.Modified,
		"pattern_count", result.PatternMatched,
		"ai_count", result.AIMatched,
		"unmatched_count", result.Unmatched)
	return result, err
}

// patternPass applies learned patterns and returns the transactions no pattern matched.
func (a *AutoCategorizer) patternPass(ctx context.Context, familyID string, index pattern.Finder,
	candidates []model.Transaction, result *Result) ([]model.Transaction, error) {
	var remaining []model.Transaction

	for _, txn := range candidates {
		p, ok := index.Find(familyID, txn.Merchant())
		if !ok {
			remaining = append(remaining, txn)
			continue
		}

		categoryID := p.CategoryID
		changed, err := a.assign(ctx, txn.ID, &categoryID, model.SourceLearnedPattern, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to apply learned pattern to %s: %w", txn.ID, err)
		}
		if changed {
			result.PatternMatched++
			a.logger.Debug("Applied learned pattern",
				"transaction_id", txn.ID,
				"merchant", txn.Merchant(),
				"pattern", p.NormalizedMerchant)
		}
	}

	return remaining, nil
}

// aiPass sends the remaining transactions to the provider in batches.
func (a *AutoCategorizer) aiPass(ctx context.Context, familyID string, examples llm.ExampleSource,
	remaining []model.Transaction, result *Result) error {
	categories, err := a.storage.GetCategories(ctx, familyID)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	if len(categories) == 0 {
		a.logger.Info("Skipping AI categorization, family has no categories", "family_id", familyID)
		result.Unmatched += len(remaining)
		return nil
	}

	provider, err := a.providers.Preferred()
	if err != nil {
		result.Unmatched += len(remaining)
		return fmt.Errorf("AI categorization skipped: %w", err)
	}

	categoryIDs := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryIDs[c.Name] = c.ID
	}

	batchSize := a.batchSize()
	for start := 0; start < len(remaining); start += batchSize {
		if err := ctx.Err(); err != nil {
			result.Unmatched += len(remaining) - start
			return err
		}

		end := min(start+batchSize, len(remaining))
		batch := remaining[start:end]

		results, err := provider.AutoCategorize(ctx, llm.CategorizeRequest{
			FamilyID:     familyID,
			Transactions: batch,
			Categories:   categories,
			Examples:     examples,
		})
		if err != nil {
			result.Unmatched += len(remaining) - start
			return fmt.Errorf("AI categorization failed at batch starting %d of %d: %w", start, len(remaining), err)
		}

		if err := a.applyBatch(ctx, batch, results, categoryIDs, result); err != nil {
			return err
		}

		if a.progress != nil {
			a.progress(end, len(remaining))
		}
	}

	return nil
}

func (a *AutoCategorizer) applyBatch(ctx context.Context, batch []model.Transaction,
	results []model.AutoCategorization, categoryIDs map[string]string, result *Result) error {
	byTransaction := make(map[string]model.AutoCategorization, len(results))
	for _, r := range results {
		byTransaction[r.TransactionID] = r
	}

	for i := range batch {
		txn := &batch[i]
		r, ok := byTransaction[txn.ID]
		if !ok || r.CategoryName == nil {
			result.Unmatched++
			continue
		}
		categoryID, ok := categoryIDs[*r.CategoryName]
		if !ok {
			a.logger.Debug("Provider returned an unknown category",
				"transaction_id", txn.ID,
				"category_name", *r.CategoryName)
			result.Unmatched++
			continue
		}

		confidence := defaultConfidence
		if r.Confidence != nil {
			confidence = *r.Confidence
		}

		extra := txn.Extra
		extra.AICategorizationConfidence = &confidence
		extra.AIFeedbackGiven = false
		extra.AIFeedbackType = ""
		extra.AIFeedbackAt = nil

		changed, err := a.assign(ctx, txn.ID, &categoryID, model.SourceAI, &extra)
		if err != nil {
			return fmt.Errorf("failed to apply AI category to %s: %w", txn.ID, err)
		}
		if changed {
			result.AIMatched++
		}
	}
	return nil
}

// assign enriches category_id from source, stores extra when the value
// changed, and locks the attribute, all in one transaction.
func (a *AutoCategorizer) assign(ctx context.Context, transactionID string, categoryID *string,
	source model.EnrichmentSource, extra *model.TransactionExtra) (changed bool, err error) {
	tx, err := a.storage.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	changed, err = tx.EnrichAttribute(ctx, transactionID, model.AttributeCategoryID, categoryID, source)
	if err != nil {
		return false, err
	}
	if changed && extra != nil {
		if err = tx.UpdateTransactionExtra(ctx, transactionID, *extra); err != nil {
			return false, err
		}
	}
	if changed {
		if err = tx.LockAttribute(ctx, transactionID, model.AttributeCategoryID); err != nil {
			return false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return changed, nil
}

func (a *AutoCategorizer) batchSize() int {
	size := a.settings.BatchSize
	if size <= 0 || size > llm.MaxTransactionsPerCall {
		size = llm.MaxTransactionsPerCall
	}
	return size
}
