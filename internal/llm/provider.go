package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/config"
	"github.com/thinkdifferentdot/maybe/internal/model"
)

// MaxTransactionsPerCall caps the batch a single provider call accepts.
const MaxTransactionsPerCall = 25

// Provider categorizes batches of transactions with one LLM vendor.
type Provider interface {
	Name() string
	Model() string
	AutoCategorize(ctx context.Context, req CategorizeRequest) ([]model.AutoCategorization, error)
}

// CategorizeRequest is one batch for a provider call.
type CategorizeRequest struct {
	Examples     ExampleSource
	FamilyID     string
	Transactions []model.Transaction
	Categories   []model.Category
}

// UsageRecorder receives one usage record per provider call.
type UsageRecorder interface {
	Record(ctx context.Context, record model.UsageRecord)
}

// completion is what an adapter got back from one round trip.
type completion struct {
	// structured holds JSON the provider returned through a schema or tool.
	structured       json.RawMessage
	text             string
	promptTokens     int
	completionTokens int
}

// completer performs one round trip. Failures should be *ProviderError.
type completer interface {
	complete(ctx context.Context, p prompt) (completion, error)
}

// gateway holds the behavior shared by every adapter: validation, prompt
// construction, rate limiting, retries, usage recording and parsing.
type gateway struct {
	client  completer
	usage   UsageRecorder
	limiter *rateLimiter
	logger  *slog.Logger
	name    string
	model   string
	closing string
	policy  config.CategorizationSettings
	retry   common.RetryOptions
}

func (g *gateway) Name() string  { return g.name }
func (g *gateway) Model() string { return g.model }

// AutoCategorize validates the batch, asks the provider and normalizes the
// category names it returns against req.Categories.
func (g *gateway) AutoCategorize(ctx context.Context, req CategorizeRequest) ([]model.AutoCategorization, error) {
	if len(req.Transactions) > MaxTransactionsPerCall {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyTransactions, len(req.Transactions))
	}
	if len(req.Categories) == 0 {
		return nil, ErrNoCategories
	}
	if len(req.Transactions) == 0 {
		return nil, nil
	}

	p, err := buildPrompt(req, g.policy, g.closing)
	if err != nil {
		return nil, err
	}

	var results []model.AutoCategorization
	err = common.WithRetry(ctx, func() error {
		if err := g.limiter.wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		c, err := g.client.complete(ctx, p)
		if err == nil {
			results, err = decodeCompletion(c)
		}
		if err != nil {
			perr := asProviderError(g.name, err)
			g.recordFailure(ctx, req.FamilyID, perr)
			g.logger.Warn("Auto-categorization call failed",
				"provider", g.name,
				"model", g.model,
				"family_id", req.FamilyID,
				"kind", perr.Kind,
				"error", perr)
			return &common.RetryableError{Err: perr, Retryable: perr.Retryable()}
		}

		g.recordSuccess(ctx, req.FamilyID, c)
		g.logger.Debug("Auto-categorization call completed",
			"provider", g.name,
			"model", g.model,
			"family_id", req.FamilyID,
			"transaction_count", len(req.Transactions),
			"result_count", len(results),
			"prompt_tokens", c.promptTokens,
			"completion_tokens", c.completionTokens,
			"duration", time.Since(start))
		return nil
	}, g.retry)
	if err != nil {
		return nil, fmt.Errorf("%s auto-categorization failed: %w", g.name, err)
	}

	for i := range results {
		results[i].CategoryName = matchCategoryName(results[i].CategoryName, req.Categories)
	}
	return results, nil
}

func decodeCompletion(c completion) ([]model.AutoCategorization, error) {
	doc := c.structured
	if len(doc) == 0 {
		parsed, err := ParseJSON(c.text, categorizationsKey)
		if err != nil {
			return nil, err
		}
		doc = parsed
	}

	results, err := decodeCategorizations(doc)
	if err != nil {
		return nil, &ParseError{Excerpt: truncate(string(doc), excerptLength)}
	}
	return results, nil
}

func (g *gateway) recordSuccess(ctx context.Context, familyID string, c completion) {
	if g.usage == nil {
		return
	}
	g.usage.Record(ctx, model.UsageRecord{
		FamilyID:         familyID,
		Provider:         g.name,
		Model:            g.model,
		Operation:        model.OperationAutoCategorize,
		PromptTokens:     c.promptTokens,
		CompletionTokens: c.completionTokens,
		TotalTokens:      c.promptTokens + c.completionTokens,
	})
}

func (g *gateway) recordFailure(ctx context.Context, familyID string, perr *ProviderError) {
	if g.usage == nil {
		return
	}
	var status any
	if perr.StatusCode != 0 {
		status = perr.StatusCode
	}
	g.usage.Record(ctx, model.UsageRecord{
		FamilyID:  familyID,
		Provider:  g.name,
		Model:     g.model,
		Operation: model.OperationAutoCategorize,
		Metadata: map[string]any{
			"error":            perr.Error(),
			"error_kind":       string(perr.Kind),
			"http_status_code": status,
		},
	})
}

// gatewayOptions carries the collaborators a registry shares between adapters.
type gatewayOptions struct {
	usage   UsageRecorder
	limiter *rateLimiter
	logger  *slog.Logger
	policy  config.CategorizationSettings
}

// newGateway applies the shared LLM settings to an adapter.
func newGateway(name, modelName, closing string, client completer, llm config.LLMSettings, opts gatewayOptions) *gateway {
	return &gateway{
		client:  client,
		usage:   opts.usage,
		limiter: opts.limiter,
		logger:  common.LoggerOrDefault(opts.logger),
		name:    name,
		model:   modelName,
		closing: closing,
		policy:  opts.policy,
		retry: common.RetryOptions{
			MaxAttempts:  llm.MaxRetries,
			InitialDelay: llm.RetryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}
