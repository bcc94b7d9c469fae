package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/testutil"
)

func TestLedger_Record(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	ledger := NewLedger(db.Storage, nil)

	ledger.Record(ctx, model.UsageRecord{
		FamilyID:         "family-1",
		Model:            "gpt-4.1",
		PromptTokens:     1000,
		CompletionTokens: 500,
	})
	ledger.Record(ctx, model.UsageRecord{
		FamilyID: "family-1",
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		Metadata: map[string]any{"error": "anthropic rate_limit error", "http_status_code": 429},
	})
	ledger.Record(ctx, model.UsageRecord{
		FamilyID:     "family-1",
		Model:        "local-model",
		PromptTokens: 10,
	})

	records, err := db.Storage.GetUsageRecords(ctx, "family-1", nil)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byModel := make(map[string]model.UsageRecord)
	for _, r := range records {
		byModel[r.Model] = r
	}

	success := byModel["gpt-4.1"]
	assert.Equal(t, "openai", success.Provider)
	assert.Equal(t, model.OperationAutoCategorize, success.Operation)
	assert.Equal(t, 1500, success.TotalTokens)
	require.NotNil(t, success.EstimatedCost)
	assert.Equal(t, "0.006", success.EstimatedCost.String())

	failure := byModel["claude-sonnet-4-20250514"]
	assert.Equal(t, "anthropic", failure.Provider)
	assert.Zero(t, failure.TotalTokens)
	assert.Nil(t, failure.EstimatedCost)
	assert.Equal(t, "anthropic rate_limit error", failure.Metadata["error"])
	assert.EqualValues(t, 429, failure.Metadata["http_status_code"])

	unpriced := byModel["local-model"]
	assert.Equal(t, "openai", unpriced.Provider)
	assert.Nil(t, unpriced.EstimatedCost)
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) SaveUsage(context.Context, *model.UsageRecord) error {
	return errors.New("disk full")
}

func (failingStore) GetUsageRecords(context.Context, string, *time.Time) ([]model.UsageRecord, error) {
	return nil, errors.New("disk full")
}

func TestLedger_RecordSwallowsStoreErrors(t *testing.T) {
	ledger := NewLedger(failingStore{}, nil)
	assert.NotPanics(t, func() {
		ledger.Record(context.Background(), model.UsageRecord{FamilyID: "f", Model: "gpt-4.1"})
	})

	_, err := ledger.Summary(context.Background(), "f", nil)
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	cost := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	summaries := Summarize([]model.UsageRecord{
		{Provider: "openai", Model: "gpt-4.1", PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110, EstimatedCost: cost("0.0003")},
		{Provider: "openai", Model: "gpt-4.1", PromptTokens: 200, CompletionTokens: 20, TotalTokens: 220, EstimatedCost: cost("0.0006")},
		{Provider: "openai", Model: "gpt-4.1", Metadata: map[string]any{"error": "timeout"}},
		{Provider: "anthropic", Model: "claude-sonnet-4", PromptTokens: 50, CompletionTokens: 5, TotalTokens: 55},
	})

	require.Len(t, summaries, 2)

	assert.Equal(t, "anthropic", summaries[0].Provider)
	assert.Equal(t, 1, summaries[0].Calls)
	assert.True(t, summaries[0].TotalCost.IsZero())

	openai := summaries[1]
	assert.Equal(t, "gpt-4.1", openai.Model)
	assert.Equal(t, 3, openai.Calls)
	assert.Equal(t, 1, openai.Failures)
	assert.Equal(t, 300, openai.PromptTokens)
	assert.Equal(t, 30, openai.CompletionTokens)
	assert.Equal(t, 330, openai.TotalTokens)
	assert.Equal(t, "0.0009", openai.TotalCost.String())
}

func TestLedger_Summary(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	ledger := NewLedger(db.Storage, nil)

	ledger.Record(ctx, model.UsageRecord{FamilyID: "family-1", Model: "gpt-4.1", PromptTokens: 1000, CompletionTokens: 500})
	ledger.Record(ctx, model.UsageRecord{FamilyID: "family-1", Model: "gpt-4.1", PromptTokens: 1000, CompletionTokens: 500})
	ledger.Record(ctx, model.UsageRecord{FamilyID: "family-2", Model: "gpt-4.1", PromptTokens: 1000, CompletionTokens: 500})

	summaries, err := ledger.Summary(ctx, "family-1", nil)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].Calls)
	assert.Equal(t, "0.012", summaries[0].TotalCost.String())

	future := time.Now().Add(time.Hour)
	summaries, err = ledger.Summary(ctx, "family-1", &future)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
