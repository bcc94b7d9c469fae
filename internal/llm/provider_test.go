package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/config"
	"github.com/thinkdifferentdot/maybe/internal/model"
)

// usageSpy collects usage records.
type usageSpy struct {
	records []model.UsageRecord
	mu      sync.Mutex
}

func (u *usageSpy) Record(_ context.Context, record model.UsageRecord) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records = append(u.records, record)
}

func (u *usageSpy) all() []model.UsageRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]model.UsageRecord(nil), u.records...)
}

// scriptedCompleter returns queued results in order.
type scriptedCompleter struct {
	results []completion
	errs    []error
	prompts []prompt
	calls   int
}

func (s *scriptedCompleter) complete(_ context.Context, p prompt) (completion, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, p)
	if i < len(s.errs) && s.errs[i] != nil {
		return completion{}, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return completion{}, fmt.Errorf("unexpected call %d", i+1)
}

func testLLMSettings(maxRetries int) config.LLMSettings {
	llm := config.Default().LLM
	llm.MaxRetries = maxRetries
	llm.RetryDelay = time.Millisecond
	return llm
}

func testGatewayOptions(usage UsageRecorder) gatewayOptions {
	return gatewayOptions{
		usage:  usage,
		policy: config.Default().Categorization,
	}
}

func testTransactions(n int) []model.Transaction {
	txns := make([]model.Transaction, n)
	for i := range txns {
		txns[i] = model.Transaction{
			ID:             fmt.Sprintf("txn-%d", i+1),
			FamilyID:       "family-1",
			Description:    fmt.Sprintf("MERCHANT %d", i+1),
			Classification: model.ClassificationExpense,
			Amount:         -12.5,
		}
	}
	return txns
}

func testRequest(n int) CategorizeRequest {
	return CategorizeRequest{
		FamilyID:     "family-1",
		Transactions: testTransactions(n),
		Categories:   testCategories(),
	}
}

func TestGateway_Validation(t *testing.T) {
	t.Run("too many transactions", func(t *testing.T) {
		client := &scriptedCompleter{}
		usage := &usageSpy{}
		g := newGateway("fake", "fake-model", closingJSONObject, client, testLLMSettings(1), testGatewayOptions(usage))

		_, err := g.AutoCategorize(context.Background(), testRequest(30))
		require.ErrorIs(t, err, ErrTooManyTransactions)
		assert.Zero(t, client.calls)
		assert.Empty(t, usage.all())
	})

	t.Run("no categories", func(t *testing.T) {
		client := &scriptedCompleter{}
		g := newGateway("fake", "fake-model", closingJSONObject, client, testLLMSettings(1), testGatewayOptions(nil))

		req := testRequest(1)
		req.Categories = nil
		_, err := g.AutoCategorize(context.Background(), req)
		require.ErrorIs(t, err, common.ErrNoCategories)
		assert.Zero(t, client.calls)
	})

	t.Run("exactly the cap is accepted", func(t *testing.T) {
		client := &scriptedCompleter{results: []completion{{text: `{"categorizations": []}`}}}
		g := newGateway("fake", "fake-model", closingJSONObject, client, testLLMSettings(1), testGatewayOptions(nil))

		results, err := g.AutoCategorize(context.Background(), testRequest(MaxTransactionsPerCall))
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("empty batch makes no call", func(t *testing.T) {
		client := &scriptedCompleter{}
		g := newGateway("fake", "fake-model", closingJSONObject, client, testLLMSettings(1), testGatewayOptions(nil))

		results, err := g.AutoCategorize(context.Background(), testRequest(0))
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Zero(t, client.calls)
	})
}

func TestGateway_NormalizesCategoryNames(t *testing.T) {
	client := &scriptedCompleter{results: []completion{{
		text: "```json\n" + `{"categorizations": [
			{"transaction_id": "txn-1", "category_name": "grocery", "confidence": 0.72},
			{"transaction_id": "txn-2", "category_name": "null"},
			{"transaction_id": "txn-3", "category_name": "Pet Supplies", "confidence": 0.4}
		]}` + "\n```",
		promptTokens:     120,
		completionTokens: 30,
	}}}
	usage := &usageSpy{}
	g := newGateway("fake", "fake-model", closingJSONObject, client, testLLMSettings(1), testGatewayOptions(usage))

	results, err := g.AutoCategorize(context.Background(), testRequest(3))
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NotNil(t, results[0].CategoryName)
	assert.Equal(t, "Groceries", *results[0].CategoryName)
	assert.InDelta(t, 0.72, *results[0].Confidence, 1e-9)
	assert.Nil(t, results[1].CategoryName)
	require.NotNil(t, results[2].CategoryName)
	assert.Equal(t, "Pet Supplies", *results[2].CategoryName)

	records := usage.all()
	require.Len(t, records, 1)
	assert.Equal(t, "fake", records[0].Provider)
	assert.Equal(t, "fake-model", records[0].Model)
	assert.Equal(t, model.OperationAutoCategorize, records[0].Operation)
	assert.Equal(t, "family-1", records[0].FamilyID)
	assert.Equal(t, 120, records[0].PromptTokens)
	assert.Equal(t, 30, records[0].CompletionTokens)
	assert.Equal(t, 150, records[0].TotalTokens)
	assert.Nil(t, records[0].Metadata)
}

func TestGateway_RetriesAndRecordsEveryAttempt(t *testing.T) {
	client := &scriptedCompleter{
		errs: []error{
			&ProviderError{Provider: "fake", Kind: KindTimeout, Err: context.DeadlineExceeded},
			nil,
		},
		results: []completion{{}, {text: `[{"transaction_id": "txn-1", "category_name": "Salary"}]`}},
	}
	usage := &usageSpy{}
	g := newGateway("fake", "fake-model", closingJSONObject, client, testLLMSettings(3), testGatewayOptions(usage))

	results, err := g.AutoCategorize(context.Background(), testRequest(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Salary", *results[0].CategoryName)
	assert.Nil(t, results[0].Confidence)
	assert.Equal(t, 2, client.calls)

	records := usage.all()
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].TotalTokens)
	assert.Contains(t, records[0].Metadata["error"], "timeout")
	assert.Nil(t, records[0].Metadata["http_status_code"])
	assert.Nil(t, records[1].Metadata)
}

func TestGateway_DoesNotRetryMalformedResponses(t *testing.T) {
	client := &scriptedCompleter{results: []completion{{text: "I am unable to help with that."}}}
	usage := &usageSpy{}
	g := newGateway("fake", "fake-model", closingJSONObject, client, testLLMSettings(3), testGatewayOptions(usage))

	_, err := g.AutoCategorize(context.Background(), testRequest(1))
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindMalformedResponse, perr.Kind)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 1, client.calls)
	assert.Len(t, usage.all(), 1)
}

func TestGateway_GivesUpAfterMaxRetries(t *testing.T) {
	rateLimited := &ProviderError{Provider: "fake", Kind: KindRateLimit, StatusCode: 429, Err: errors.New("slow down")}
	client := &scriptedCompleter{errs: []error{rateLimited, rateLimited}}
	usage := &usageSpy{}
	g := newGateway("fake", "fake-model", closingJSONObject, client, testLLMSettings(2), testGatewayOptions(usage))

	_, err := g.AutoCategorize(context.Background(), testRequest(2))
	require.ErrorIs(t, err, common.ErrMaxRetries)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindRateLimit, perr.Kind)
	assert.Equal(t, 2, client.calls)

	records := usage.all()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, 429, r.Metadata["http_status_code"])
		assert.Equal(t, "rate_limit", r.Metadata["error_kind"])
	}
}

func TestProviderError_Retryable(t *testing.T) {
	tests := []struct {
		err  *ProviderError
		name string
		want bool
	}{
		{name: "connection", err: &ProviderError{Kind: KindConnection}, want: true},
		{name: "timeout", err: &ProviderError{Kind: KindTimeout}, want: true},
		{name: "rate limit", err: &ProviderError{Kind: KindRateLimit}, want: true},
		{name: "server error", err: &ProviderError{Kind: KindStatus, StatusCode: 503}, want: true},
		{name: "client error", err: &ProviderError{Kind: KindStatus, StatusCode: 400}, want: false},
		{name: "authentication", err: &ProviderError{Kind: KindAuthentication, StatusCode: 401}, want: false},
		{name: "malformed", err: &ProviderError{Kind: KindMalformedResponse}, want: false},
		{name: "unexpected", err: &ProviderError{Kind: KindUnexpected}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{name: "too many requests", status: 429, want: KindRateLimit},
		{name: "overloaded", status: 529, want: KindRateLimit},
		{name: "unauthorized", status: 401, want: KindAuthentication},
		{name: "forbidden", status: 403, want: KindAuthentication},
		{name: "bad request", status: 400, want: KindStatus},
		{name: "server error", status: 500, want: KindStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := statusError("openai", tt.status, "body")
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestTransportError(t *testing.T) {
	assert.Equal(t, KindTimeout, transportError("openai", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindUnexpected, transportError("openai", context.Canceled).Kind)
	assert.Equal(t, KindConnection, transportError("openai", errors.New("connection refused")).Kind)
}
