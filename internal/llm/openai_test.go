package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkdifferentdot/maybe/internal/config"
)

func openAIReply(content string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-123",
		"model": "gpt-4.1",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

func newTestOpenAI(t *testing.T, handler http.HandlerFunc, maxRetries int, usage UsageRecorder) *gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	llm := testLLMSettings(maxRetries)
	llm.OpenAI.BaseURL = server.URL + "/"
	p, err := newOpenAIProvider("test-key", llm, server.Client(), testGatewayOptions(usage))
	require.NoError(t, err)
	return p
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := newOpenAIProvider("", testLLMSettings(1), http.DefaultClient, testGatewayOptions(nil))
	require.Error(t, err)
}

func TestOpenAI_AutoCategorize(t *testing.T) {
	var received openAIRequest
	usage := &usageSpy{}
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openAIReply(
			`{"categorizations": [{"transaction_id": "txn-1", "category_name": "Groceries", "confidence": 0.72}]}`,
			410, 35))
	}, 1, usage)

	assert.Equal(t, config.ProviderOpenAI, p.Name())
	assert.Equal(t, "gpt-4.1", p.Model())

	results, err := p.AutoCategorize(context.Background(), testRequest(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "txn-1", results[0].TransactionID)
	assert.Equal(t, "Groceries", *results[0].CategoryName)
	assert.InDelta(t, 0.72, *results[0].Confidence, 1e-9)

	assert.Equal(t, "gpt-4.1", received.Model)
	assert.Equal(t, "json_object", received.ResponseFormat["type"])
	require.Len(t, received.Messages, 2)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Contains(t, received.Messages[0].Content, "Return 1 result per transaction")
	assert.Equal(t, "user", received.Messages[1].Role)
	assert.Contains(t, received.Messages[1].Content, `"id": "txn-1"`)
	assert.Contains(t, received.Messages[1].Content, `"name": "Groceries"`)

	records := usage.all()
	require.Len(t, records, 1)
	assert.Equal(t, config.ProviderOpenAI, records[0].Provider)
	assert.Equal(t, 410, records[0].PromptTokens)
	assert.Equal(t, 35, records[0].CompletionTokens)
}

func TestOpenAI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   ErrorKind
		wantStatus int
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error": {"message": "bad key"}}`, wantKind: KindAuthentication, wantStatus: 401},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error": {}}`, wantKind: KindStatus, wantStatus: 400},
		{name: "malformed body", status: http.StatusOK, body: `not json`, wantKind: KindMalformedResponse},
		{name: "no choices", status: http.StatusOK, body: `{"choices": []}`, wantKind: KindMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			usage := &usageSpy{}
			p := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, tt.body)
			}, 3, usage)

			_, err := p.AutoCategorize(context.Background(), testRequest(2))
			require.Error(t, err)

			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.Equal(t, tt.wantStatus, perr.StatusCode)
			assert.Equal(t, int32(1), calls.Load(), "non-retryable failures are not retried")

			records := usage.all()
			require.Len(t, records, 1)
			assert.Zero(t, records[0].TotalTokens)
			assert.NotEmpty(t, records[0].Metadata["error"])
		})
	}
}

func TestOpenAI_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	usage := &usageSpy{}
	p := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(openAIReply(`[{"transaction_id": "txn-1", "category_name": "Salary"}]`, 10, 5))
	}, 3, usage)

	results, err := p.AutoCategorize(context.Background(), testRequest(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(2), calls.Load())

	records := usage.all()
	require.Len(t, records, 2)
	assert.Equal(t, 502, records[0].Metadata["http_status_code"])
	assert.Equal(t, 15, records[1].TotalTokens)
}

func TestOpenAI_TooManyTransactionsMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	p := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}, 1, nil)

	_, err := p.AutoCategorize(context.Background(), testRequest(30))
	require.ErrorIs(t, err, ErrTooManyTransactions)
	assert.Zero(t, calls.Load())
}
