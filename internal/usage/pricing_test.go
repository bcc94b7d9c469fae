package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name       string
		model      string
		prompt     int
		completion int
		want       string
	}{
		{name: "gpt-4.1", model: "gpt-4.1", prompt: 1000, completion: 500, want: "0.006"},
		{name: "dated snapshot uses family price", model: "gpt-4.1-2025-04-14", prompt: 1_000_000, completion: 0, want: "2"},
		{name: "longest prefix wins", model: "gpt-4.1-mini-2025-04-14", prompt: 1_000_000, completion: 1_000_000, want: "2"},
		{name: "gpt-4o-mini over gpt-4o", model: "gpt-4o-mini", prompt: 1_000_000, completion: 0, want: "0.15"},
		{name: "claude", model: "claude-sonnet-4-20250514", prompt: 2000, completion: 1000, want: "0.021"},
		{name: "rounded to six places", model: "gpt-4o-mini", prompt: 1, completion: 1, want: "0.000001"},
		{name: "zero tokens", model: "gpt-5", prompt: 0, completion: 0, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCost(tt.model, tt.prompt, tt.completion)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCalculateCost_UnknownModel(t *testing.T) {
	assert.Nil(t, CalculateCost("llama-3-70b", 100, 100))
	assert.Nil(t, CalculateCost("", 100, 100))
}

func TestInferProvider(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{model: "claude-sonnet-4-20250514", want: "anthropic"},
		{model: "Claude-3-5-haiku", want: "anthropic"},
		{model: "gemini-2.0-flash", want: "gemini"},
		{model: "gpt-4.1", want: "openai"},
		{model: "o1-mini", want: "openai"},
		{model: "", want: "openai"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, InferProvider(tt.model))
		})
	}
}

func TestEstimateAutoCategorizeCost(t *testing.T) {
	t.Run("ten transactions and five categories", func(t *testing.T) {
		// prompt: 150 + 100*10 + 50*5 = 1400 tokens, completion: 50*10 = 500 tokens
		got := EstimateAutoCategorizeCost("gpt-4.1", 10, 5)
		require.NotNil(t, got)
		assert.Equal(t, "0.0068", got.String())
	})

	t.Run("no transactions", func(t *testing.T) {
		got := EstimateAutoCategorizeCost("gpt-4.1", 0, 5)
		require.NotNil(t, got)
		assert.True(t, got.IsZero())
	})

	t.Run("unpriced model", func(t *testing.T) {
		assert.Nil(t, EstimateAutoCategorizeCost("mystery-model", 3, 2))
	})
}
