// Package usage keeps the LLM usage ledger: per-call token counts, estimated
// cost and per-provider summaries.
package usage

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/thinkdifferentdot/maybe/internal/config"
)

// price is USD per million tokens.
type price struct {
	prompt     decimal.Decimal
	completion decimal.Decimal
}

func usd(prompt, completion string) price {
	return price{
		prompt:     decimal.RequireFromString(prompt),
		completion: decimal.RequireFromString(completion),
	}
}

// pricing is keyed by model prefix; the longest matching prefix wins so dated
// snapshots like gpt-4.1-2025-04-14 use their family's price.
var pricing = map[string]price{
	"gpt-4.1":          usd("2.00", "8.00"),
	"gpt-4.1-mini":     usd("0.40", "1.60"),
	"gpt-4.1-nano":     usd("0.10", "0.40"),
	"gpt-4o":           usd("2.50", "10.00"),
	"gpt-4o-mini":      usd("0.15", "0.60"),
	"o1":               usd("15.00", "60.00"),
	"o1-mini":          usd("1.10", "4.40"),
	"o3-mini":          usd("1.10", "4.40"),
	"gpt-5":            usd("1.25", "10.00"),
	"claude-sonnet-4":  usd("3.00", "15.00"),
	"claude-opus-4":    usd("15.00", "75.00"),
	"claude-3-5-haiku": usd("0.80", "4.00"),
	"gemini-2.0-flash": usd("0.10", "0.40"),
	"gemini-2.5-flash": usd("0.30", "2.50"),
	"gemini-2.5-pro":   usd("1.25", "10.00"),
}

var perMillion = decimal.NewFromInt(1_000_000)

func lookupPrice(model string) (price, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	best := ""
	for prefix := range pricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return price{}, false
	}
	return pricing[best], true
}

// CalculateCost returns the USD cost of a call, rounded to six places, or nil
// when the model has no known price.
func CalculateCost(model string, promptTokens, completionTokens int) *decimal.Decimal {
	p, ok := lookupPrice(model)
	if !ok {
		return nil
	}
	cost := p.prompt.Mul(decimal.NewFromInt(int64(promptTokens))).
		Add(p.completion.Mul(decimal.NewFromInt(int64(completionTokens)))).
		Div(perMillion).
		Round(6)
	return &cost
}

// InferProvider guesses the provider from a model name. Anything that is not
// recognizably Anthropic or Gemini is attributed to OpenAI.
func InferProvider(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "claude"):
		return config.ProviderAnthropic
	case strings.HasPrefix(m, "gemini"):
		return config.ProviderGemini
	default:
		return config.ProviderOpenAI
	}
}

// Token estimates for one auto-categorize request.
const (
	basePromptTokens           = 150
	promptTokensPerTransaction = 100
	promptTokensPerCategory    = 50
	completionTokensPerTxn     = 50
)

// EstimateAutoCategorizeCost predicts the cost of categorizing transactions
// against categories. It is zero for no transactions and nil for an unpriced model.
func EstimateAutoCategorizeCost(model string, transactions, categories int) *decimal.Decimal {
	if transactions <= 0 {
		zero := decimal.Zero
		return &zero
	}
	promptTokens := basePromptTokens + promptTokensPerTransaction*transactions + promptTokensPerCategory*categories
	completionTokens := completionTokensPerTxn * transactions
	return CalculateCost(model, promptTokens, completionTokens)
}
