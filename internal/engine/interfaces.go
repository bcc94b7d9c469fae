package engine

import (
	"github.com/thinkdifferentdot/maybe/internal/llm"
)

// ProviderSource resolves the LLM provider used for the AI pass.
type ProviderSource interface {
	Preferred() (llm.Provider, error)
}

// ProgressFunc is called after each AI batch with the number of transactions
// sent so far and the number awaiting the AI pass.
type ProgressFunc func(done, total int)

var _ ProviderSource = (*llm.Registry)(nil)
