// Package pattern normalizes merchant names and matches them against learned patterns.
package pattern

import (
	"context"

	"github.com/thinkdifferentdot/maybe/internal/model"
)

// Source loads the learned patterns of a family.
type Source interface {
	GetLearnedPatterns(ctx context.Context, familyID string) ([]model.LearnedPattern, error)
}

// Finder resolves a merchant name to a learned pattern within a family.
type Finder interface {
	Find(familyID, merchantName string) (model.LearnedPattern, bool)
}

// Match is a learned pattern scored against a set of merchant names.
type Match struct {
	Pattern model.LearnedPattern
	Score   int
}
