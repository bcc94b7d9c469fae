package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/thinkdifferentdot/maybe/internal/model"
)

// minFuzzyLength is the shortest normalized string allowed to take part in a
// substring match.
const minFuzzyLength = 3

type familyPatterns struct {
	exact   map[string]model.LearnedPattern
	ordered []model.LearnedPattern
}

// Index is an in-memory, family-scoped view of learned patterns.
type Index struct {
	families map[string]*familyPatterns
	mu       sync.RWMutex
}

// NewIndex builds an index from patterns of any number of families.
func NewIndex(patterns []model.LearnedPattern) *Index {
	idx := &Index{families: make(map[string]*familyPatterns)}
	for _, p := range patterns {
		idx.add(p)
	}
	return idx
}

// Load builds an index for a single family from src.
func Load(ctx context.Context, src Source, familyID string) (*Index, error) {
	patterns, err := src.GetLearnedPatterns(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load learned patterns: %w", err)
	}
	return NewIndex(patterns), nil
}

// Add inserts a pattern. A pattern whose normalized merchant is already known
// for the family is ignored.
func (idx *Index) Add(p model.LearnedPattern) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.add(p)
}

func (idx *Index) add(p model.LearnedPattern) {
	if p.NormalizedMerchant == "" {
		p.NormalizedMerchant = Normalize(p.MerchantName)
	}
	if p.NormalizedMerchant == "" {
		return
	}

	fp, ok := idx.families[p.FamilyID]
	if !ok {
		fp = &familyPatterns{exact: make(map[string]model.LearnedPattern)}
		idx.families[p.FamilyID] = fp
	}
	if _, exists := fp.exact[p.NormalizedMerchant]; exists {
		return
	}
	fp.exact[p.NormalizedMerchant] = p
	fp.ordered = append(fp.ordered, p)
}

// Len returns the number of patterns known for a family.
func (idx *Index) Len(familyID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if fp, ok := idx.families[familyID]; ok {
		return len(fp.ordered)
	}
	return 0
}

// Find returns the pattern for merchantName in the given family. An exact
// normalized match always wins; otherwise the first pattern where one string
// contains the other is returned.
func (idx *Index) Find(familyID, merchantName string) (model.LearnedPattern, bool) {
	normalized := Normalize(merchantName)
	if normalized == "" {
		return model.LearnedPattern{}, false
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fp, ok := idx.families[familyID]
	if !ok {
		return model.LearnedPattern{}, false
	}

	if p, ok := fp.exact[normalized]; ok {
		return p, true
	}

	for _, p := range fp.ordered {
		if overlap(normalized, p.NormalizedMerchant) > 0 {
			return p, true
		}
	}

	return model.LearnedPattern{}, false
}

// Rank scores the family's patterns against merchants and returns at most
// limit matches, highest score first. The score is the length of the shorter
// of the two overlapping strings; equal scores keep pattern insertion order.
func (idx *Index) Rank(familyID string, merchants []string, limit int) []Match {
	normalized := make([]string, 0, len(merchants))
	for _, m := range merchants {
		if n := Normalize(m); n != "" {
			normalized = append(normalized, n)
		}
	}
	if len(normalized) == 0 || limit <= 0 {
		return nil
	}

	idx.mu.RLock()
	fp, ok := idx.families[familyID]
	var candidates []model.LearnedPattern
	if ok {
		candidates = append(candidates, fp.ordered...)
	}
	idx.mu.RUnlock()

	var matches []Match
	for _, p := range candidates {
		best := 0
		for _, n := range normalized {
			if score := overlap(n, p.NormalizedMerchant); score > best {
				best = score
			}
		}
		if best > 0 {
			matches = append(matches, Match{Pattern: p, Score: best})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// overlap returns the length of the shorter string when one contains the
// other and the shorter one is long enough to be meaningful, else 0.
func overlap(a, b string) int {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < minFuzzyLength {
		return 0
	}
	if !strings.Contains(longer, shorter) {
		return 0
	}
	return len(shorter)
}
