package pattern

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinkdifferentdot/maybe/internal/model"
)

func learned(family, merchant, category string) model.LearnedPattern {
	return model.LearnedPattern{
		ID:                 family + ":" + merchant,
		FamilyID:           family,
		CategoryID:         category,
		MerchantName:       merchant,
		NormalizedMerchant: Normalize(merchant),
	}
}

func TestIndex_Find(t *testing.T) {
	idx := NewIndex([]model.LearnedPattern{
		learned("fam-a", "Starbucks Reserve", "coffee-reserve"),
		learned("fam-a", "Starbucks", "coffee"),
		learned("fam-a", "McDonald's", "dining"),
		learned("fam-a", "ab", "short"),
	})

	tests := []struct {
		name         string
		family       string
		merchant     string
		wantCategory string
		wantFound    bool
	}{
		{name: "exact match", family: "fam-a", merchant: "STARBUCKS", wantCategory: "coffee", wantFound: true},
		{name: "exact wins over earlier fuzzy candidate", family: "fam-a", merchant: "starbucks", wantCategory: "coffee", wantFound: true},
		{name: "fuzzy input contains pattern", family: "fam-a", merchant: "MCDONALDS #4521", wantCategory: "dining", wantFound: true},
		{name: "fuzzy pattern contains input", family: "fam-a", merchant: "Reserve", wantCategory: "coffee-reserve", wantFound: true},
		{name: "short strings never fuzzy match", family: "fam-a", merchant: "ab cd", wantFound: false},
		{name: "exact match on short pattern", family: "fam-a", merchant: "AB", wantCategory: "short", wantFound: true},
		{name: "no match", family: "fam-a", merchant: "Shell Oil", wantFound: false},
		{name: "empty after normalization", family: "fam-a", merchant: "!!!", wantFound: false},
		{name: "other family sees nothing", family: "fam-b", merchant: "McDonald's", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, found := idx.Find(tt.family, tt.merchant)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantCategory, p.CategoryID)
			}
		})
	}
}

func TestIndex_FamilyIsolation(t *testing.T) {
	idx := NewIndex([]model.LearnedPattern{learned("fam-a", "Blue Bottle Coffee", "coffee")})

	_, found := idx.Find("fam-a", "BLUE BOTTLE COFFEE")
	assert.True(t, found)

	_, found = idx.Find("fam-b", "BLUE BOTTLE COFFEE")
	assert.False(t, found)
	assert.Equal(t, 0, idx.Len("fam-b"))
}

func TestIndex_AddIgnoresDuplicates(t *testing.T) {
	idx := NewIndex(nil)
	idx.Add(learned("fam-a", "Netflix", "streaming"))
	idx.Add(learned("fam-a", "NETFLIX!", "other"))
	idx.Add(model.LearnedPattern{FamilyID: "fam-a", MerchantName: "Spotify", CategoryID: "music"})

	assert.Equal(t, 2, idx.Len("fam-a"))

	p, found := idx.Find("fam-a", "netflix")
	require.True(t, found)
	assert.Equal(t, "streaming", p.CategoryID)

	p, found = idx.Find("fam-a", "SPOTIFY USA")
	require.True(t, found)
	assert.Equal(t, "spotify", p.NormalizedMerchant)
}

func TestIndex_Rank(t *testing.T) {
	idx := NewIndex([]model.LearnedPattern{
		learned("fam-a", "Shell", "gas"),
		learned("fam-a", "Whole Foods Market", "groceries"),
		learned("fam-a", "Whole Foods", "groceries-short"),
		learned("fam-a", "Chevron", "gas-2"),
		learned("fam-a", "Target", "shopping"),
		learned("fam-b", "Whole Foods Market", "other-family"),
	})

	matches := idx.Rank("fam-a", []string{"WHOLE FOODS MARKET #10", "SHELL OIL 5521", "Chevron"}, 3)
	require.Len(t, matches, 3)

	assert.Equal(t, "groceries", matches[0].Pattern.CategoryID)
	assert.Equal(t, 18, matches[0].Score)
	assert.Equal(t, "groceries-short", matches[1].Pattern.CategoryID)
	assert.Equal(t, 11, matches[1].Score)
	assert.Equal(t, "gas-2", matches[2].Pattern.CategoryID)
	assert.Equal(t, 7, matches[2].Score)
}

func TestIndex_RankStableOnTies(t *testing.T) {
	idx := NewIndex([]model.LearnedPattern{
		learned("fam-a", "abcd", "first"),
		learned("fam-a", "wxyz", "second"),
	})

	matches := idx.Rank("fam-a", []string{"abcd wxyz"}, 5)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Pattern.CategoryID)
	assert.Equal(t, "second", matches[1].Pattern.CategoryID)
}

func TestIndex_RankEdgeCases(t *testing.T) {
	idx := NewIndex([]model.LearnedPattern{learned("fam-a", "Shell", "gas")})

	assert.Empty(t, idx.Rank("fam-a", nil, 3))
	assert.Empty(t, idx.Rank("fam-a", []string{"shell"}, 0))
	assert.Empty(t, idx.Rank("fam-b", []string{"shell"}, 3))
}

type stubSource struct {
	err      error
	patterns []model.LearnedPattern
}

func (s stubSource) GetLearnedPatterns(_ context.Context, familyID string) ([]model.LearnedPattern, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.LearnedPattern
	for _, p := range s.patterns {
		if p.FamilyID == familyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestLoad(t *testing.T) {
	src := stubSource{patterns: []model.LearnedPattern{
		learned("fam-a", "Chipotle", "restaurants"),
		learned("fam-b", "Chipotle", "fast-food"),
	}}

	idx, err := Load(context.Background(), src, "fam-b")
	require.NoError(t, err)
	p, found := idx.Find("fam-b", "CHIPOTLE 1234")
	require.True(t, found)
	assert.Equal(t, "fast-food", p.CategoryID)
	assert.Equal(t, 0, idx.Len("fam-a"))

	_, err = Load(context.Background(), stubSource{err: errors.New("boom")}, "fam-a")
	assert.Error(t, err)
}
