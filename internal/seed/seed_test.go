package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/testutil"
)

const sample = `
families:
  - id: family-1
    categories:
      - name: Food
      - name: Groceries
        parent: Food
      - name: Salary
        classification: income
    transactions:
      - date: 2025-03-14
        description: WHOLEFDS MKT 10234
        merchant: Whole Foods
        amount: 84.12
      - id: txn-payroll
        date: 2025-03-15
        description: ACME CORP PAYROLL
        amount: -2500
        classification: income
    patterns:
      - merchant: Whole Foods
        category: Groceries
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Families, 1)

	fam := f.Families[0]
	assert.Equal(t, "family-1", fam.ID)
	assert.Len(t, fam.Categories, 3)
	assert.Equal(t, "Food", fam.Categories[1].Parent)
	assert.Len(t, fam.Transactions, 2)
	assert.InDelta(t, 84.12, fam.Transactions[0].Amount, 1e-9)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "unknown field", input: "families:\n  - id: f\n    accounts: []\n"},
		{name: "missing family id", input: "families:\n  - categories: []\n"},
		{name: "not yaml", input: "families: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrInvalidSeed)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Families)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	im := NewImporter(db.Storage, nil)

	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	stats, err := im.Import(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Stats{Families: 1, Categories: 3, Transactions: 2, Patterns: 1}, stats)

	groceries, err := db.Storage.GetCategoryByName(ctx, "family-1", "Groceries")
	require.NoError(t, err)
	food, err := db.Storage.GetCategoryByName(ctx, "family-1", "Food")
	require.NoError(t, err)
	require.NotNil(t, groceries.ParentID)
	assert.Equal(t, food.ID, *groceries.ParentID)

	salary, err := db.Storage.GetCategoryByName(ctx, "family-1", "Salary")
	require.NoError(t, err)
	assert.Equal(t, model.ClassificationIncome, salary.Classification)

	payroll := db.MustTransaction("txn-payroll")
	assert.Equal(t, model.ClassificationIncome, payroll.Classification)
	assert.True(t, payroll.Uncategorized())

	patterns, err := db.Storage.GetLearnedPatterns(ctx, "family-1")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, groceries.ID, patterns[0].CategoryID)
	assert.Equal(t, "whole foods", patterns[0].NormalizedMerchant)
}

func TestImport_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	im := NewImporter(db.Storage, nil)

	for range 2 {
		f, err := Parse(strings.NewReader(sample))
		require.NoError(t, err)
		_, err = im.Import(ctx, f)
		require.NoError(t, err)
	}

	categories, err := db.Storage.GetCategories(ctx, "family-1")
	require.NoError(t, err)
	assert.Len(t, categories, 3)

	candidates, err := db.Storage.GetTransactionsToCategorize(ctx, "family-1", nil)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)

	patterns, err := db.Storage.GetLearnedPatterns(ctx, "family-1")
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name   string
		family Family
	}{
		{
			name:   "unknown parent",
			family: Family{ID: "f", Categories: []Category{{Name: "Groceries", Parent: "Food"}}},
		},
		{
			name:   "pattern with unknown category",
			family: Family{ID: "f", Patterns: []Pattern{{Merchant: "Shell", Category: "Gas"}}},
		},
		{
			name:   "bad date",
			family: Family{ID: "f", Transactions: []Transaction{{Date: "14/03/2025", Description: "X"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			_, err := NewImporter(db.Storage, nil).Import(context.Background(), &File{Families: []Family{tt.family}})
			assert.ErrorIs(t, err, ErrInvalidSeed)
		})
	}
}
