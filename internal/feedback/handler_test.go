package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/testutil"
)

const family = "family-1"

// aiCategorize applies an AI category the way a categorization run does.
func aiCategorize(t *testing.T, db *testutil.TestDB, txn model.Transaction, cat model.Category, confidence float64) {
	t.Helper()
	ctx := context.Background()

	id := cat.ID
	changed, err := db.Storage.EnrichAttribute(ctx, txn.ID, model.AttributeCategoryID, &id, model.SourceAI)
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, db.Storage.UpdateTransactionExtra(ctx, txn.ID, model.TransactionExtra{
		AICategorizationConfidence: &confidence,
	}))
	require.NoError(t, db.Storage.LockAttribute(ctx, txn.ID, model.AttributeCategoryID))
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	groceries := db.Category(family, "Groceries")
	txn := db.Transaction(family, "WHOLEFDS MKT 10234", testutil.WithMerchant("Whole Foods"))
	aiCategorize(t, db, txn, groceries, 0.72)

	h := NewHandler(db.Storage, nil)
	approval, err := h.Approve(ctx, family, txn.ID)
	require.NoError(t, err)
	assert.True(t, approval.PatternCreated)
	assert.Equal(t, "whole foods", approval.Pattern.NormalizedMerchant)
	assert.Equal(t, groceries.ID, approval.Pattern.CategoryID)

	patterns, err := db.Storage.GetLearnedPatterns(ctx, family)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Whole Foods", patterns[0].MerchantName)

	got := db.MustTransaction(txn.ID)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, groceries.ID, *got.CategoryID)
	assert.Nil(t, got.Extra.AICategorizationConfidence)
	assert.True(t, got.Extra.AIFeedbackGiven)
	assert.Equal(t, model.FeedbackApproved, got.Extra.AIFeedbackType)
	assert.NotNil(t, got.Extra.AIFeedbackAt)

	locked, err := db.Storage.IsLocked(ctx, txn.ID, model.AttributeCategoryID)
	require.NoError(t, err)
	assert.True(t, locked)

	accuracy, err := h.Accuracy(ctx, family, WindowAllTime)
	require.NoError(t, err)
	require.Len(t, accuracy, 1)
	assert.Equal(t, "Groceries", accuracy[0].CategoryName)
	assert.Equal(t, 1, accuracy[0].Approved)
	assert.Equal(t, 1, accuracy[0].Total)
}

func TestApprove_WithoutMerchantLearnsDescription(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	dining := db.Category(family, "Dining")
	txn := db.Transaction(family, "MCDONALDS #4521")
	aiCategorize(t, db, txn, dining, 0.8)

	approval, err := NewHandler(db.Storage, nil).Approve(ctx, family, txn.ID)
	require.NoError(t, err)
	assert.True(t, approval.PatternCreated)
	assert.Equal(t, "MCDONALDS #4521", approval.Pattern.MerchantName)
	assert.Equal(t, "mcdonalds 4521", approval.Pattern.NormalizedMerchant)
}

func TestApprove_KnownMerchantKeepsPattern(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	groceries := db.Category(family, "Groceries")
	db.Pattern(family, "Whole Foods", groceries)

	txn := db.Transaction(family, "WHOLE FOODS #88", testutil.WithMerchant("Whole Foods"))
	aiCategorize(t, db, txn, groceries, 0.9)

	approval, err := NewHandler(db.Storage, nil).Approve(ctx, family, txn.ID)
	require.NoError(t, err)
	assert.False(t, approval.PatternCreated)

	patterns, err := db.Storage.GetLearnedPatterns(ctx, family)
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
	assert.True(t, db.MustTransaction(txn.ID).Extra.AIFeedbackGiven)
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	dining := db.Category(family, "Dining")
	txn := db.Transaction(family, "SHELL OIL 5521")
	aiCategorize(t, db, txn, dining, 0.64)

	h := NewHandler(db.Storage, nil)
	require.NoError(t, h.Reject(ctx, family, txn.ID))

	got := db.MustTransaction(txn.ID)
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.Extra.AICategorizationConfidence)
	assert.True(t, got.Extra.AIFeedbackGiven)
	assert.Equal(t, model.FeedbackRejected, got.Extra.AIFeedbackType)

	locked, err := db.Storage.IsLocked(ctx, txn.ID, model.AttributeCategoryID)
	require.NoError(t, err)
	assert.False(t, locked)

	patterns, err := db.Storage.GetLearnedPatterns(ctx, family)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	// The transaction is open to automatic categorization again.
	candidates, err := db.Storage.GetTransactionsToCategorize(ctx, family, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, txn.ID, candidates[0].ID)

	accuracy, err := h.Accuracy(ctx, family, Window7Days)
	require.NoError(t, err)
	require.Len(t, accuracy, 1)
	assert.Zero(t, accuracy[0].Approved)
	assert.Equal(t, 1, accuracy[0].Total)
	assert.Zero(t, accuracy[0].Rate())
}

func TestFeedback_Preconditions(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	groceries := db.Category(family, "Groceries")
	h := NewHandler(db.Storage, nil)

	userSet := db.Transaction(family, "FARMERS MARKET")
	id := groceries.ID
	_, err := db.Storage.EnrichAttribute(ctx, userSet.ID, model.AttributeCategoryID, &id, model.SourceUser)
	require.NoError(t, err)

	plain := db.Transaction(family, "UNCATEGORIZED SHOP")

	reviewed := db.Transaction(family, "TRADER JOES")
	aiCategorize(t, db, reviewed, groceries, 0.8)
	_, err = h.Approve(ctx, family, reviewed.ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		id   string
	}{
		{name: "user categorized", id: userSet.ID},
		{name: "uncategorized", id: plain.ID},
		{name: "already reviewed", id: reviewed.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Approve(ctx, family, tt.id)
			assert.ErrorIs(t, err, ErrNotAICategorized)

			err = h.Reject(ctx, family, tt.id)
			assert.ErrorIs(t, err, ErrNotAICategorized)
		})
	}

	t.Run("other family", func(t *testing.T) {
		txn := db.Transaction("family-2", "SAFEWAY")
		_, err := h.Approve(ctx, family, txn.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("missing transaction", func(t *testing.T) {
		err := h.Reject(ctx, family, "does-not-exist")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestLearn(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	dining := db.Category(family, "Dining")
	foreign := db.Category("family-2", "Dining")
	h := NewHandler(db.Storage, nil)

	p, created, err := h.Learn(ctx, family, "Chipotle Mexican Grill", dining.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "chipotle mexican grill", p.NormalizedMerchant)

	_, created, err = h.Learn(ctx, family, "CHIPOTLE MEXICAN GRILL", dining.ID)
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = h.Learn(ctx, family, "!!!", dining.ID)
	assert.ErrorIs(t, err, ErrEmptyMerchant)

	_, _, err = h.Learn(ctx, family, "Panera", foreign.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    Window
		wantErr bool
	}{
		{in: "7d", want: Window7Days},
		{in: "7_days", want: Window7Days},
		{in: "", want: Window30Days},
		{in: "30D", want: Window30Days},
		{in: "all_time", want: WindowAllTime},
		{in: "fortnight", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindow(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindow_Since(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 6, 23, 12, 0, 0, 0, time.UTC), *Window7Days.Since(now))
	assert.Equal(t, time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC), *Window30Days.Since(now))
	assert.Nil(t, WindowAllTime.Since(now))
}

func TestAccuracy_WindowExcludesOldFeedback(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	groceries := db.Category(family, "Groceries")

	old := time.Now().UTC().AddDate(0, 0, -20)
	require.NoError(t, db.Storage.SaveFeedback(ctx, &model.CategorizationFeedback{
		FamilyID:      family,
		TransactionID: "txn-old",
		CategoryID:    groceries.ID,
		CategoryName:  groceries.Name,
		Outcome:       model.FeedbackApproved,
		CreatedAt:     old,
	}))
	require.NoError(t, db.Storage.SaveFeedback(ctx, &model.CategorizationFeedback{
		FamilyID:      family,
		TransactionID: "txn-new",
		CategoryID:    groceries.ID,
		CategoryName:  groceries.Name,
		Outcome:       model.FeedbackRejected,
	}))

	h := NewHandler(db.Storage, nil)

	week, err := h.Accuracy(ctx, family, Window7Days)
	require.NoError(t, err)
	require.Len(t, week, 1)
	assert.Equal(t, 1, week[0].Total)
	assert.Zero(t, week[0].Approved)

	month, err := h.Accuracy(ctx, family, Window30Days)
	require.NoError(t, err)
	require.Len(t, month, 1)
	assert.Equal(t, 2, month[0].Total)
	assert.InDelta(t, 0.5, month[0].Rate(), 1e-9)
}
