package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thinkdifferentdot/maybe/internal/model"
)

// SaveFeedback appends a review outcome.
func (s *SQLiteStorage) SaveFeedback(ctx context.Context, feedback *model.CategorizationFeedback) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFeedback(feedback); err != nil {
		return err
	}

	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO categorization_feedback (
			id, family_id, transaction_id, category_id, category_name, outcome, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		feedback.ID, feedback.FamilyID, feedback.TransactionID, feedback.CategoryID,
		feedback.CategoryName, string(feedback.Outcome), feedback.Confidence, feedback.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// GetCategoryAccuracy aggregates approvals per category. A nil since covers
// all recorded feedback.
func (s *SQLiteStorage) GetCategoryAccuracy(ctx context.Context, familyID string, since *time.Time) ([]model.CategoryAccuracy, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	query := `
		SELECT category_id, category_name,
			SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END) AS approved,
			COUNT(*) AS total
		FROM categorization_feedback
		WHERE family_id = ?`
	args := []any{string(model.FeedbackApproved), familyID}
	if since != nil {
		query += " AND created_at >= ?"
		args = append(args, since.UTC())
	}
	query += " GROUP BY category_id, category_name ORDER BY category_name"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback accuracy: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accuracy []model.CategoryAccuracy
	for rows.Next() {
		var a model.CategoryAccuracy
		if err := rows.Scan(&a.CategoryID, &a.CategoryName, &a.Approved, &a.Total); err != nil {
			return nil, fmt.Errorf("failed to scan feedback accuracy: %w", err)
		}
		accuracy = append(accuracy, a)
	}

	return accuracy, rows.Err()
}
