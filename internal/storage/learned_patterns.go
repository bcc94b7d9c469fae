package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thinkdifferentdot/maybe/internal/model"
)

// GetLearnedPatterns returns the family's patterns in creation order.
func (s *SQLiteStorage) GetLearnedPatterns(ctx context.Context, familyID string) ([]model.LearnedPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, family_id, category_id, merchant_name, normalized_merchant, created_at
		FROM learned_patterns
		WHERE family_id = ?
		ORDER BY created_at, id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.LearnedPattern
	for rows.Next() {
		var p model.LearnedPattern
		if err := rows.Scan(&p.ID, &p.FamilyID, &p.CategoryID, &p.MerchantName, &p.NormalizedMerchant, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learned pattern: %w", err)
		}
		patterns = append(patterns, p)
	}

	return patterns, rows.Err()
}

// CreateLearnedPattern inserts p, filling in ID and CreatedAt when empty.
// It reports false when the family already has a pattern for the same
// normalized merchant.
func (s *SQLiteStorage) CreateLearnedPattern(ctx context.Context, p *model.LearnedPattern) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateLearnedPattern(p); err != nil {
		return false, err
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	result, err := s.q.ExecContext(ctx, `
		INSERT INTO learned_patterns (id, family_id, category_id, merchant_name, normalized_merchant, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(family_id, normalized_merchant) DO NOTHING`,
		p.ID, p.FamilyID, p.CategoryID, p.MerchantName, p.NormalizedMerchant, p.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create learned pattern: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// DeleteLearnedPattern removes a pattern of the family.
func (s *SQLiteStorage) DeleteLearnedPattern(ctx context.Context, familyID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx,
		`DELETE FROM learned_patterns WHERE family_id = ? AND id = ?`, familyID, id)
	if err != nil {
		return fmt.Errorf("failed to delete learned pattern: %w", err)
	}
	return requireAffected(result, "learned pattern "+id)
}
