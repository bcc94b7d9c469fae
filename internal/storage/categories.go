package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/model"
)

const categoryColumns = `id, family_id, name, parent_id, classification`

// SaveCategories inserts categories, replacing name, parent and
// classification of existing ids.
func (s *SQLiteStorage) SaveCategories(ctx context.Context, categories []model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(categories) == 0 {
		return fmt.Errorf("%w: categories", ErrEmptySlice)
	}
	for i := range categories {
		if err := validateCategory(&categories[i]); err != nil {
			return fmt.Errorf("category at index %d: %w", i, err)
		}
	}

	return s.inTx(ctx, func(q queryable) error {
		// Parents first so foreign keys resolve regardless of input order.
		ordered := make([]model.Category, 0, len(categories))
		for _, c := range categories {
			if !c.IsSubcategory() {
				ordered = append(ordered, c)
			}
		}
		for _, c := range categories {
			if c.IsSubcategory() {
				ordered = append(ordered, c)
			}
		}

		for _, c := range ordered {
			classification := c.Classification
			if classification == "" {
				classification = model.ClassificationExpense
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO categories (`+categoryColumns+`, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					parent_id = excluded.parent_id,
					classification = excluded.classification`,
				c.ID, c.FamilyID, c.Name, nullString(c.ParentID), string(classification), time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to save category %q: %w", c.Name, err)
			}
		}
		return nil
	})
}

// GetCategories returns the family's categories ordered by name.
func (s *SQLiteStorage) GetCategories(ctx context.Context, familyID string) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE family_id = ? ORDER BY name`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "family_id", familyID, "count", len(categories))
	return categories, nil
}

// GetCategoryByID returns a category or common.ErrNotFound.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, id string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, common.ErrNotFound)
	}
	return cat, err
}

// GetCategoryByName returns the family's category with the exact name or common.ErrNotFound.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, familyID, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE family_id = ? AND name = ?`, familyID, name)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, common.ErrNotFound)
	}
	return cat, err
}

func scanCategory(row scanner) (*model.Category, error) {
	var (
		cat            model.Category
		parentID       sql.NullString
		classification string
	)
	if err := row.Scan(&cat.ID, &cat.FamilyID, &cat.Name, &parentID, &classification); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	if parentID.Valid && parentID.String != "" {
		p := parentID.String
		cat.ParentID = &p
	}
	cat.Classification = model.Classification(classification)
	return &cat, nil
}
