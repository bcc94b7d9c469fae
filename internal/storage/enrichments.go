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

// EnrichAttribute applies an enrichment write to a transaction attribute.
// The write is skipped when the attribute is locked and source is not the
// user, or when value equals what is stored. The column update and the
// provenance row are written in one transaction.
func (s *SQLiteStorage) EnrichAttribute(ctx context.Context, entityID, attribute string, value *string, source model.EnrichmentSource) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(entityID, "entityID"); err != nil {
		return false, err
	}
	column, err := validateAttribute(attribute)
	if err != nil {
		return false, err
	}

	changed := false
	err = s.inTx(ctx, func(q queryable) error {
		record, err := s.loadRecord(ctx, q, entityID, attribute, column)
		if err != nil {
			return err
		}

		if !record.Apply(value, source) {
			return nil
		}

		now := time.Now().UTC()
		// column comes from the enrichableColumns allow-list
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf(`UPDATE transactions SET %s = ?, updated_at = ? WHERE id = ?`, column),
			columnValue(column, value), now, entityID); err != nil {
			return fmt.Errorf("failed to update %s: %w", attribute, err)
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO data_enrichments (entity_id, attribute, source, value, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entity_id, attribute, source) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`,
			entityID, attribute, string(source), nullString(value), now); err != nil {
			return fmt.Errorf("failed to record enrichment: %w", err)
		}

		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		slog.Debug("enriched attribute",
			"entity_id", entityID,
			"attribute", attribute,
			"source", source)
	}
	return changed, nil
}

// LockAttribute freezes the attribute against non-user writes.
func (s *SQLiteStorage) LockAttribute(ctx context.Context, entityID, attribute string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := validateAttribute(attribute); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO locked_attributes (entity_id, attribute, locked_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id, attribute) DO NOTHING`,
		entityID, attribute, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", attribute, err)
	}
	return nil
}

// UnlockAttribute removes a lock. Unlocking an unlocked attribute is a no-op.
func (s *SQLiteStorage) UnlockAttribute(ctx context.Context, entityID, attribute string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := validateAttribute(attribute); err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM locked_attributes WHERE entity_id = ? AND attribute = ?`,
		entityID, attribute); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", attribute, err)
	}
	return nil
}

// IsLocked reports whether the attribute is locked.
func (s *SQLiteStorage) IsLocked(ctx context.Context, entityID, attribute string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return isLocked(ctx, s.q, entityID, attribute)
}

// GetEnrichment returns the current value of the attribute along with the
// source of the most recent write and the lock state.
func (s *SQLiteStorage) GetEnrichment(ctx context.Context, entityID, attribute string) (*model.EnrichmentRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	column, err := validateAttribute(attribute)
	if err != nil {
		return nil, err
	}
	return s.loadRecord(ctx, s.q, entityID, attribute, column)
}

// ClearAttribute nulls the attribute, removes the enrichment row written by
// source and unlocks the attribute.
func (s *SQLiteStorage) ClearAttribute(ctx context.Context, entityID, attribute string, source model.EnrichmentSource) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	column, err := validateAttribute(attribute)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(q queryable) error {
		// column comes from the enrichableColumns allow-list
		result, err := q.ExecContext(ctx,
			fmt.Sprintf(`UPDATE transactions SET %s = ?, updated_at = ? WHERE id = ?`, column),
			columnValue(column, nil), time.Now().UTC(), entityID)
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", attribute, err)
		}
		if err := requireAffected(result, "transaction "+entityID); err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx,
			`DELETE FROM data_enrichments WHERE entity_id = ? AND attribute = ? AND source = ?`,
			entityID, attribute, string(source)); err != nil {
			return fmt.Errorf("failed to remove enrichment: %w", err)
		}

		if _, err := q.ExecContext(ctx,
			`DELETE FROM locked_attributes WHERE entity_id = ? AND attribute = ?`,
			entityID, attribute); err != nil {
			return fmt.Errorf("failed to unlock %s: %w", attribute, err)
		}
		return nil
	})
}

func (s *SQLiteStorage) loadRecord(ctx context.Context, q queryable, entityID, attribute, column string) (*model.EnrichmentRecord, error) {
	record := &model.EnrichmentRecord{EntityID: entityID, Attribute: attribute}

	var current sql.NullString
	// column comes from the enrichableColumns allow-list
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transactions WHERE id = ?`, column), entityID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", entityID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", attribute, err)
	}
	if current.Valid && current.String != "" {
		v := current.String
		record.Value = &v
	}

	var (
		source    string
		updatedAt time.Time
	)
	err = q.QueryRowContext(ctx, `
		SELECT source, updated_at FROM data_enrichments
		WHERE entity_id = ? AND attribute = ?
		ORDER BY updated_at DESC
		LIMIT 1`, entityID, attribute).Scan(&source, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read enrichment: %w", err)
	default:
		record.Source = model.EnrichmentSource(source)
		record.UpdatedAt = updatedAt
	}

	if record.Locked, err = isLocked(ctx, q, entityID, attribute); err != nil {
		return nil, err
	}
	return record, nil
}

func isLocked(ctx context.Context, q queryable, entityID, attribute string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM locked_attributes WHERE entity_id = ? AND attribute = ?`,
		entityID, attribute).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to read lock: %w", err)
	}
	return n > 0, nil
}

// columnValue converts an enrichment value to what the column accepts.
// merchant_name is NOT NULL, so clearing it stores an empty string.
func columnValue(column string, value *string) any {
	if column == "merchant_name" {
		if value == nil {
			return ""
		}
		return *value
	}
	return nullString(value)
}
