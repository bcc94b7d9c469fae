package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/thinkdifferentdot/maybe/internal/model"
)

// SaveUsage appends a row to the usage ledger.
func (s *SQLiteStorage) SaveUsage(ctx context.Context, record *model.UsageRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUsage(record); err != nil {
		return err
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	metadata := "{}"
	if len(record.Metadata) > 0 {
		b, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode usage metadata: %w", err)
		}
		metadata = string(b)
	}

	var cost sql.NullString
	if record.EstimatedCost != nil {
		cost = sql.NullString{String: record.EstimatedCost.String(), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO llm_usages (
			id, family_id, provider, model, operation,
			prompt_tokens, completion_tokens, total_tokens,
			estimated_cost, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.FamilyID, record.Provider, record.Model, record.Operation,
		record.PromptTokens, record.CompletionTokens, record.TotalTokens,
		cost, metadata, record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save usage record: %w", err)
	}
	return nil
}

// GetUsageRecords returns the family's usage rows, newest first. A nil since
// returns the whole ledger.
func (s *SQLiteStorage) GetUsageRecords(ctx context.Context, familyID string, since *time.Time) ([]model.UsageRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, family_id, provider, model, operation,
			prompt_tokens, completion_tokens, total_tokens,
			estimated_cost, metadata, created_at
		FROM llm_usages
		WHERE family_id = ?`
	args := []any{familyID}
	if since != nil {
		query += " AND created_at >= ?"
		args = append(args, since.UTC())
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.UsageRecord
	for rows.Next() {
		var (
			r        model.UsageRecord
			cost     sql.NullString
			metadata string
		)
		if err := rows.Scan(&r.ID, &r.FamilyID, &r.Provider, &r.Model, &r.Operation,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&cost, &metadata, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		if cost.Valid {
			d, err := decimal.NewFromString(cost.String)
			if err != nil {
				return nil, fmt.Errorf("invalid estimated cost %q: %w", cost.String, err)
			}
			r.EstimatedCost = &d
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode usage metadata: %w", err)
			}
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
