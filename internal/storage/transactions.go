package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/model"
	"github.com/thinkdifferentdot/maybe/internal/service"
)

const transactionColumns = `id, family_id, date, description, merchant_name, amount, classification, category_id, extra`

// SaveTransactions inserts or replaces transactions. Existing rows keep their
// category and metadata; only the upstream-owned fields are refreshed.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.inTx(ctx, func(q queryable) error {
		for _, txn := range transactions {
			classification := txn.Classification
			if classification == "" {
				classification = model.ClassificationExpense
			}
			extra, err := model.MarshalExtra(txn.Extra)
			if err != nil {
				return err
			}

			_, err = q.ExecContext(ctx, `
				INSERT INTO transactions (`+transactionColumns+`, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					date = excluded.date,
					description = excluded.description,
					merchant_name = excluded.merchant_name,
					amount = excluded.amount,
					classification = excluded.classification,
					updated_at = excluded.updated_at`,
				txn.ID, txn.FamilyID, txn.Date.UTC(), txn.Description, txn.MerchantName,
				txn.Amount, string(classification), nullString(txn.CategoryID), extra, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
		}
		return nil
	})
}

// GetTransactionByID returns a transaction or common.ErrNotFound.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// GetTransactions returns transactions matching filter, oldest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.FamilyID != "" {
		where = append(where, "family_id = ?")
		args = append(args, filter.FamilyID)
	}
	if filter.Uncategorized {
		where = append(where, "(category_id IS NULL OR category_id = '')")
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	return s.queryTransactions(ctx, query, args...)
}

// GetTransactionsToCategorize returns uncategorized transactions whose
// category is not locked.
func (s *SQLiteStorage) GetTransactionsToCategorize(ctx context.Context, familyID string, ids []string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.family_id = ?
		  AND (t.category_id IS NULL OR t.category_id = '')
		  AND NOT EXISTS (
			SELECT 1 FROM locked_attributes l
			WHERE l.entity_id = t.id AND l.attribute = ?
		  )`
	args := []any{familyID, model.AttributeCategoryID}

	if len(ids) > 0 {
		query += " AND t.id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY t.date, t.id"

	return s.queryTransactions(ctx, query, args...)
}

// UpdateTransactionExtra replaces the metadata of a transaction.
func (s *SQLiteStorage) UpdateTransactionExtra(ctx context.Context, id string, extra model.TransactionExtra) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	raw, err := model.MarshalExtra(extra)
	if err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE transactions SET extra = ?, updated_at = ? WHERE id = ?`,
		raw, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction extra: %w", err)
	}
	return requireAffected(result, "transaction "+id)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}

	return transactions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var (
		txn            model.Transaction
		classification string
		categoryID     sql.NullString
		extra          string
	)

	err := row.Scan(&txn.ID, &txn.FamilyID, &txn.Date, &txn.Description, &txn.MerchantName,
		&txn.Amount, &classification, &categoryID, &extra)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Classification = model.Classification(classification)
	if categoryID.Valid && categoryID.String != "" {
		id := categoryID.String
		txn.CategoryID = &id
	}
	if txn.Extra, err = model.UnmarshalExtra(extra); err != nil {
		return nil, err
	}

	return &txn, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return nil
}
