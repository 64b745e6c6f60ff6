package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magicdeeds/magic-studio/internal/models"
)

type EnergyRepository struct {
	db *sql.DB
}

func NewEnergyRepository(db *sql.DB) *EnergyRepository {
	return &EnergyRepository{db: db}
}

func (r *EnergyRepository) Record(ctx context.Context, tx *models.EnergyTransaction) error {
	const query = `
INSERT INTO energy_transactions (user_id, amount, balance_after, reason, reference)
VALUES (?, ?, ?, ?, NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, tx.UserID, tx.Amount, tx.BalanceAfter, tx.Reason, tx.Reference)
	if err != nil {
		return fmt.Errorf("insert energy transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("energy transaction last insert id: %w", err)
	}
	tx.ID = id
	return nil
}

func (r *EnergyRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.EnergyTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, user_id, amount, balance_after, reason, COALESCE(reference, ''), created_at
FROM energy_transactions WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list energy transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.EnergyTransaction
	for rows.Next() {
		var tx models.EnergyTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.BalanceAfter, &tx.Reason, &tx.Reference, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan energy transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
