package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/magicdeeds/magic-studio/internal/models"
)

type ArchiveRepository struct {
	db *sql.DB
}

func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func (r *ArchiveRepository) Append(ctx context.Context, entry *models.ArchiveEntry) error {
	tags, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	const query = `
INSERT INTO archive_entries (id, user_id, title, kind, content, preview, tags)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Title, entry.Kind, entry.Content, entry.Preview, string(tags)); err != nil {
		return fmt.Errorf("insert archive entry: %w", err)
	}
	return nil
}

func (r *ArchiveRepository) GetByID(ctx context.Context, id string) (*models.ArchiveEntry, error) {
	const query = `
SELECT id, user_id, title, kind, content, preview, tags, created_at
FROM archive_entries WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	entry, err := scanArchiveRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func (r *ArchiveRepository) ListByUser(ctx context.Context, userID int64) ([]models.ArchiveEntry, error) {
	const query = `
SELECT id, user_id, title, kind, content, preview, tags, created_at
FROM archive_entries WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer rows.Close()

	var entries []models.ArchiveEntry
	for rows.Next() {
		entry, err := scanArchiveRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (r *ArchiveRepository) Delete(ctx context.Context, userID int64, id string) (bool, error) {
	const query = `DELETE FROM archive_entries WHERE id = ? AND user_id = ?`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete archive entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanArchiveRow(scan func(...any) error) (*models.ArchiveEntry, error) {
	var entry models.ArchiveEntry
	var tags string
	if err := scan(&entry.ID, &entry.UserID, &entry.Title, &entry.Kind, &entry.Content, &entry.Preview, &tags, &entry.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan archive entry: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &entry.Tags); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}
	return &entry, nil
}
