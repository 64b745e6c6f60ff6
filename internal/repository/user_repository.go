package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magicdeeds/magic-studio/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, password_hash, tier, magic_energy, is_guest, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var guest int
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Tier, &u.MagicEnergy, &guest, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsGuest = guest != 0
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (email, name, password_hash, tier, magic_energy, is_guest)
VALUES (?, ?, ?, ?, ?, ?)`
	guest := 0
	if user.IsGuest {
		guest = 1
	}
	res, err := r.db.ExecContext(ctx, query, user.Email, user.Name, user.PasswordHash, user.Tier, user.MagicEnergy, guest)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	return user, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, name string, tier models.Tier) error {
	const query = `UPDATE users SET name = ?, tier = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, name, tier, userID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// DebitEnergy atomically deducts amount from the user's balance. The
// conditional WHERE guards against concurrent requests draining a balance
// that only covers one of them; ok reports whether the debit was applied.
func (r *UserRepository) DebitEnergy(ctx context.Context, userID int64, amount int) (int, bool, error) {
	const query = `
UPDATE users SET magic_energy = magic_energy - ?, updated_at = NOW()
WHERE id = ? AND magic_energy >= ?`
	res, err := r.db.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return 0, false, fmt.Errorf("debit energy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}
	balance, err := r.balance(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

// CreditEnergy adds amount to the user's balance and returns the new balance.
func (r *UserRepository) CreditEnergy(ctx context.Context, userID int64, amount int) (int, error) {
	const query = `UPDATE users SET magic_energy = magic_energy + ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, userID); err != nil {
		return 0, fmt.Errorf("credit energy: %w", err)
	}
	return r.balance(ctx, userID)
}

func (r *UserRepository) balance(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT magic_energy FROM users WHERE id = ?`
	var balance int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}
