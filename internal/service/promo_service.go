package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magicdeeds/magic-studio/internal/metrics"
	"github.com/magicdeeds/magic-studio/internal/models"
	"github.com/magicdeeds/magic-studio/internal/repository"
)

type PromoService struct {
	promos *repository.PromoRepository
}

func NewPromoService(promos *repository.PromoRepository) *PromoService {
	return &PromoService{promos: promos}
}

// CreatePromo registers a new promo code with an energy grant and a use limit.
func (s *PromoService) CreatePromo(ctx context.Context, code string, energy, maxUses int) (*models.PromoCode, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: promo code cannot be empty", ErrInvalidRequest)
	}
	if energy <= 0 || maxUses <= 0 {
		return nil, fmt.Errorf("%w: energy and max uses must be positive", ErrInvalidRequest)
	}

	promo := &models.PromoCode{Code: code, Energy: energy, MaxUses: maxUses}
	if err := s.promos.Create(ctx, promo); err != nil {
		return nil, fmt.Errorf("create promo: %w", err)
	}
	return promo, nil
}

// Apply redeems a promo code for the user, crediting its energy grant.
// The whole redemption runs in one transaction so a code cannot be
// redeemed past its use limit or twice by the same user.
func (s *PromoService) Apply(ctx context.Context, userID int64, code string) (int, error) {
	promo, err := s.promos.GetByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("get promo: %w", err)
	}
	if promo == nil {
		return 0, ErrPromoInvalid
	}

	tx, err := s.promos.DB().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var uses, maxUses int
	row := tx.QueryRowContext(ctx, `SELECT uses, max_uses FROM promo_codes WHERE id = ? FOR UPDATE`, promo.ID)
	if err := row.Scan(&uses, &maxUses); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrPromoInvalid
		}
		return 0, fmt.Errorf("lock promo: %w", err)
	}
	if uses >= maxUses {
		return 0, fmt.Errorf("%w: use limit reached", ErrPromoInvalid)
	}

	row = tx.QueryRowContext(ctx, `SELECT 1 FROM promo_redemptions WHERE user_id = ? AND promo_code_id = ?`, userID, promo.ID)
	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("check redemption: %w", err)
		}
	} else {
		return 0, ErrPromoAlreadyRedeemed
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO promo_redemptions (user_id, promo_code_id) VALUES (?, ?)`, userID, promo.ID); err != nil {
		return 0, fmt.Errorf("insert redemption: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE promo_codes SET uses = uses + 1 WHERE id = ?`, promo.ID); err != nil {
		return 0, fmt.Errorf("increment promo uses: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET magic_energy = magic_energy + ?, updated_at = NOW() WHERE id = ?`, promo.Energy, userID); err != nil {
		return 0, fmt.Errorf("add promo energy: %w", err)
	}

	var balance int
	if err := tx.QueryRowContext(ctx, `SELECT magic_energy FROM users WHERE id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO energy_transactions (user_id, amount, balance_after, reason, reference)
VALUES (?, ?, ?, ?, ?)`, userID, promo.Energy, balance, models.ReasonPromo, promo.Code); err != nil {
		return 0, fmt.Errorf("record promo transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit promo tx: %w", err)
	}

	metrics.EnergyCreditedTotal.Add(float64(promo.Energy))
	return balance, nil
}
