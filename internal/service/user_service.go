package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magicdeeds/magic-studio/internal/auth"
	"github.com/magicdeeds/magic-studio/internal/config"
	"github.com/magicdeeds/magic-studio/internal/metrics"
	"github.com/magicdeeds/magic-studio/internal/models"
)

type UserService struct {
	cfg           config.Config
	log           *slog.Logger
	users         UserStore
	energy        EnergyStore
	notifications NotificationStore
	jwt           *auth.JWTService
}

func NewUserService(cfg config.Config, log *slog.Logger, users UserStore, energy EnergyStore, notifications NotificationStore, jwt *auth.JWTService) *UserService {
	return &UserService{
		cfg:           cfg,
		log:           log,
		users:         users,
		energy:        energy,
		notifications: notifications,
		jwt:           jwt,
	}
}

// Register creates an account with the signup energy grant and issues a
// session token.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: invalid email", ErrInvalidRequest)
	}
	if len(password) < 8 {
		return nil, "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidRequest)
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Tier:         models.TierFree,
		MagicEnergy:  s.cfg.SignupEnergy,
	})
	if err != nil {
		return nil, "", err
	}

	if err := s.energy.Record(ctx, &models.EnergyTransaction{
		UserID:       user.ID,
		Amount:       s.cfg.SignupEnergy,
		BalanceAfter: s.cfg.SignupEnergy,
		Reason:       models.ReasonSignup,
	}); err != nil {
		s.log.Error("failed to record signup grant", "err", err, "user_id", user.ID)
	}

	token, err := s.jwt.Generate(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.Generate(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile renames the account. Tier changes go through billing, not
// through here.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidRequest)
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateProfile(ctx, user.ID, name, user.Tier); err != nil {
		return nil, err
	}
	user.Name = name
	return user, nil
}

// Recharge credits energy to the account. Payment processing is simulated;
// the amount is taken at face value.
func (s *UserService) Recharge(ctx context.Context, userID int64, amount int) (int, error) {
	if amount <= 0 || amount > 100000 {
		return 0, fmt.Errorf("%w: invalid recharge amount %d", ErrInvalidRequest, amount)
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}

	balance, err := s.users.CreditEnergy(ctx, user.ID, amount)
	if err != nil {
		return 0, err
	}
	metrics.EnergyCreditedTotal.Add(float64(amount))

	if err := s.energy.Record(ctx, &models.EnergyTransaction{
		UserID:       user.ID,
		Amount:       amount,
		BalanceAfter: balance,
		Reason:       models.ReasonRecharge,
	}); err != nil {
		s.log.Error("failed to record recharge", "err", err, "user_id", user.ID)
	}

	if err := s.notifications.Create(ctx, &models.Notification{
		UserID: user.ID,
		Title:  "Recharge complete",
		Body:   fmt.Sprintf("%d magic energy added. New balance: %d.", amount, balance),
		Kind:   models.NotificationSystem,
	}); err != nil {
		s.log.Error("failed to create recharge notification", "err", err, "user_id", user.ID)
	}

	return balance, nil
}

func (s *UserService) Transactions(ctx context.Context, userID int64, limit int) ([]models.EnergyTransaction, error) {
	return s.energy.ListByUser(ctx, userID, limit)
}
