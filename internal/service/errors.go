package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInsufficientEnergy   = errors.New("insufficient magic energy")
	ErrGuestNotAllowed      = errors.New("guest accounts cannot generate content")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrPromoInvalid         = errors.New("promo code invalid")
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
)
