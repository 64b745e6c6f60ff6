package models

import "time"

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

type ModelType string

const (
	ModelTextFlash  ModelType = "gemini-3-flash-preview"
	ModelTextPro    ModelType = "gemini-3-pro-preview"
	ModelImageFlash ModelType = "gemini-2.5-flash-image"
	ModelImagePro   ModelType = "gemini-3-pro-image-preview"
	ModelVideoFast  ModelType = "veo-3.1-fast-generate-preview"
	ModelVideoHD    ModelType = "veo-3.1-generate-preview"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// energyCosts is the fixed price table per model, in magic energy units.
var energyCosts = map[ModelType]int{
	ModelTextFlash:  1,
	ModelTextPro:    2,
	ModelImageFlash: 3,
	ModelImagePro:   6,
	ModelVideoFast:  70,
	ModelVideoHD:    140,
}

// EnergyCost returns the per-call energy price for a model, or 0 for
// unknown models. Batch multiplication is the caller's concern.
func EnergyCost(model ModelType) int {
	return energyCosts[model]
}

// KindOf maps a model identifier to the content kind it produces.
func KindOf(model ModelType) Kind {
	switch model {
	case ModelTextFlash, ModelTextPro:
		return KindText
	case ModelImageFlash, ModelImagePro:
		return KindImage
	case ModelVideoFast, ModelVideoHD:
		return KindVideo
	}
	return ""
}

type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Tier         Tier
	MagicEnergy  int
	IsGuest      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ArchiveEntry struct {
	ID        string
	UserID    int64
	Title     string
	Kind      Kind
	Content   string
	Preview   string
	Tags      []string
	CreatedAt time.Time
}

type NotificationKind string

const (
	NotificationSystem  NotificationKind = "system"
	NotificationUpdate  NotificationKind = "update"
	NotificationFeature NotificationKind = "feature"
	NotificationAlert   NotificationKind = "alert"
)

type Notification struct {
	ID        int64
	UserID    int64
	Title     string
	Body      string
	Kind      NotificationKind
	Read      bool
	CreatedAt time.Time
}

type TransactionReason string

const (
	ReasonGeneration TransactionReason = "generation"
	ReasonRecharge   TransactionReason = "recharge"
	ReasonPromo      TransactionReason = "promo"
	ReasonSignup     TransactionReason = "signup"
)

// EnergyTransaction is one row of the balance audit trail. Amount is
// negative for debits and positive for credits.
type EnergyTransaction struct {
	ID           int64
	UserID       int64
	Amount       int
	BalanceAfter int
	Reason       TransactionReason
	Reference    string
	CreatedAt    time.Time
}

type PromoCode struct {
	ID        int64
	Code      string
	Energy    int
	MaxUses   int
	Uses      int
	CreatedAt time.Time
}
