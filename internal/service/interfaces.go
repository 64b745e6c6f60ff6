package service

import (
	"context"

	"github.com/magicdeeds/magic-studio/internal/gemini"
	"github.com/magicdeeds/magic-studio/internal/models"
)

type UserStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, name string, tier models.Tier) error
	DebitEnergy(ctx context.Context, userID int64, amount int) (int, bool, error)
	CreditEnergy(ctx context.Context, userID int64, amount int) (int, error)
}

type ArchiveStore interface {
	Append(ctx context.Context, entry *models.ArchiveEntry) error
	GetByID(ctx context.Context, id string) (*models.ArchiveEntry, error)
	ListByUser(ctx context.Context, userID int64) ([]models.ArchiveEntry, error)
	Delete(ctx context.Context, userID int64, id string) (bool, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID int64) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) (bool, error)
}

type EnergyStore interface {
	Record(ctx context.Context, tx *models.EnergyTransaction) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.EnergyTransaction, error)
}

// Gateway is the generation client boundary; satisfied by *gemini.Client.
type Gateway interface {
	GenerateText(ctx context.Context, req gemini.TextRequest) (string, error)
	GenerateImages(ctx context.Context, req gemini.ImageRequest, n int) ([]string, error)
	GenerateVideo(ctx context.Context, req gemini.VideoRequest) (*gemini.Video, error)
}

type AssetStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}
