package service

import (
	"context"
	"fmt"

	"github.com/magicdeeds/magic-studio/internal/models"
)

type ArchiveService struct {
	archive ArchiveStore
}

func NewArchiveService(archive ArchiveStore) *ArchiveService {
	return &ArchiveService{archive: archive}
}

func (s *ArchiveService) List(ctx context.Context, userID int64) ([]models.ArchiveEntry, error) {
	entries, err := s.archive.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	return entries, nil
}

// Get returns a single entry, scoped to its owner.
func (s *ArchiveService) Get(ctx context.Context, userID int64, id string) (*models.ArchiveEntry, error) {
	entry, err := s.archive.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get archive entry: %w", err)
	}
	if entry == nil || entry.UserID != userID {
		return nil, nil
	}
	return entry, nil
}

// Delete removes one entry; deletion is the only mutation the archive
// permits after creation.
func (s *ArchiveService) Delete(ctx context.Context, userID int64, id string) (bool, error) {
	return s.archive.Delete(ctx, userID, id)
}
