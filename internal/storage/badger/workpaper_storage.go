package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// WorkpaperStorage implements the WorkpaperStorage interface for Badger
type WorkpaperStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWorkpaperStorage creates a new WorkpaperStorage instance
func NewWorkpaperStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WorkpaperStorage {
	return &WorkpaperStorage{
		db:     db,
		logger: logger,
	}
}

func (s *WorkpaperStorage) Save(wp *models.Workpaper) error {
	if wp.ID == "" {
		return fmt.Errorf("workpaper ID is required")
	}

	now := time.Now()
	if wp.CreatedAt.IsZero() {
		wp.CreatedAt = now
	}
	wp.UpdatedAt = now

	if err := s.db.Store().Upsert(wp.ID, wp); err != nil {
		return fmt.Errorf("failed to save workpaper: %w", err)
	}
	return nil
}

func (s *WorkpaperStorage) Get(id string) (*models.Workpaper, error) {
	var wp models.Workpaper
	if err := s.db.Store().Get(id, &wp); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("workpaper not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get workpaper: %w", err)
	}
	return &wp, nil
}

func (s *WorkpaperStorage) Delete(id string) error {
	if err := s.db.Store().Delete(id, &models.Workpaper{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete workpaper: %w", err)
	}
	return nil
}

func (s *WorkpaperStorage) List() ([]*models.Workpaper, error) {
	var wps []models.Workpaper
	query := badgerhold.Where("ID").Ne("").SortBy("UpdatedAt").Reverse()
	if err := s.db.Store().Find(&wps, query); err != nil {
		return nil, fmt.Errorf("failed to list workpapers: %w", err)
	}

	result := make([]*models.Workpaper, len(wps))
	for i := range wps {
		result[i] = &wps[i]
	}
	return result, nil
}

func (s *WorkpaperStorage) Count() (int, error) {
	count, err := s.db.Store().Count(&models.Workpaper{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count workpapers: %w", err)
	}
	return int(count), nil
}
