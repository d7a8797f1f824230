package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// Save persists a run record. Lifecycle timestamps are owned by the model
// (Transition stamps UpdatedAt), only a zero UpdatedAt is filled in here.
func (s *RunStorage) Save(run *models.AnalysisRun) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = time.Now().UTC()
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) Get(id string) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// GetByWorkpaper returns all runs for a workpaper, newest first.
func (s *RunStorage) GetByWorkpaper(workpaperID string) ([]*models.AnalysisRun, error) {
	var runs []models.AnalysisRun
	query := badgerhold.Where("WorkpaperID").Eq(workpaperID).SortBy("StartedAt").Reverse()
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to get runs for workpaper %s: %w", workpaperID, err)
	}

	result := make([]*models.AnalysisRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) List() ([]*models.AnalysisRun, error) {
	var runs []models.AnalysisRun
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.AnalysisRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) Delete(id string) error {
	if err := s.db.Store().Delete(id, &models.AnalysisRun{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
