package interfaces

import (
	"context"

	"github.com/ternarybob/aestimo/internal/models"
)

// WorkpaperStorage - persistence for core working papers
type WorkpaperStorage interface {
	// CRUD operations
	Save(wp *models.Workpaper) error
	Get(id string) (*models.Workpaper, error)
	Delete(id string) error

	// List operations
	List() ([]*models.Workpaper, error)
	Count() (int, error)
}

// RunStorage - persistence for analysis run state
type RunStorage interface {
	Save(run *models.AnalysisRun) error
	Get(id string) (*models.AnalysisRun, error)
	GetByWorkpaper(workpaperID string) ([]*models.AnalysisRun, error)
	List() ([]*models.AnalysisRun, error)
	Delete(id string) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	WorkpaperStorage() WorkpaperStorage
	RunStorage() RunStorage
	KVStorage() KeyValueStorage
	DB() interface{}
	Close() error

	// Startup loaders, run before config {key} replacement
	LoadVariablesFromFiles(ctx context.Context, dirPath string) error
	LoadEnvFile(ctx context.Context, filePath string) error

	// RunValueLogGC reclaims space in the underlying value log.
	// Badger never rewrites value log files on its own.
	RunValueLogGC(discardRatio float64) error
}
