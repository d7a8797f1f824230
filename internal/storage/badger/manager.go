package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	workpaper interfaces.WorkpaperStorage
	run       interfaces.RunStorage
	kv        interfaces.KeyValueStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		workpaper: NewWorkpaperStorage(db, logger),
		run:       NewRunStorage(db, logger),
		kv:        NewKVStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// WorkpaperStorage returns the Workpaper storage interface
func (m *Manager) WorkpaperStorage() interfaces.WorkpaperStorage {
	return m.workpaper
}

// RunStorage returns the AnalysisRun storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// KVStorage returns the KeyValue storage interface
func (m *Manager) KVStorage() interfaces.KeyValueStorage {
	return m.kv
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// RunValueLogGC rewrites value log files where at least discardRatio of the
// data is stale. Badger only reclaims that space on explicit GC calls, so the
// maintenance scheduler invokes this periodically. Repeats until a pass
// rewrites nothing.
func (m *Manager) RunValueLogGC(discardRatio float64) error {
	if m.db == nil {
		return fmt.Errorf("storage not initialized")
	}

	rewritten := 0
	for {
		err := m.db.Store().Badger().RunValueLogGC(discardRatio)
		if err == badgerdb.ErrNoRewrite {
			break
		}
		if err != nil {
			return fmt.Errorf("value log gc failed: %w", err)
		}
		rewritten++
	}

	m.logger.Debug().Int("files_rewritten", rewritten).Msg("Badger value log GC completed")
	return nil
}
