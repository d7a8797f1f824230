package maintenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Service runs scheduled storage maintenance. The only job today is
// Badger value log garbage collection, which Badger never runs on its
// own and which keeps vlog files from accumulating between analysis runs.
type Service struct {
	cron         *cron.Cron
	storage      interfaces.StorageManager
	config       *common.MaintenanceConfig
	logger       arbor.ILogger
	entryID      cron.EntryID
	mu           sync.Mutex // Protects gcInProgress
	running      bool
	gcInProgress bool
}

// NewService creates a maintenance service bound to the storage manager.
func NewService(storage interfaces.StorageManager, config *common.MaintenanceConfig, logger arbor.ILogger) *Service {
	return &Service{
		cron:    cron.New(),
		storage: storage,
		config:  config,
		logger:  logger,
	}
}

// Start registers the GC job and starts the cron scheduler. Disabled
// config is not an error, the service just stays idle.
func (s *Service) Start() error {
	if s.config != nil && !s.config.Enabled {
		s.logger.Info().Msg("Storage maintenance disabled by configuration")
		return nil
	}

	if s.running {
		return fmt.Errorf("maintenance service already running")
	}

	schedule := ""
	if s.config != nil {
		schedule = s.config.GCSchedule
	}
	if schedule == "" {
		schedule = "*/10 * * * *" // Default: every 10 minutes
	}

	id, err := s.cron.AddFunc(schedule, s.runGC)
	if err != nil {
		return fmt.Errorf("failed to schedule value log GC: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Float64("discard_ratio", s.discardRatio()).
		Msg("Storage maintenance started")

	return nil
}

// Stop halts the cron scheduler. A GC cycle already in flight is allowed
// to finish on its own.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	s.cron.Remove(s.entryID)
	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Storage maintenance stopped")
	return nil
}

// runGC executes one value log GC cycle. Cycles never overlap, if the
// previous one is still compacting when the next tick fires we skip.
func (s *Service) runGC() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in storage GC task")
		}
	}()

	s.mu.Lock()
	if s.gcInProgress {
		s.mu.Unlock()
		s.logger.Debug().Msg("Previous GC cycle still running, skipping this tick")
		return
	}
	s.gcInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.gcInProgress = false
		s.mu.Unlock()
	}()

	start := time.Now()
	if err := s.storage.RunValueLogGC(s.discardRatio()); err != nil {
		s.logger.Warn().Err(err).Msg("Value log GC failed")
		return
	}

	s.logger.Debug().
		Dur("duration", time.Since(start)).
		Msg("Value log GC cycle completed")
}

// discardRatio returns the configured ratio clamped to Badger's valid
// range. RunValueLogGC rejects ratios outside (0, 1].
func (s *Service) discardRatio() float64 {
	if s.config == nil || s.config.GCDiscardRatio <= 0 || s.config.GCDiscardRatio > 1 {
		return 0.5
	}
	return s.config.GCDiscardRatio
}
