package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// mockStorageManager records RunValueLogGC calls. The other methods
// exist only to satisfy the interface.
type mockStorageManager struct {
	mu     sync.Mutex
	calls  int
	ratios []float64
	gcFunc func(discardRatio float64) error
}

func (m *mockStorageManager) WorkpaperStorage() interfaces.WorkpaperStorage { return nil }
func (m *mockStorageManager) RunStorage() interfaces.RunStorage             { return nil }
func (m *mockStorageManager) KVStorage() interfaces.KeyValueStorage         { return nil }
func (m *mockStorageManager) DB() interface{}                               { return nil }
func (m *mockStorageManager) Close() error                                  { return nil }

func (m *mockStorageManager) LoadVariablesFromFiles(ctx context.Context, dirPath string) error {
	return nil
}

func (m *mockStorageManager) LoadEnvFile(ctx context.Context, filePath string) error {
	return nil
}

func (m *mockStorageManager) RunValueLogGC(discardRatio float64) error {
	m.mu.Lock()
	m.calls++
	m.ratios = append(m.ratios, discardRatio)
	m.mu.Unlock()
	if m.gcFunc != nil {
		return m.gcFunc(discardRatio)
	}
	return nil
}

func (m *mockStorageManager) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestService(storage interfaces.StorageManager, config *common.MaintenanceConfig) *Service {
	return NewService(storage, config, arbor.NewLogger())
}

func TestStartAndStop(t *testing.T) {
	svc := newTestService(&mockStorageManager{}, &common.MaintenanceConfig{
		Enabled:        true,
		GCSchedule:     "*/10 * * * *",
		GCDiscardRatio: 0.5,
	})

	require.NoError(t, svc.Start())
	assert.True(t, svc.running)

	require.NoError(t, svc.Stop())
	assert.False(t, svc.running)
}

func TestStartDisabled(t *testing.T) {
	svc := newTestService(&mockStorageManager{}, &common.MaintenanceConfig{Enabled: false})

	require.NoError(t, svc.Start())
	assert.False(t, svc.running)

	// Stop on an idle service is a no-op.
	require.NoError(t, svc.Stop())
}

func TestStartTwiceFails(t *testing.T) {
	svc := newTestService(&mockStorageManager{}, &common.MaintenanceConfig{
		Enabled:    true,
		GCSchedule: "*/10 * * * *",
	})

	require.NoError(t, svc.Start())
	defer svc.Stop()

	err := svc.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestStartInvalidSchedule(t *testing.T) {
	svc := newTestService(&mockStorageManager{}, &common.MaintenanceConfig{
		Enabled:    true,
		GCSchedule: "not a cron expression",
	})

	err := svc.Start()
	require.Error(t, err)
	assert.False(t, svc.running)
}

func TestRunGCUsesConfiguredRatio(t *testing.T) {
	storage := &mockStorageManager{}
	svc := newTestService(storage, &common.MaintenanceConfig{
		Enabled:        true,
		GCDiscardRatio: 0.7,
	})

	svc.runGC()

	require.Equal(t, 1, storage.callCount())
	assert.InDelta(t, 0.7, storage.ratios[0], 0.001)
}

func TestRunGCClampsInvalidRatio(t *testing.T) {
	for _, ratio := range []float64{0, -1, 1.5} {
		storage := &mockStorageManager{}
		svc := newTestService(storage, &common.MaintenanceConfig{
			Enabled:        true,
			GCDiscardRatio: ratio,
		})

		svc.runGC()

		require.Equal(t, 1, storage.callCount())
		assert.InDelta(t, 0.5, storage.ratios[0], 0.001, "ratio %v should clamp to default", ratio)
	}
}

func TestRunGCToleratesFailure(t *testing.T) {
	storage := &mockStorageManager{
		gcFunc: func(float64) error { return errors.New("value log gc failed") },
	}
	svc := newTestService(storage, &common.MaintenanceConfig{Enabled: true})

	// Failure is logged, not propagated. A second cycle still runs.
	svc.runGC()
	svc.runGC()

	assert.Equal(t, 2, storage.callCount())
}

func TestRunGCSkipsOverlappingCycles(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	storage := &mockStorageManager{
		gcFunc: func(float64) error {
			close(started)
			<-release
			return nil
		},
	}
	svc := newTestService(storage, &common.MaintenanceConfig{Enabled: true})

	done := make(chan struct{})
	go func() {
		svc.runGC()
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first GC cycle never started")
	}

	// Second tick while the first cycle is still compacting.
	svc.runGC()
	assert.Equal(t, 1, storage.callCount())

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first GC cycle never finished")
	}
}
