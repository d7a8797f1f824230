package models

import "time"

// RunState tracks where an analysis run is in its lifecycle. Transitions are
// strictly forward except that a resumed run re-enters RunningModule at the
// first module without a stored output.
type RunState string

const (
	RunStateIdle          RunState = "idle"
	RunStatePlanning      RunState = "planning"
	RunStateRunningModule RunState = "running_module"
	RunStateIntegrating   RunState = "integrating"
	RunStateConsolidating RunState = "consolidating"
	RunStateDone          RunState = "done"
	RunStateFailed        RunState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateFailed
}

// AnalysisRun is the persisted execution record for one pipeline pass over a
// workpaper. CurrentModule is only meaningful while State is RunningModule.
type AnalysisRun struct {
	ID            string     `json:"id" badgerhold:"key"` // run_{uuid}
	WorkpaperID   string     `json:"workpaper_id"`
	State         RunState   `json:"state"`
	CurrentModule string     `json:"current_module,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewAnalysisRun creates an idle run bound to a workpaper.
func NewAnalysisRun(id, workpaperID string) *AnalysisRun {
	now := time.Now().UTC()
	return &AnalysisRun{
		ID:          id,
		WorkpaperID: workpaperID,
		State:       RunStateIdle,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the run into the given state and stamps the change.
func (r *AnalysisRun) Transition(state RunState) {
	r.State = state
	r.UpdatedAt = time.Now().UTC()
	if state.Terminal() {
		done := r.UpdatedAt
		r.CompletedAt = &done
	}
	if state != RunStateRunningModule {
		r.CurrentModule = ""
	}
}
