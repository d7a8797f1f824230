package models

import "time"

// ProgressEventType labels pipeline progress notifications pushed to
// websocket subscribers.
type ProgressEventType string

const (
	EventRunStateChanged    ProgressEventType = "run_state_changed"
	EventPlanReady          ProgressEventType = "plan_ready"
	EventChunkProgress      ProgressEventType = "chunk_progress"
	EventModuleStarted      ProgressEventType = "module_started"
	EventModuleCompleted    ProgressEventType = "module_completed"
	EventContradictionFound ProgressEventType = "contradiction_found"
	EventReportReady        ProgressEventType = "report_ready"
)

// ProgressEvent is one pipeline progress notification. Percent is the share
// of planned modules with stored outputs, 0-100.
type ProgressEvent struct {
	Type      ProgressEventType `json:"type"`
	RunID     string            `json:"run_id"`
	Module    string            `json:"module,omitempty"`
	Message   string            `json:"message,omitempty"`
	Percent   int               `json:"percent"`
	Timestamp time.Time         `json:"timestamp"`
}
