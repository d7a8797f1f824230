package common

import (
	"github.com/google/uuid"
)

// NewWorkpaperID generates a unique workpaper document ID with the "wp_" prefix
// Format: wp_<uuid>
func NewWorkpaperID() string {
	return "wp_" + uuid.New().String()
}

// NewRunID generates a unique analysis run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewReportID generates a unique report ID with the "rpt_" prefix
// Format: rpt_<uuid>
func NewReportID() string {
	return "rpt_" + uuid.New().String()
}
