package db

import (
	"time"

	"gorm.io/datatypes"
)

// Run statuses recorded in the ledger.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// PurgeRun is one ledger row per pipeline invocation. Its auto-increment
// primary key doubles as the run identifier, so identifiers keep
// increasing across restarts.
type PurgeRun struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	RunKey string `gorm:"size:36;uniqueIndex;not null" json:"runKey"`

	StartedAt  time.Time  `gorm:"index;not null" json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	Status  string `gorm:"size:16;index;not null" json:"status"`
	Trigger string `gorm:"size:32" json:"trigger"`

	// Cutoff is the creation-time bound used by every step of the run.
	Cutoff       time.Time `json:"cutoff"`
	DaysToRetain int       `json:"daysToRetain"`

	RowsDeleted int64  `json:"rowsDeleted"`
	FailedStep  string `gorm:"size:64" json:"failedStep,omitempty"`
	Error       string `gorm:"type:text" json:"error,omitempty"`

	// Steps holds a StepSummary per step that ran, in order.
	Steps datatypes.JSON `json:"steps,omitempty"`
}

// StepSummary is the ledger form of a purge.StepResult.
type StepSummary struct {
	Name       string           `json:"name"`
	State      string           `json:"state"`
	Chunks     int              `json:"chunks"`
	Items      int              `json:"items"`
	Rows       map[string]int64 `json:"rows"`
	DurationMs int64            `json:"durationMs"`
	Error      string           `json:"error,omitempty"`
}
