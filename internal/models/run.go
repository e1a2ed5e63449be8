package models

import (
	"time"

	"github.com/google/uuid"
)

// RunType represents the kind of pipeline run
type RunType string

const (
	RunTypeFullSync      RunType = "FULL_SYNC"
	RunTypeRecalculation RunType = "RECALCULATION"
)

// RunStatus represents the status of a pipeline run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSuccess   RunStatus = "SUCCESS"
	RunStatusPartial   RunStatus = "PARTIAL"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// TriggerType represents what started the run
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
)

// RunProgress is the polled progress payload. Progress is 0-100 and moves
// through fixed milestones so observers see forward motion mid-run.
type RunProgress struct {
	Progress     int    `json:"progress"`
	CurrentStep  string `json:"current_step"`
	CurrentItems int    `json:"current_item_count,omitempty"`
	TotalItems   int    `json:"total_item_count,omitempty"`
}

// SyncRun is one invocation of an orchestrator. It is created at start,
// mutated only by that invocation, and immutable once CompletedAt is set.
type SyncRun struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RunType     RunType     `gorm:"type:varchar(50);not null;index:idx_sync_runs_type" json:"runType"`
	Status      RunStatus   `gorm:"type:varchar(50);not null;default:'RUNNING';index:idx_sync_runs_status" json:"status"`
	TriggeredBy TriggerType `gorm:"type:varchar(50)" json:"triggeredBy,omitempty"`

	// Counters
	TotalFetched int `gorm:"default:0" json:"totalFetched"`
	Processed    int `gorm:"default:0" json:"processed"`
	Updated      int `gorm:"default:0" json:"updated"`
	Skipped      int `gorm:"default:0" json:"skipped"`
	ErrorCount   int `gorm:"default:0" json:"errorCount"`

	// Progress tracking, polled by the admin surface
	Progress JSONB `gorm:"type:jsonb;default:'{\"progress\":0,\"current_step\":\"\"}'" json:"progress"`

	// Cooperative cancellation flag, checked at the progress cadence
	CancelRequested bool `gorm:"default:false" json:"cancelRequested"`

	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`

	StartedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	DurationSeconds float64    `gorm:"type:decimal(10,2);default:0" json:"durationSeconds"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	// Relationships
	Errors []SyncRunError `gorm:"foreignKey:RunID" json:"errors,omitempty"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "sync_runs"
}

// GetProgress returns the run progress as a structured object
func (r *SyncRun) GetProgress() *RunProgress {
	progress := &RunProgress{}
	if r.Progress != nil {
		if v, ok := r.Progress["progress"].(float64); ok {
			progress.Progress = int(v)
		}
		if v, ok := r.Progress["current_step"].(string); ok {
			progress.CurrentStep = v
		}
		if v, ok := r.Progress["current_item_count"].(float64); ok {
			progress.CurrentItems = int(v)
		}
		if v, ok := r.Progress["total_item_count"].(float64); ok {
			progress.TotalItems = int(v)
		}
	}
	return progress
}

// SetProgress sets the run progress from a structured object
func (r *SyncRun) SetProgress(progress *RunProgress) {
	r.Progress = JSONB{
		"progress":           progress.Progress,
		"current_step":       progress.CurrentStep,
		"current_item_count": progress.CurrentItems,
		"total_item_count":   progress.TotalItems,
	}
}

// IsTerminal reports whether the run has reached a final status
func (r *SyncRun) IsTerminal() bool {
	switch r.Status {
	case RunStatusSuccess, RunStatusPartial, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// ReasonCode classifies a per-record failure
type ReasonCode string

const (
	ReasonMissingRequiredField ReasonCode = "missing_required_field"
	ReasonValidationError      ReasonCode = "validation_error"
	ReasonLookupFailed         ReasonCode = "lookup_failed"
	ReasonNetworkError         ReasonCode = "network_error"
	ReasonDatabaseError        ReasonCode = "database_error"
	ReasonOther                ReasonCode = "other"
)

// SyncRunError is one failed record within a run. Rows are append-only and
// never aggregated away; the admin surface links to them per run.
type SyncRunError struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RunID uuid.UUID `gorm:"type:uuid;not null;index:idx_sync_run_errors_run" json:"runId"`

	RecordKey  *string    `gorm:"type:varchar(255)" json:"recordKey,omitempty"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	ReasonCode ReasonCode `gorm:"type:varchar(50);not null;index:idx_sync_run_errors_reason" json:"reasonCode"`
	RawContext JSONB      `gorm:"type:jsonb;default:'{}'" json:"rawContext,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for SyncRunError
func (SyncRunError) TableName() string {
	return "sync_run_errors"
}
