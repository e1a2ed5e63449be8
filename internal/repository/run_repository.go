package repository

import (
	"context"
	"time"

	"catalog-sync-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunListOptions contains options for listing runs
type RunListOptions struct {
	RunType string
	Status  string
	Limit   int
	Offset  int
}

// RunStats contains aggregate run statistics
type RunStats struct {
	TotalRuns    int64      `json:"totalRuns"`
	SuccessRuns  int64      `json:"successRuns"`
	PartialRuns  int64      `json:"partialRuns"`
	FailedRuns   int64      `json:"failedRuns"`
	RunningRuns  int64      `json:"runningRuns"`
	LastSyncAt   *time.Time `json:"lastSyncAt,omitempty"`
	LastRecalcAt *time.Time `json:"lastRecalcAt,omitempty"`
}

// RunRepositoryInterface defines run-log persistence operations
type RunRepositoryInterface interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
	ListRuns(ctx context.Context, opts RunListOptions) ([]models.SyncRun, int64, error)
	GetRunningRuns(ctx context.Context, runType models.RunType) ([]models.SyncRun, error)
	FinalizeRun(ctx context.Context, run *models.SyncRun) error
	UpdateRunProgress(ctx context.Context, id uuid.UUID, progress *models.RunProgress) error
	CreateRunError(ctx context.Context, runErr *models.SyncRunError) error
	GetRunErrors(ctx context.Context, runID uuid.UUID, limit, offset int) ([]models.SyncRunError, error)
	RequestCancel(ctx context.Context, id uuid.UUID) error
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
	GetRunStats(ctx context.Context) (*RunStats, error)
}

// RunRepository handles database operations for sync runs and their errors
type RunRepository struct {
	db *gorm.DB
}

// Ensure RunRepository implements the interface
var _ RunRepositoryInterface = (*RunRepository)(nil)

// NewRunRepository creates a new run repository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun creates a new run record
func (r *RunRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	var run models.SyncRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns retrieves runs with pagination and filtering
func (r *RunRepository) ListRuns(ctx context.Context, opts RunListOptions) ([]models.SyncRun, int64, error) {
	var runs []models.SyncRun
	var total int64

	query := r.db.WithContext(ctx).Model(&models.SyncRun{})

	if opts.RunType != "" {
		query = query.Where("run_type = ?", opts.RunType)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	query = query.Order("started_at DESC")

	if err := query.Find(&runs).Error; err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// GetRunningRuns retrieves runs of a type that are still running
func (r *RunRepository) GetRunningRuns(ctx context.Context, runType models.RunType) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	err := r.db.WithContext(ctx).
		Where("run_type = ? AND status = ?", runType, models.RunStatusRunning).
		Find(&runs).Error
	return runs, err
}

// FinalizeRun persists the run's terminal state, stamping completion time
// and duration. The row is treated as immutable afterwards.
func (r *RunRepository) FinalizeRun(ctx context.Context, run *models.SyncRun) error {
	now := time.Now()
	run.CompletedAt = &now
	run.DurationSeconds = now.Sub(run.StartedAt).Seconds()
	return r.db.WithContext(ctx).Save(run).Error
}

// UpdateRunProgress updates the run's progress payload
func (r *RunRepository) UpdateRunProgress(ctx context.Context, id uuid.UUID, progress *models.RunProgress) error {
	progressJSON := models.JSONB{
		"progress":           progress.Progress,
		"current_step":       progress.CurrentStep,
		"current_item_count": progress.CurrentItems,
		"total_item_count":   progress.TotalItems,
	}
	return r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", id).
		Update("progress", progressJSON).Error
}

// CreateRunError appends a per-record error row to a run
func (r *RunRepository) CreateRunError(ctx context.Context, runErr *models.SyncRunError) error {
	return r.db.WithContext(ctx).Create(runErr).Error
}

// GetRunErrors retrieves error rows for a run
func (r *RunRepository) GetRunErrors(ctx context.Context, runID uuid.UUID, limit, offset int) ([]models.SyncRunError, error) {
	var errs []models.SyncRunError
	query := r.db.WithContext(ctx).Where("run_id = ?", runID)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Order("created_at ASC").Find(&errs).Error
	return errs, err
}

// RequestCancel flags a run for cooperative cancellation
func (r *RunRepository) RequestCancel(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", id).
		Update("cancel_requested", true).Error
}

// IsCancelRequested reads the cancellation flag for a run
func (r *RunRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var run models.SyncRun
	err := r.db.WithContext(ctx).
		Select("cancel_requested").
		First(&run, "id = ?", id).Error
	if err != nil {
		return false, err
	}
	return run.CancelRequested, nil
}

// GetRunStats retrieves aggregate statistics across runs
func (r *RunRepository) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	if err := r.db.WithContext(ctx).Model(&models.SyncRun{}).Count(&stats.TotalRuns).Error; err != nil {
		return nil, err
	}

	var statusCounts []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.SyncRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch models.RunStatus(sc.Status) {
		case models.RunStatusSuccess:
			stats.SuccessRuns = sc.Count
		case models.RunStatusPartial:
			stats.PartialRuns = sc.Count
		case models.RunStatusFailed:
			stats.FailedRuns = sc.Count
		case models.RunStatusRunning:
			stats.RunningRuns = sc.Count
		}
	}

	var lastSync models.SyncRun
	if err := r.db.WithContext(ctx).
		Where("run_type = ? AND completed_at IS NOT NULL", models.RunTypeFullSync).
		Order("completed_at DESC").
		First(&lastSync).Error; err == nil {
		stats.LastSyncAt = lastSync.CompletedAt
	}

	var lastRecalc models.SyncRun
	if err := r.db.WithContext(ctx).
		Where("run_type = ? AND completed_at IS NOT NULL", models.RunTypeRecalculation).
		Order("completed_at DESC").
		First(&lastRecalc).Error; err == nil {
		stats.LastRecalcAt = lastRecalc.CompletedAt
	}

	return stats, nil
}
