package repository

import (
	"context"

	"catalog-sync-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MovementRepositoryInterface defines inventory movement persistence
type MovementRepositoryInterface interface {
	CreateMovement(ctx context.Context, movement *models.InventoryMovement) error
	GetMovementsByRun(ctx context.Context, runID uuid.UUID) ([]models.InventoryMovement, error)
}

// MovementRepository handles database operations for inventory movements
type MovementRepository struct {
	db *gorm.DB
}

// Ensure MovementRepository implements the interface
var _ MovementRepositoryInterface = (*MovementRepository)(nil)

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *gorm.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// CreateMovement appends an inventory movement entry
func (r *MovementRepository) CreateMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// GetMovementsByRun retrieves movements emitted by a run
func (r *MovementRepository) GetMovementsByRun(ctx context.Context, runID uuid.UUID) ([]models.InventoryMovement, error) {
	var movements []models.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}
