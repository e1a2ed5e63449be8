package repository

import (
	"context"

	"catalog-sync-service/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LookupRepositoryInterface defines reference-table persistence operations
type LookupRepositoryInterface interface {
	UpsertCategory(ctx context.Context, category *models.Category) error
	UpsertBrand(ctx context.Context, brand *models.Brand) error
	UpsertMaterial(ctx context.Context, material *models.Material) error
}

// LookupRepository handles database operations for the reference tables
// (category, brand, material) reconciled from the ERP source
type LookupRepository struct {
	db *gorm.DB
}

// Ensure LookupRepository implements the interface
var _ LookupRepositoryInterface = (*LookupRepository)(nil)

// NewLookupRepository creates a new lookup repository
func NewLookupRepository(db *gorm.DB) *LookupRepository {
	return &LookupRepository{db: db}
}

// UpsertCategory inserts or updates a category by external id. The model's
// ID is populated from the surviving row either way.
func (r *LookupRepository) UpsertCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "active", "updated_at"}),
	}).Create(category).Error
}

// UpsertBrand inserts or updates a brand by external id
func (r *LookupRepository) UpsertBrand(ctx context.Context, brand *models.Brand) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "active", "updated_at"}),
	}).Create(brand).Error
}

// UpsertMaterial inserts or updates a material by external id
func (r *LookupRepository) UpsertMaterial(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "active", "updated_at"}),
	}).Create(material).Error
}
