package repository

import (
	"context"

	"catalog-sync-service/internal/models"
	"gorm.io/gorm"
)

// TierRepositoryInterface defines tier persistence operations
type TierRepositoryInterface interface {
	ListActive(ctx context.Context) ([]models.PricingTier, error)
}

// TierRepository handles database operations for pricing tiers
type TierRepository struct {
	db *gorm.DB
}

// Ensure TierRepository implements the interface
var _ TierRepositoryInterface = (*TierRepository)(nil)

// NewTierRepository creates a new tier repository
func NewTierRepository(db *gorm.DB) *TierRepository {
	return &TierRepository{db: db}
}

// ListActive retrieves active tiers ordered ascending by min cost, the
// order the pricing engine requires
func (r *TierRepository) ListActive(ctx context.Context) ([]models.PricingTier, error) {
	var tiers []models.PricingTier
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("min_cost ASC").
		Find(&tiers).Error
	return tiers, err
}
