package repository

import (
	"context"
	"errors"

	"catalog-sync-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductListOptions filters a chunked catalog scan
type ProductListOptions struct {
	// AfterID is the keyset cursor: only rows with id > AfterID are
	// returned, ordered by id, so chunk boundaries never repeat rows
	AfterID uuid.UUID
	Limit   int
	// ExcludeOverridden drops rows with price_override = true
	ExcludeOverridden bool
	// IDs restricts the scan to specific products when non-empty
	IDs []uuid.UUID
}

// PricingUpdate carries the repricing-only field set written by a
// recalculation run. Cost inputs are not re-fetched, so cost_unit and
// stock are never touched here.
type PricingUpdate struct {
	Price               float64
	ProfitAmount        float64
	ProfitMarginPercent float64
	CostShipping        float64
	CostTotal           float64
	MarkupMultiplier    float64
	PricingTierID       *uuid.UUID
}

// ProductRepositoryInterface defines catalog product persistence operations
type ProductRepositoryInterface interface {
	GetBySKU(ctx context.Context, sku string) (*models.CatalogProduct, error)
	Upsert(ctx context.Context, product *models.CatalogProduct) error
	UpdatePricing(ctx context.Context, id uuid.UUID, update PricingUpdate) error
	ListActiveExternalRefs(ctx context.Context) ([]models.ProductRef, error)
	DeactivateByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	ListActiveInStock(ctx context.Context, opts ProductListOptions) ([]models.CatalogProduct, error)
	CountActiveInStock(ctx context.Context, opts ProductListOptions) (int64, error)
}

// ProductRepository handles database operations for catalog products
type ProductRepository struct {
	db *gorm.DB
}

// Ensure ProductRepository implements the interface
var _ ProductRepositoryInterface = (*ProductRepository)(nil)

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetBySKU retrieves a product by SKU; returns (nil, nil) when absent so
// callers can treat "not found" as "insert" without importing gorm
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*models.CatalogProduct, error) {
	var product models.CatalogProduct
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Upsert creates or updates a product by SKU
func (r *ProductRepository) Upsert(ctx context.Context, product *models.CatalogProduct) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_id", "name", "description",
			"category_id", "brand_id", "material_id",
			"cost_unit", "cost_shipping", "cost_total",
			"pricing_tier_id", "markup_multiplier",
			"price", "profit_amount", "profit_margin_percent",
			"stock_quantity", "active", "last_synced_at", "updated_at",
		}),
	}).Create(product).Error
}

// UpdatePricing updates only the computed pricing fields of a product
func (r *ProductRepository) UpdatePricing(ctx context.Context, id uuid.UUID, update PricingUpdate) error {
	return r.db.WithContext(ctx).
		Model(&models.CatalogProduct{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"price":                 update.Price,
			"profit_amount":         update.ProfitAmount,
			"profit_margin_percent": update.ProfitMarginPercent,
			"cost_shipping":         update.CostShipping,
			"cost_total":            update.CostTotal,
			"markup_multiplier":     update.MarkupMultiplier,
			"pricing_tier_id":       update.PricingTierID,
		}).Error
}

// ListActiveExternalRefs retrieves id and external id for every active
// product that came from the source, the input to deactivation
func (r *ProductRepository) ListActiveExternalRefs(ctx context.Context) ([]models.ProductRef, error) {
	var refs []models.ProductRef
	err := r.db.WithContext(ctx).
		Model(&models.CatalogProduct{}).
		Select("id", "external_id").
		Where("active = ? AND external_id IS NOT NULL", true).
		Find(&refs).Error
	return refs, err
}

// DeactivateByIDs marks products inactive and zeroes their stock. Callers
// batch the id list; this method never builds unbounded predicates itself.
func (r *ProductRepository) DeactivateByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.CatalogProduct{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"active":         false,
			"stock_quantity": 0,
		})
	return result.RowsAffected, result.Error
}

// ListActiveInStock retrieves a chunk of active, in-stock products using
// keyset pagination
func (r *ProductRepository) ListActiveInStock(ctx context.Context, opts ProductListOptions) ([]models.CatalogProduct, error) {
	var products []models.CatalogProduct

	query := r.db.WithContext(ctx).
		Where("active = ? AND stock_quantity > 0", true).
		Where("id > ?", opts.AfterID).
		Order("id ASC")

	if opts.ExcludeOverridden {
		query = query.Where("price_override = ?", false)
	}
	if len(opts.IDs) > 0 {
		query = query.Where("id IN ?", opts.IDs)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	err := query.Find(&products).Error
	return products, err
}

// CountActiveInStock returns the total row count a ListActiveInStock scan
// would visit, used for progress reporting. The cursor is ignored.
func (r *ProductRepository) CountActiveInStock(ctx context.Context, opts ProductListOptions) (int64, error) {
	var count int64

	query := r.db.WithContext(ctx).
		Model(&models.CatalogProduct{}).
		Where("active = ? AND stock_quantity > 0", true)

	if opts.ExcludeOverridden {
		query = query.Where("price_override = ?", false)
	}
	if len(opts.IDs) > 0 {
		query = query.Where("id IN ?", opts.IDs)
	}

	err := query.Count(&count).Error
	return count, err
}
