package models

import (
	"time"

	"github.com/google/uuid"
)

// CatalogProduct is a product in the local catalog, kept in step with the
// ERP source by full syncs and re-priced by recalculation runs. SKU is the
// stable upsert key; ExternalID links back to the source record.
type CatalogProduct struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SKU        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_products_sku" json:"sku"`
	ExternalID *string   `gorm:"type:varchar(255);index:idx_products_external" json:"externalId,omitempty"`

	Name        string  `gorm:"type:varchar(500);not null" json:"name"`
	Description *string `gorm:"type:text" json:"description,omitempty"`

	// Foreign keys resolved through the lookup maps
	CategoryID *uuid.UUID `gorm:"type:uuid;index:idx_products_category" json:"categoryId,omitempty"`
	BrandID    *uuid.UUID `gorm:"type:uuid" json:"brandId,omitempty"`
	MaterialID *uuid.UUID `gorm:"type:uuid" json:"materialId,omitempty"`

	// Costs
	CostUnit     float64 `gorm:"type:decimal(12,2);not null;default:0" json:"costUnit"`
	CostShipping float64 `gorm:"type:decimal(12,2);not null;default:0" json:"costShipping"`
	CostTotal    float64 `gorm:"type:decimal(12,2);not null;default:0" json:"costTotal"`

	// Computed pricing
	PricingTierID       *uuid.UUID `gorm:"type:uuid" json:"pricingTierId,omitempty"`
	MarkupMultiplier    float64    `gorm:"type:decimal(8,4);default:0" json:"markupMultiplier"`
	Price               float64    `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	ProfitAmount        float64    `gorm:"type:decimal(12,2);default:0" json:"profitAmount"`
	ProfitMarginPercent float64    `gorm:"type:decimal(8,2);default:0" json:"profitMarginPercent"`

	// PriceOverride marks a manually set price. Machine repricing must
	// never overwrite Price while this is true; only the informational
	// profit fields may refresh.
	PriceOverride bool `gorm:"default:false" json:"priceOverride"`

	StockQuantity int  `gorm:"default:0" json:"stockQuantity"`
	Active        bool `gorm:"default:true;index:idx_products_active" json:"active"`

	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	// Relationships
	Category    *Category    `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Brand       *Brand       `gorm:"foreignKey:BrandID" json:"brand,omitempty"`
	Material    *Material    `gorm:"foreignKey:MaterialID" json:"material,omitempty"`
	PricingTier *PricingTier `gorm:"foreignKey:PricingTierID" json:"pricingTier,omitempty"`
}

// TableName specifies the table name for CatalogProduct
func (CatalogProduct) TableName() string {
	return "catalog_products"
}

// ProductRef is a lightweight projection used when computing the
// deactivation set without loading whole product rows.
type ProductRef struct {
	ID         uuid.UUID
	ExternalID string
}
