package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is a reference table row reconciled from the ERP source.
// ExternalID is the upstream identifier and the upsert key.
type Category struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ExternalID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_categories_external" json:"externalId"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Active     bool      `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for Category
func (Category) TableName() string {
	return "catalog_categories"
}

// Brand is a reference table row reconciled from the ERP source
type Brand struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ExternalID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_brands_external" json:"externalId"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Active     bool      `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for Brand
func (Brand) TableName() string {
	return "catalog_brands"
}

// Material is a reference table row reconciled from the ERP source
type Material struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ExternalID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_materials_external" json:"externalId"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Active     bool      `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for Material
func (Material) TableName() string {
	return "catalog_materials"
}

// LookupMaps holds the external-id to internal-id maps built during
// reference-data reconciliation. Lifetime is a single sync run.
type LookupMaps struct {
	Categories map[string]uuid.UUID
	Brands     map[string]uuid.UUID
	Materials  map[string]uuid.UUID
}
