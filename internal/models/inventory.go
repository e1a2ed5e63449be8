package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType represents the cause of a stock change
type ChangeType string

const (
	ChangeSync ChangeType = "SYNC"
)

// InventoryMovement is an audit trail entry written when a sync changes the
// stock level of an existing product.
type InventoryMovement struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index:idx_inventory_movements_product" json:"productId"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index:idx_inventory_movements_run" json:"runId"`

	ChangeType     ChangeType `gorm:"type:varchar(50);not null" json:"changeType"`
	QuantityChange int        `gorm:"not null" json:"quantityChange"`
	QuantityBefore int        `gorm:"not null" json:"quantityBefore"`
	QuantityAfter  int        `gorm:"not null" json:"quantityAfter"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_inventory_movements_created" json:"createdAt"`
}

// TableName specifies the table name for InventoryMovement
func (InventoryMovement) TableName() string {
	return "inventory_movements"
}

// NewSyncMovement creates a movement entry for a sync-driven stock change
func NewSyncMovement(productID, runID uuid.UUID, before, after int) *InventoryMovement {
	return &InventoryMovement{
		ID:             uuid.New(),
		ProductID:      productID,
		RunID:          runID,
		ChangeType:     ChangeSync,
		QuantityChange: after - before,
		QuantityBefore: before,
		QuantityAfter:  after,
		CreatedAt:      time.Now(),
	}
}
