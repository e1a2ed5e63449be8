package models

import (
	"time"

	"github.com/google/uuid"
)

// PricingTier is a cost range with a markup multiplier. Tiers are created
// and edited by the admin surface; this service only reads them. Ranges
// are half-open [MinCost, MaxCost); a nil MaxCost means unbounded.
type PricingTier struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	MinCost    float64   `gorm:"type:decimal(12,2);not null;index:idx_pricing_tiers_min_cost" json:"minCost"`
	MaxCost    *float64  `gorm:"type:decimal(12,2)" json:"maxCost,omitempty"`
	Multiplier float64   `gorm:"type:decimal(8,4);not null" json:"multiplier"`
	Active     bool      `gorm:"default:true;index:idx_pricing_tiers_active" json:"active"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for PricingTier
func (PricingTier) TableName() string {
	return "pricing_tiers"
}

// Contains reports whether cost falls inside the tier's half-open range.
func (t *PricingTier) Contains(cost float64) bool {
	if cost < t.MinCost {
		return false
	}
	if t.MaxCost != nil && cost >= *t.MaxCost {
		return false
	}
	return true
}

// PricingFormula selects how shipping cost enters the sell price
type PricingFormula int

const (
	// FormulaShippingIncluded bundles shipping into the displayed price:
	// price = shipping + cost * multiplier
	FormulaShippingIncluded PricingFormula = 1
	// FormulaShippingSeparate charges shipping at checkout:
	// price = cost * multiplier
	FormulaShippingSeparate PricingFormula = 2
)
