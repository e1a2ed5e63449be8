package services

import (
	"fmt"
	"math"
	"strings"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/pricing"
	"catalog-sync-service/internal/source"
	"github.com/google/uuid"
)

// MapFailure describes why a single source record could not become a
// catalog product. It never aborts the batch; the orchestrator turns it
// into a SyncRunError row and moves on.
type MapFailure struct {
	RecordKey     string
	ReasonCode    models.ReasonCode
	Message       string
	MissingFields []string
	Raw           models.JSONB
}

// MapRecord validates and transforms one raw source record into a catalog
// product candidate, resolving foreign keys through the lookup maps and
// pricing the unit cost against the tier set.
//
// Exactly one of the return values is non-nil. The candidate is tagged
// price_override=false; override reconciliation against the existing row
// is the orchestrator's job since the mapper has no database access.
func MapRecord(record source.Record, maps *models.LookupMaps, tiers *pricing.TierSet, shippingCost float64, formula models.PricingFormula) (*models.CatalogProduct, *MapFailure) {
	// 1. Required identity field
	sku := strings.TrimSpace(record.SKU)
	if sku == "" {
		return nil, &MapFailure{
			RecordKey:     record.ExternalID,
			ReasonCode:    models.ReasonMissingRequiredField,
			Message:       "record has no SKU",
			MissingFields: []string{"sku"},
			Raw:           rawContext(record),
		}
	}

	// 2. Foreign keys. An empty reference is allowed (nullable column);
	// a reference the reconciler did not return is a lookup failure.
	var categoryID, brandID, materialID *uuid.UUID
	var unresolved []string

	if record.CategoryExternalID != "" {
		if id, ok := maps.Categories[record.CategoryExternalID]; ok {
			categoryID = &id
		} else {
			unresolved = append(unresolved, "category_id")
		}
	}
	if record.BrandExternalID != "" {
		if id, ok := maps.Brands[record.BrandExternalID]; ok {
			brandID = &id
		} else {
			unresolved = append(unresolved, "brand_id")
		}
	}
	if record.MaterialExternalID != "" {
		if id, ok := maps.Materials[record.MaterialExternalID]; ok {
			materialID = &id
		} else {
			unresolved = append(unresolved, "material_id")
		}
	}
	if len(unresolved) > 0 {
		return nil, &MapFailure{
			RecordKey:     sku,
			ReasonCode:    models.ReasonLookupFailed,
			Message:       fmt.Sprintf("unresolved references: %s", strings.Join(unresolved, ", ")),
			MissingFields: unresolved,
			Raw:           rawContext(record),
		}
	}

	// 3. Unit cost. Bulk records carry the pack cost; divide down to the
	// per-unit cost before tier lookup.
	unitCost := record.Cost
	if record.UnitsPerPack > 1 {
		unitCost = record.Cost / float64(record.UnitsPerPack)
	}
	if math.IsNaN(unitCost) || math.IsInf(unitCost, 0) || unitCost < 0 {
		return nil, &MapFailure{
			RecordKey:  sku,
			ReasonCode: models.ReasonValidationError,
			Message:    fmt.Sprintf("invalid unit cost %v", unitCost),
			Raw:        rawContext(record),
		}
	}

	quote := tiers.Price(unitCost, shippingCost, formula)
	if quote == nil {
		return nil, &MapFailure{
			RecordKey:  sku,
			ReasonCode: models.ReasonValidationError,
			Message:    fmt.Sprintf("no pricing tier matches unit cost %.2f", unitCost),
			Raw:        rawContext(record),
		}
	}

	externalID := record.ExternalID
	product := &models.CatalogProduct{
		SKU:                 sku,
		ExternalID:          &externalID,
		Name:                record.Name,
		CategoryID:          categoryID,
		BrandID:             brandID,
		MaterialID:          materialID,
		CostUnit:            pricing.Round2(unitCost),
		CostShipping:        pricing.Round2(shippingCost),
		CostTotal:           quote.TotalCost,
		PricingTierID:       &quote.Tier.ID,
		MarkupMultiplier:    quote.Tier.Multiplier,
		Price:               quote.Price,
		ProfitAmount:        quote.Profit,
		ProfitMarginPercent: quote.MarginPercent,
		PriceOverride:       false,
		StockQuantity:       record.StockQuantity,
		Active:              true,
	}
	if record.Description != "" {
		description := record.Description
		product.Description = &description
	}

	return product, nil
}

// rawContext keeps the upstream payload for the error row's debug context
func rawContext(record source.Record) models.JSONB {
	if record.Raw != nil {
		return models.JSONB(record.Raw)
	}
	return models.JSONB{
		"sku":         record.SKU,
		"external_id": record.ExternalID,
		"cost":        record.Cost,
	}
}
