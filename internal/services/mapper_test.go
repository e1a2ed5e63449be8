package services

import (
	"testing"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/pricing"
	"catalog-sync-service/internal/source"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 {
	return &v
}

func testTierSet() *pricing.TierSet {
	return pricing.NewTierSet([]models.PricingTier{
		{ID: uuid.New(), Name: "budget", MinCost: 0, MaxCost: floatPtr(20), Multiplier: 3.0, Active: true},
		{ID: uuid.New(), Name: "standard", MinCost: 20, MaxCost: floatPtr(100), Multiplier: 2.0, Active: true},
		{ID: uuid.New(), Name: "premium", MinCost: 100, MaxCost: nil, Multiplier: 1.5, Active: true},
	})
}

func testLookupMaps() *models.LookupMaps {
	return &models.LookupMaps{
		Categories: map[string]uuid.UUID{"cat-1": uuid.New()},
		Brands:     map[string]uuid.UUID{"brand-1": uuid.New()},
		Materials:  map[string]uuid.UUID{"mat-1": uuid.New()},
	}
}

func testRecord() source.Record {
	return source.Record{
		ExternalID:         "ext-1",
		SKU:                "SKU-001",
		Name:               "Test Product",
		Description:        "A product",
		CategoryExternalID: "cat-1",
		BrandExternalID:    "brand-1",
		MaterialExternalID: "mat-1",
		Cost:               10,
		StockQuantity:      25,
	}
}

func TestMapRecord_Success(t *testing.T) {
	maps := testLookupMaps()
	tiers := testTierSet()

	product, failure := MapRecord(testRecord(), maps, tiers, 5, models.FormulaShippingIncluded)

	assert.Nil(t, failure)
	assert.NotNil(t, product)
	assert.Equal(t, "SKU-001", product.SKU)
	assert.Equal(t, "ext-1", *product.ExternalID)
	assert.Equal(t, "Test Product", product.Name)
	assert.Equal(t, "A product", *product.Description)
	assert.Equal(t, maps.Categories["cat-1"], *product.CategoryID)
	assert.Equal(t, maps.Brands["brand-1"], *product.BrandID)
	assert.Equal(t, maps.Materials["mat-1"], *product.MaterialID)
	assert.Equal(t, 10.0, product.CostUnit)
	assert.Equal(t, 5.0, product.CostShipping)
	assert.Equal(t, 15.0, product.CostTotal)
	assert.Equal(t, 3.0, product.MarkupMultiplier)
	assert.Equal(t, 35.0, product.Price)
	assert.Equal(t, 20.0, product.ProfitAmount)
	assert.Equal(t, 25, product.StockQuantity)
	assert.True(t, product.Active)
	assert.False(t, product.PriceOverride)
}

func TestMapRecord_MissingSKU(t *testing.T) {
	record := testRecord()
	record.SKU = "   "

	product, failure := MapRecord(record, testLookupMaps(), testTierSet(), 0, models.FormulaShippingIncluded)

	assert.Nil(t, product)
	assert.NotNil(t, failure)
	assert.Equal(t, models.ReasonMissingRequiredField, failure.ReasonCode)
	assert.Equal(t, []string{"sku"}, failure.MissingFields)
	assert.Equal(t, "ext-1", failure.RecordKey)
}

func TestMapRecord_UnresolvedReferences(t *testing.T) {
	record := testRecord()
	record.CategoryExternalID = "cat-unknown"
	record.MaterialExternalID = "mat-unknown"

	product, failure := MapRecord(record, testLookupMaps(), testTierSet(), 0, models.FormulaShippingIncluded)

	assert.Nil(t, product)
	assert.NotNil(t, failure)
	assert.Equal(t, models.ReasonLookupFailed, failure.ReasonCode)
	assert.Equal(t, []string{"category_id", "material_id"}, failure.MissingFields)
	assert.Equal(t, "SKU-001", failure.RecordKey)
}

func TestMapRecord_EmptyReferencesAllowed(t *testing.T) {
	record := testRecord()
	record.CategoryExternalID = ""
	record.BrandExternalID = ""
	record.MaterialExternalID = ""

	product, failure := MapRecord(record, testLookupMaps(), testTierSet(), 0, models.FormulaShippingIncluded)

	assert.Nil(t, failure)
	assert.NotNil(t, product)
	assert.Nil(t, product.CategoryID)
	assert.Nil(t, product.BrandID)
	assert.Nil(t, product.MaterialID)
}

func TestMapRecord_BulkUnitCost(t *testing.T) {
	record := testRecord()
	record.Cost = 30
	record.UnitsPerPack = 3

	product, failure := MapRecord(record, testLookupMaps(), testTierSet(), 0, models.FormulaShippingIncluded)

	assert.Nil(t, failure)
	assert.Equal(t, 10.0, product.CostUnit)
	// Priced against the per-unit cost, budget tier
	assert.Equal(t, 30.0, product.Price)
}

func TestMapRecord_SingleUnitPackNotDivided(t *testing.T) {
	record := testRecord()
	record.Cost = 30
	record.UnitsPerPack = 1

	product, failure := MapRecord(record, testLookupMaps(), testTierSet(), 0, models.FormulaShippingIncluded)

	assert.Nil(t, failure)
	assert.Equal(t, 30.0, product.CostUnit)
}

func TestMapRecord_NegativeCost(t *testing.T) {
	record := testRecord()
	record.Cost = -5

	product, failure := MapRecord(record, testLookupMaps(), testTierSet(), 0, models.FormulaShippingIncluded)

	assert.Nil(t, product)
	assert.NotNil(t, failure)
	assert.Equal(t, models.ReasonValidationError, failure.ReasonCode)
}

func TestMapRecord_NoMatchingTier(t *testing.T) {
	tiers := pricing.NewTierSet([]models.PricingTier{
		{ID: uuid.New(), Name: "narrow", MinCost: 100, MaxCost: floatPtr(200), Multiplier: 2, Active: true},
	})

	product, failure := MapRecord(testRecord(), testLookupMaps(), tiers, 0, models.FormulaShippingIncluded)

	assert.Nil(t, product)
	assert.NotNil(t, failure)
	assert.Equal(t, models.ReasonValidationError, failure.ReasonCode)
	assert.Equal(t, "SKU-001", failure.RecordKey)
}

func TestMapRecord_EmptyDescription(t *testing.T) {
	record := testRecord()
	record.Description = ""

	product, failure := MapRecord(record, testLookupMaps(), testTierSet(), 0, models.FormulaShippingIncluded)

	assert.Nil(t, failure)
	assert.Nil(t, product.Description)
}

func TestMapRecord_RawContextCarriesPayload(t *testing.T) {
	record := testRecord()
	record.SKU = ""
	record.Raw = map[string]interface{}{"id": "ext-1", "weird_field": true}

	_, failure := MapRecord(record, testLookupMaps(), testTierSet(), 0, models.FormulaShippingIncluded)

	assert.NotNil(t, failure)
	assert.Equal(t, true, failure.Raw["weird_field"])
}
