package pricing

import (
	"math"
	"testing"

	"catalog-sync-service/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 {
	return &v
}

func testTiers() []models.PricingTier {
	return []models.PricingTier{
		{
			ID:         uuid.New(),
			Name:       "premium",
			MinCost:    100,
			MaxCost:    nil,
			Multiplier: 1.5,
			Active:     true,
		},
		{
			ID:         uuid.New(),
			Name:       "budget",
			MinCost:    0,
			MaxCost:    floatPtr(20),
			Multiplier: 3.0,
			Active:     true,
		},
		{
			ID:         uuid.New(),
			Name:       "standard",
			MinCost:    20,
			MaxCost:    floatPtr(100),
			Multiplier: 2.0,
			Active:     true,
		},
	}
}

func TestNewTierSet_SortsByMinCost(t *testing.T) {
	set := NewTierSet(testTiers())

	assert.Equal(t, 3, set.Len())
	assert.Equal(t, "budget", set.tiers[0].Name)
	assert.Equal(t, "standard", set.tiers[1].Name)
	assert.Equal(t, "premium", set.tiers[2].Name)
}

func TestFindTier_HalfOpenBoundary(t *testing.T) {
	set := NewTierSet(testTiers())

	// Upper bound is exclusive, lower bound inclusive
	assert.Equal(t, "budget", set.FindTier(0).Name)
	assert.Equal(t, "budget", set.FindTier(19.99).Name)
	assert.Equal(t, "standard", set.FindTier(20).Name)
	assert.Equal(t, "standard", set.FindTier(99.99).Name)
	assert.Equal(t, "premium", set.FindTier(100).Name)
}

func TestFindTier_UnboundedLastTier(t *testing.T) {
	set := NewTierSet(testTiers())

	assert.Equal(t, "premium", set.FindTier(1000000).Name)
}

func TestFindTier_NegativeCost(t *testing.T) {
	set := NewTierSet(testTiers())

	assert.Nil(t, set.FindTier(-1))
}

func TestFindTier_GapBetweenTiers(t *testing.T) {
	set := NewTierSet([]models.PricingTier{
		{ID: uuid.New(), Name: "low", MinCost: 0, MaxCost: floatPtr(10), Multiplier: 2},
		{ID: uuid.New(), Name: "high", MinCost: 50, MaxCost: floatPtr(100), Multiplier: 1.5},
	})

	assert.Nil(t, set.FindTier(25))
}

func TestPrice_ShippingIncluded(t *testing.T) {
	set := NewTierSet(testTiers())

	// budget tier: price = shipping + cost * 3.0
	quote := set.Price(10, 5, models.FormulaShippingIncluded)

	assert.NotNil(t, quote)
	assert.Equal(t, 35.0, quote.Price)
	assert.Equal(t, 15.0, quote.TotalCost)
	assert.Equal(t, 20.0, quote.Profit)
	assert.InDelta(t, 133.33, quote.MarginPercent, 0.001)
	assert.Equal(t, "budget", quote.Tier.Name)
}

func TestPrice_ShippingSeparate(t *testing.T) {
	set := NewTierSet(testTiers())

	// standard tier: price = cost * 2.0, shipping still counts toward cost
	quote := set.Price(50, 5, models.FormulaShippingSeparate)

	assert.NotNil(t, quote)
	assert.Equal(t, 100.0, quote.Price)
	assert.Equal(t, 55.0, quote.TotalCost)
	assert.Equal(t, 45.0, quote.Profit)
	assert.InDelta(t, 81.82, quote.MarginPercent, 0.001)
}

func TestPrice_RoundsToTwoDecimals(t *testing.T) {
	set := NewTierSet([]models.PricingTier{
		{ID: uuid.New(), Name: "odd", MinCost: 0, MaxCost: nil, Multiplier: 1.333},
	})

	quote := set.Price(9.99, 0, models.FormulaShippingSeparate)

	assert.NotNil(t, quote)
	assert.Equal(t, 13.32, quote.Price)
	assert.Equal(t, quote.Price, Round2(quote.Price))
}

func TestPrice_ZeroCostFreeShipping(t *testing.T) {
	set := NewTierSet(testTiers())

	quote := set.Price(0, 0, models.FormulaShippingIncluded)

	assert.NotNil(t, quote)
	assert.Equal(t, 0.0, quote.Price)
	assert.Equal(t, 0.0, quote.MarginPercent)
}

func TestPrice_RejectsInvalidInputs(t *testing.T) {
	set := NewTierSet(testTiers())

	assert.Nil(t, set.Price(-1, 0, models.FormulaShippingIncluded))
	assert.Nil(t, set.Price(10, -1, models.FormulaShippingIncluded))
	assert.Nil(t, set.Price(math.NaN(), 0, models.FormulaShippingIncluded))
	assert.Nil(t, set.Price(math.Inf(1), 0, models.FormulaShippingIncluded))
	assert.Nil(t, set.Price(10, 0, models.PricingFormula(99)))
}

func TestPrice_NoMatchingTier(t *testing.T) {
	set := NewTierSet([]models.PricingTier{
		{ID: uuid.New(), Name: "only", MinCost: 100, MaxCost: floatPtr(200), Multiplier: 2},
	})

	assert.Nil(t, set.Price(10, 0, models.FormulaShippingIncluded))
}

func TestValidate_CleanSet(t *testing.T) {
	set := NewTierSet(testTiers())

	assert.NoError(t, set.Validate())
}

func TestValidate_OverlappingTiers(t *testing.T) {
	set := NewTierSet([]models.PricingTier{
		{ID: uuid.New(), Name: "a", MinCost: 0, MaxCost: floatPtr(50), Multiplier: 2},
		{ID: uuid.New(), Name: "b", MinCost: 40, MaxCost: floatPtr(100), Multiplier: 1.5},
	})

	assert.Error(t, set.Validate())
}

func TestValidate_UnboundedTierNotLast(t *testing.T) {
	set := NewTierSet([]models.PricingTier{
		{ID: uuid.New(), Name: "open", MinCost: 0, MaxCost: nil, Multiplier: 2},
		{ID: uuid.New(), Name: "closed", MinCost: 100, MaxCost: floatPtr(200), Multiplier: 1.5},
	})

	assert.Error(t, set.Validate())
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 10.57, Round2(10.566))
	assert.Equal(t, 10.56, Round2(10.564))
	assert.Equal(t, 0.0, Round2(0))
	assert.Equal(t, -2.5, Round2(-2.499999))
}
