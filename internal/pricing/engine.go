// Package pricing computes sell prices from cost-range tiers. A TierSet is
// built once per run and passed by parameter; there is no shared mutable
// pricing state.
package pricing

import (
	"fmt"
	"math"
	"sort"

	"catalog-sync-service/internal/models"
)

// Quote is the result of a price computation
type Quote struct {
	Price         float64
	TotalCost     float64
	Profit        float64
	MarginPercent float64
	Tier          *models.PricingTier
}

// TierSet is an immutable, ordered view of the active pricing tiers.
// Tiers are kept sorted ascending by min cost; ranges are half-open
// [min, max) so at most one tier matches any non-negative cost.
type TierSet struct {
	tiers []models.PricingTier
}

// NewTierSet builds a TierSet from tier rows, sorting them by min cost
func NewTierSet(tiers []models.PricingTier) *TierSet {
	sorted := make([]models.PricingTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinCost < sorted[j].MinCost
	})
	return &TierSet{tiers: sorted}
}

// Len returns the number of tiers in the set
func (s *TierSet) Len() int {
	return len(s.tiers)
}

// FindTier returns the tier whose half-open range contains cost, or nil
// when no tier matches or cost is negative
func (s *TierSet) FindTier(cost float64) *models.PricingTier {
	if cost < 0 {
		return nil
	}
	for i := range s.tiers {
		if s.tiers[i].Contains(cost) {
			return &s.tiers[i]
		}
	}
	return nil
}

// Price computes the sell price for a unit cost and shipping cost.
//
// Formula 1 bundles shipping into the displayed price; Formula 2 prices the
// product alone and leaves shipping to be charged separately. Both report
// profit and margin against the full cost (unit + shipping).
//
// Returns nil when an input is negative or no tier matches; callers treat
// nil as "skip this record", not a fatal error.
func (s *TierSet) Price(cost, shippingCost float64, formula models.PricingFormula) *Quote {
	if cost < 0 || shippingCost < 0 {
		return nil
	}
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil
	}

	tier := s.FindTier(cost)
	if tier == nil {
		return nil
	}

	var price float64
	switch formula {
	case models.FormulaShippingIncluded:
		price = shippingCost + cost*tier.Multiplier
	case models.FormulaShippingSeparate:
		price = cost * tier.Multiplier
	default:
		return nil
	}

	totalCost := cost + shippingCost
	price = Round2(price)
	profit := Round2(price - totalCost)

	margin := 0.0
	if totalCost > 0 {
		margin = Round2(profit / totalCost * 100)
	}

	return &Quote{
		Price:         price,
		TotalCost:     Round2(totalCost),
		Profit:        profit,
		MarginPercent: margin,
		Tier:          tier,
	}
}

// Validate checks the tier set for overlapping ranges. Overlaps are an
// admin-data problem; the engine still resolves them deterministically by
// taking the lowest matching min cost, but the run should log the issue.
func (s *TierSet) Validate() error {
	for i := 1; i < len(s.tiers); i++ {
		prev := s.tiers[i-1]
		if prev.MaxCost == nil {
			return fmt.Errorf("tier %q is unbounded but is not the last tier", prev.Name)
		}
		if s.tiers[i].MinCost < *prev.MaxCost {
			return fmt.Errorf("tier %q overlaps tier %q", s.tiers[i].Name, prev.Name)
		}
	}
	return nil
}

// Round2 rounds to 2 decimal places, the precision of every money field
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
