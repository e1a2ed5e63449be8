package services

import (
	"context"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/source"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LookupFailure records one reference row that could not be upserted. The
// row is excluded from the returned map; its dependent products will fail
// lookup resolution later, which is an expected outcome, not an abort.
type LookupFailure struct {
	Table      string
	ExternalID string
	Err        error
}

// LookupService reconciles the reference tables (category, brand,
// material) against the ERP source before any product mapping begins
type LookupService struct {
	lookupRepo repository.LookupRepositoryInterface
	logger     *logrus.Logger
}

// NewLookupService creates a new lookup service
func NewLookupService(lookupRepo repository.LookupRepositoryInterface, logger *logrus.Logger) *LookupService {
	return &LookupService{
		lookupRepo: lookupRepo,
		logger:     logger,
	}
}

// ReconcileAll upserts all three reference tables and returns the
// external-id to internal-id maps used for product foreign key resolution.
// All tables complete before the caller may start mapping products.
func (s *LookupService) ReconcileAll(ctx context.Context, categories, brands, materials []source.Record) (*models.LookupMaps, []LookupFailure) {
	maps := &models.LookupMaps{
		Categories: make(map[string]uuid.UUID, len(categories)),
		Brands:     make(map[string]uuid.UUID, len(brands)),
		Materials:  make(map[string]uuid.UUID, len(materials)),
	}
	var failures []LookupFailure

	for _, record := range categories {
		category := &models.Category{
			ExternalID: record.ExternalID,
			Name:       nameOrExternalID(record),
			Active:     true,
		}
		if err := s.lookupRepo.UpsertCategory(ctx, category); err != nil {
			failures = append(failures, s.failure("category", record.ExternalID, err))
			continue
		}
		maps.Categories[record.ExternalID] = category.ID
	}

	for _, record := range brands {
		brand := &models.Brand{
			ExternalID: record.ExternalID,
			Name:       nameOrExternalID(record),
			Active:     true,
		}
		if err := s.lookupRepo.UpsertBrand(ctx, brand); err != nil {
			failures = append(failures, s.failure("brand", record.ExternalID, err))
			continue
		}
		maps.Brands[record.ExternalID] = brand.ID
	}

	for _, record := range materials {
		material := &models.Material{
			ExternalID: record.ExternalID,
			Name:       nameOrExternalID(record),
			Active:     true,
		}
		if err := s.lookupRepo.UpsertMaterial(ctx, material); err != nil {
			failures = append(failures, s.failure("material", record.ExternalID, err))
			continue
		}
		maps.Materials[record.ExternalID] = material.ID
	}

	return maps, failures
}

func (s *LookupService) failure(table, externalID string, err error) LookupFailure {
	s.logger.WithFields(logrus.Fields{
		"table":       table,
		"external_id": externalID,
	}).WithError(err).Warn("failed to upsert lookup record")
	return LookupFailure{Table: table, ExternalID: externalID, Err: err}
}

func nameOrExternalID(record source.Record) string {
	if record.Name != "" {
		return record.Name
	}
	return record.ExternalID
}
