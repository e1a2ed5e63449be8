package services

import (
	"context"
	"testing"
	"time"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type recalcFixture struct {
	runRepo     *MockRunRepository
	tierRepo    *MockTierRepository
	productRepo *MockProductRepository
	service     *RecalcService
}

func newRecalcFixture() *recalcFixture {
	f := &recalcFixture{
		runRepo:     new(MockRunRepository),
		tierRepo:    new(MockTierRepository),
		productRepo: new(MockProductRepository),
	}
	f.service = NewRecalcService(f.runRepo, f.tierRepo, f.productRepo, testConfig(), testLogger())
	return f
}

func newRecalcRun() *models.SyncRun {
	return &models.SyncRun{
		ID:          uuid.New(),
		RunType:     models.RunTypeRecalculation,
		Status:      models.RunStatusRunning,
		TriggeredBy: models.TriggerManual,
		StartedAt:   time.Now(),
	}
}

func (f *recalcFixture) expectProgressWrites(runID uuid.UUID) {
	f.runRepo.On("UpdateRunProgress", mock.Anything, runID, mock.AnythingOfType("*models.RunProgress")).Return(nil)
	f.runRepo.On("IsCancelRequested", mock.Anything, runID).Return(false, nil).Maybe()
}

func TestRunRecalc_RepricesAllProducts(t *testing.T) {
	f := newRecalcFixture()
	run := newRecalcRun()

	products := []models.CatalogProduct{
		{ID: uuid.New(), SKU: "SKU-001", CostUnit: 10, StockQuantity: 5, Active: true},
		{ID: uuid.New(), SKU: "SKU-002", CostUnit: 50, StockQuantity: 3, Active: true},
	}

	f.tierRepo.On("ListActive", mock.Anything).Return(testTierSetRows(), nil)
	f.expectProgressWrites(run.ID)
	f.productRepo.On("CountActiveInStock", mock.Anything, mock.AnythingOfType("repository.ProductListOptions")).
		Return(int64(2), nil)
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == uuid.Nil
	})).Return(products, nil).Once()
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == products[1].ID
	})).Return([]models.CatalogProduct{}, nil).Once()

	// budget tier: 5 + 10*3 = 35; standard tier: 5 + 50*2 = 105
	f.productRepo.On("UpdatePricing", mock.Anything, products[0].ID, mock.MatchedBy(func(u repository.PricingUpdate) bool {
		return u.Price == 35.0 && u.CostShipping == 5.0 && u.CostTotal == 15.0
	})).Return(nil).Once()
	f.productRepo.On("UpdatePricing", mock.Anything, products[1].ID, mock.MatchedBy(func(u repository.PricingUpdate) bool {
		return u.Price == 105.0 && u.MarkupMultiplier == 2.0
	})).Return(nil).Once()
	f.runRepo.On("FinalizeRun", mock.Anything, run).Return(nil)

	f.service.runRecalc(context.Background(), run, &RecalcRequest{
		ShippingCost: 5,
		Formula:      models.FormulaShippingIncluded,
	})

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.TotalFetched)
	assert.Equal(t, 2, run.Processed)
	assert.Equal(t, 2, run.Updated)
	f.productRepo.AssertExpectations(t)
}

func TestRunRecalc_RespectOverridesSkipsRow(t *testing.T) {
	f := newRecalcFixture()
	run := newRecalcRun()

	overridden := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-OVR", CostUnit: 10, Price: 79.99, PriceOverride: true}
	normal := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-001", CostUnit: 10}

	f.tierRepo.On("ListActive", mock.Anything).Return(testTierSetRows(), nil)
	f.expectProgressWrites(run.ID)
	// Overridden rows are filtered out at the query so the progress total
	// never counts them
	f.productRepo.On("CountActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.ExcludeOverridden
	})).Return(int64(1), nil)
	// The first chunk still serves an overridden row, as happens when an
	// override lands between the count and the chunk read; the walk must
	// skip it rather than reprice it
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == uuid.Nil && opts.ExcludeOverridden
	})).Return([]models.CatalogProduct{overridden, normal}, nil).Once()
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == normal.ID
	})).Return([]models.CatalogProduct{}, nil).Once()
	f.productRepo.On("UpdatePricing", mock.Anything, normal.ID, mock.Anything).Return(nil).Once()
	f.runRepo.On("FinalizeRun", mock.Anything, run).Return(nil)

	f.service.runRecalc(context.Background(), run, &RecalcRequest{
		Formula:          models.FormulaShippingIncluded,
		RespectOverrides: true,
	})

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, run.Updated)
	f.productRepo.AssertNotCalled(t, "UpdatePricing", mock.Anything, overridden.ID, mock.Anything)
	f.productRepo.AssertExpectations(t)
}

func TestRunRecalc_OverriddenPriceNeverReplaced(t *testing.T) {
	f := newRecalcFixture()
	run := newRecalcRun()

	overridden := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-OVR", CostUnit: 10, Price: 79.99, PriceOverride: true}

	f.tierRepo.On("ListActive", mock.Anything).Return(testTierSetRows(), nil)
	f.expectProgressWrites(run.ID)
	f.productRepo.On("CountActiveInStock", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == uuid.Nil
	})).Return([]models.CatalogProduct{overridden}, nil).Once()
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == overridden.ID
	})).Return([]models.CatalogProduct{}, nil).Once()

	// Without RespectOverrides the row is still repriced, but the stored
	// price is kept and only the cost and profit fields move
	f.productRepo.On("UpdatePricing", mock.Anything, overridden.ID, mock.MatchedBy(func(u repository.PricingUpdate) bool {
		return u.Price == 79.99 && u.CostShipping == 5.0 && u.CostTotal == 15.0 && u.ProfitAmount == 64.99
	})).Return(nil).Once()
	f.runRepo.On("FinalizeRun", mock.Anything, run).Return(nil)

	f.service.runRecalc(context.Background(), run, &RecalcRequest{
		ShippingCost:     5,
		Formula:          models.FormulaShippingIncluded,
		RespectOverrides: false,
	})

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 1, run.Updated)
	f.productRepo.AssertExpectations(t)
}

func TestRunRecalc_UnpriceableRowsSkippedNotErred(t *testing.T) {
	f := newRecalcFixture()
	run := newRecalcRun()

	// Cost 5000 has no tier in a bounded set; cost 0 is skipped outright
	noTier := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-BIG", CostUnit: 5000}
	zeroCost := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-ZERO", CostUnit: 0}
	tiers := []models.PricingTier{
		{ID: uuid.New(), Name: "only", MinCost: 0, MaxCost: floatPtr(100), Multiplier: 2, Active: true},
	}

	f.tierRepo.On("ListActive", mock.Anything).Return(tiers, nil)
	f.expectProgressWrites(run.ID)
	f.productRepo.On("CountActiveInStock", mock.Anything, mock.Anything).Return(int64(2), nil)
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == uuid.Nil
	})).Return([]models.CatalogProduct{noTier, zeroCost}, nil).Once()
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == zeroCost.ID
	})).Return([]models.CatalogProduct{}, nil).Once()
	f.runRepo.On("FinalizeRun", mock.Anything, run).Return(nil)

	f.service.runRecalc(context.Background(), run, &RecalcRequest{Formula: models.FormulaShippingIncluded})

	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Skipped)
	assert.Equal(t, 0, run.ErrorCount)
	f.productRepo.AssertNotCalled(t, "UpdatePricing", mock.Anything, mock.Anything, mock.Anything)
	f.runRepo.AssertNotCalled(t, "CreateRunError", mock.Anything, mock.Anything)
}

func TestRunRecalc_DeduplicatesAcrossChunks(t *testing.T) {
	f := newRecalcFixture()
	run := newRecalcRun()

	first := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-001", CostUnit: 10}
	second := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-002", CostUnit: 10}

	f.tierRepo.On("ListActive", mock.Anything).Return(testTierSetRows(), nil)
	f.expectProgressWrites(run.ID)
	f.productRepo.On("CountActiveInStock", mock.Anything, mock.Anything).Return(int64(2), nil)
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == uuid.Nil
	})).Return([]models.CatalogProduct{first}, nil).Once()
	// The second chunk re-serves the first row; it must not be repriced twice
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == first.ID
	})).Return([]models.CatalogProduct{first, second}, nil).Once()
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == second.ID
	})).Return([]models.CatalogProduct{}, nil).Once()
	f.productRepo.On("UpdatePricing", mock.Anything, first.ID, mock.Anything).Return(nil).Once()
	f.productRepo.On("UpdatePricing", mock.Anything, second.ID, mock.Anything).Return(nil).Once()
	f.runRepo.On("FinalizeRun", mock.Anything, run).Return(nil)

	f.service.runRecalc(context.Background(), run, &RecalcRequest{Formula: models.FormulaShippingIncluded})

	assert.Equal(t, 2, run.Processed)
	assert.Equal(t, 2, run.Updated)
	f.productRepo.AssertExpectations(t)
}

func TestRunRecalc_FinalProgressSurvivesFinalize(t *testing.T) {
	f := newRecalcFixture()
	run := newRecalcRun()
	run.SetProgress(&models.RunProgress{})

	product := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-001", CostUnit: 10}

	f.tierRepo.On("ListActive", mock.Anything).Return(testTierSetRows(), nil)
	f.expectProgressWrites(run.ID)
	f.productRepo.On("CountActiveInStock", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == uuid.Nil
	})).Return([]models.CatalogProduct{product}, nil).Once()
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == product.ID
	})).Return([]models.CatalogProduct{}, nil).Once()
	f.productRepo.On("UpdatePricing", mock.Anything, product.ID, mock.Anything).Return(nil).Once()

	// The finalize write persists the whole row, so the run must carry the
	// last progress payload at that point, not the zero value from creation
	var atFinalize *models.RunProgress
	f.runRepo.On("FinalizeRun", mock.Anything, run).
		Run(func(args mock.Arguments) {
			atFinalize = args.Get(1).(*models.SyncRun).GetProgress()
		}).Return(nil)

	f.service.runRecalc(context.Background(), run, &RecalcRequest{Formula: models.FormulaShippingIncluded})

	assert.NotNil(t, atFinalize)
	assert.Equal(t, 100, atFinalize.Progress)
	assert.Equal(t, stepCompleted, atFinalize.CurrentStep)
}

func TestRunRecalc_CancelMidChunkKeepsCountsClean(t *testing.T) {
	f := newRecalcFixture()
	run := newRecalcRun()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-001", CostUnit: 10}
	second := models.CatalogProduct{ID: uuid.New(), SKU: "SKU-002", CostUnit: 10}

	f.tierRepo.On("ListActive", mock.Anything).Return(testTierSetRows(), nil)
	f.expectProgressWrites(run.ID)
	f.productRepo.On("CountActiveInStock", mock.Anything, mock.Anything).Return(int64(2), nil)
	f.productRepo.On("ListActiveInStock", mock.Anything, mock.MatchedBy(func(opts repository.ProductListOptions) bool {
		return opts.AfterID == uuid.Nil
	})).Return([]models.CatalogProduct{first, second}, nil).Once()
	// The cancel lands while the first row is being written; the failed
	// write must not be recorded as a run error and the rest of the chunk
	// must not be touched
	f.productRepo.On("UpdatePricing", mock.Anything, first.ID, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled).Once()
	f.runRepo.On("FinalizeRun", mock.Anything, run).Return(nil)

	f.service.runRecalc(ctx, run, &RecalcRequest{Formula: models.FormulaShippingIncluded})

	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.Equal(t, 0, run.ErrorCount)
	assert.Equal(t, 0, run.Updated)
	f.runRepo.AssertNotCalled(t, "CreateRunError", mock.Anything, mock.Anything)
	f.productRepo.AssertNotCalled(t, "UpdatePricing", mock.Anything, second.ID, mock.Anything)
}

func TestRunRecalc_CancelledBeforeFirstChunk(t *testing.T) {
	f := newRecalcFixture()
	run := newRecalcRun()

	f.tierRepo.On("ListActive", mock.Anything).Return(testTierSetRows(), nil)
	f.runRepo.On("UpdateRunProgress", mock.Anything, run.ID, mock.AnythingOfType("*models.RunProgress")).Return(nil)
	f.runRepo.On("IsCancelRequested", mock.Anything, run.ID).Return(true, nil)
	f.productRepo.On("CountActiveInStock", mock.Anything, mock.Anything).Return(int64(10), nil)
	f.runRepo.On("FinalizeRun", mock.Anything, run).Return(nil)

	f.service.runRecalc(context.Background(), run, &RecalcRequest{Formula: models.FormulaShippingIncluded})

	assert.Equal(t, models.RunStatusCancelled, run.Status)
	f.productRepo.AssertNotCalled(t, "ListActiveInStock", mock.Anything, mock.Anything)
}

func TestStartRun_RejectsUnknownFormula(t *testing.T) {
	f := newRecalcFixture()

	run, err := f.service.StartRun(context.Background(), &RecalcRequest{Formula: models.PricingFormula(9)})

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, run)
	f.runRepo.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}

func TestStartRun_RejectsNegativeShipping(t *testing.T) {
	f := newRecalcFixture()

	run, err := f.service.StartRun(context.Background(), &RecalcRequest{
		Formula:      models.FormulaShippingIncluded,
		ShippingCost: -1,
	})

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, run)
}

func TestStartRun_RejectsConcurrentRecalc(t *testing.T) {
	f := newRecalcFixture()

	f.runRepo.On("GetRunningRuns", mock.Anything, models.RunTypeRecalculation).
		Return([]models.SyncRun{*newRecalcRun()}, nil)

	run, err := f.service.StartRun(context.Background(), &RecalcRequest{Formula: models.FormulaShippingSeparate})

	assert.ErrorIs(t, err, ErrRunConflict)
	assert.Nil(t, run)
	f.runRepo.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}
