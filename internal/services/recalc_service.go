package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/pricing"
	"catalog-sync-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	recalcProgressInit    = 5
	recalcProgressCounted = 10
	recalcProgressDone    = 100
)

const (
	stepCountingProducts = "counting_products"
	stepRepricing        = "repricing_products"
)

// RecalcRequest contains the trigger parameters for a pricing
// recalculation run. No source API call is made; only the persisted cost
// inputs are repriced.
type RecalcRequest struct {
	TriggeredBy      models.TriggerType    `json:"triggeredBy"`
	ShippingCost     float64               `json:"shippingCost"`
	Formula          models.PricingFormula `json:"formula"`
	RespectOverrides bool                  `json:"respectOverrides"`
	RecordIDs        []uuid.UUID           `json:"recordIds,omitempty"`
}

// RecalcService orchestrates tier-based repricing of the existing catalog.
// It walks the active in-stock products in keyset chunks and rewrites only
// the computed pricing fields; costs and stock are never touched.
type RecalcService struct {
	runRepo     repository.RunRepositoryInterface
	tierRepo    repository.TierRepositoryInterface
	productRepo repository.ProductRepositoryInterface
	cfg         *config.Config
	logger      *logrus.Logger

	activeRuns map[uuid.UUID]context.CancelFunc
	mu         sync.RWMutex
}

// NewRecalcService creates a new recalculation orchestrator
func NewRecalcService(
	runRepo repository.RunRepositoryInterface,
	tierRepo repository.TierRepositoryInterface,
	productRepo repository.ProductRepositoryInterface,
	cfg *config.Config,
	logger *logrus.Logger,
) *RecalcService {
	return &RecalcService{
		runRepo:     runRepo,
		tierRepo:    tierRepo,
		productRepo: productRepo,
		cfg:         cfg,
		logger:      logger,
		activeRuns:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// StartRun creates a recalculation run and starts it in the background.
// Only one recalculation may be running at a time; a concurrent full sync
// is allowed since the two runs write disjoint field sets.
func (s *RecalcService) StartRun(ctx context.Context, req *RecalcRequest) (*models.SyncRun, error) {
	if req.Formula != models.FormulaShippingIncluded && req.Formula != models.FormulaShippingSeparate {
		return nil, fmt.Errorf("%w: unknown pricing formula %d", ErrInvalidRequest, req.Formula)
	}
	if req.ShippingCost < 0 {
		return nil, fmt.Errorf("%w: shipping cost must not be negative", ErrInvalidRequest)
	}

	running, err := s.runRepo.GetRunningRuns(ctx, models.RunTypeRecalculation)
	if err != nil {
		return nil, fmt.Errorf("failed to check running recalculations: %w", err)
	}
	if len(running) > 0 {
		return nil, fmt.Errorf("%w: a recalculation is already running", ErrRunConflict)
	}

	run := &models.SyncRun{
		ID:          uuid.New(),
		RunType:     models.RunTypeRecalculation,
		Status:      models.RunStatusRunning,
		TriggeredBy: req.TriggeredBy,
		StartedAt:   time.Now(),
	}
	run.SetProgress(&models.RunProgress{})
	if err := s.runRepo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
	s.mu.Lock()
	s.activeRuns[run.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		s.runRecalc(runCtx, run, req)
	}()

	return run, nil
}

// CancelRun requests cooperative cancellation of a running recalculation
func (s *RecalcService) CancelRun(ctx context.Context, id uuid.UUID) error {
	if err := s.runRepo.RequestCancel(ctx, id); err != nil {
		return err
	}
	s.mu.RLock()
	cancel, exists := s.activeRuns[id]
	s.mu.RUnlock()
	if exists {
		cancel()
	}
	return nil
}

// runRecalc executes the repricing walk for one run
func (s *RecalcService) runRecalc(ctx context.Context, run *models.SyncRun, req *RecalcRequest) {
	defer func() {
		s.mu.Lock()
		delete(s.activeRuns, run.ID)
		s.mu.Unlock()
	}()

	log := s.logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"run_type": run.RunType,
	})
	log.Info("recalculation started")

	s.writeProgress(run, &models.RunProgress{Progress: recalcProgressInit, CurrentStep: stepLoadingTiers}, log)

	tierRows, err := s.tierRepo.ListActive(ctx)
	if err != nil {
		s.failRun(run, models.ReasonDatabaseError, fmt.Errorf("failed to load pricing tiers: %w", err), log)
		return
	}
	tiers := pricing.NewTierSet(tierRows)
	if tiers.Len() == 0 {
		s.failRun(run, models.ReasonOther, fmt.Errorf("no active pricing tiers configured"), log)
		return
	}

	// With RespectOverrides the overridden rows are excluded at the query,
	// so they never count toward the progress total either
	listOpts := repository.ProductListOptions{
		IDs:               req.RecordIDs,
		ExcludeOverridden: req.RespectOverrides,
	}
	total, err := s.productRepo.CountActiveInStock(ctx, listOpts)
	if err != nil {
		s.failRun(run, models.ReasonDatabaseError, fmt.Errorf("failed to count products: %w", err), log)
		return
	}
	run.TotalFetched = int(total)
	s.writeProgress(run, &models.RunProgress{
		Progress:    recalcProgressCounted,
		CurrentStep: stepCountingProducts,
		TotalItems:  int(total),
	}, log)

	chunkSize := s.cfg.RecalcChunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}

	// Rows repriced in an earlier chunk can reappear behind the cursor if
	// a concurrent sync flips them inactive and back; the seen set makes
	// the walk process each product exactly once.
	seen := make(map[uuid.UUID]struct{}, total)
	cursor := uuid.Nil
	cancelled := false

	for {
		if s.shouldCancel(ctx, run.ID) {
			cancelled = true
			break
		}

		listOpts.AfterID = cursor
		listOpts.Limit = chunkSize
		chunk, err := s.productRepo.ListActiveInStock(ctx, listOpts)
		if err != nil {
			s.failRun(run, models.ReasonDatabaseError, fmt.Errorf("failed to list products: %w", err), log)
			return
		}
		if len(chunk) == 0 {
			break
		}
		cursor = chunk[len(chunk)-1].ID

		for i := range chunk {
			// A dead context is the cancel signal; the outer loop turns
			// it into a cancelled finish
			if ctx.Err() != nil {
				break
			}
			product := &chunk[i]
			if _, ok := seen[product.ID]; ok {
				continue
			}
			seen[product.ID] = struct{}{}

			s.repriceProduct(ctx, run, product, tiers, req, log)
			run.Processed++

			if run.Processed%s.cfg.ProgressBatchSize == 0 {
				percent := recalcProgressCounted
				if total > 0 {
					percent += int(int64(95-recalcProgressCounted) * int64(run.Processed) / total)
				}
				s.writeProgress(run, &models.RunProgress{
					Progress:     percent,
					CurrentStep:  stepRepricing,
					CurrentItems: run.Processed,
					TotalItems:   int(total),
				}, log)
			}
		}
	}

	if cancelled {
		s.finishRun(run, models.RunStatusCancelled, log)
		return
	}

	status := models.RunStatusSuccess
	if run.ErrorCount > 0 {
		status = models.RunStatusPartial
	}
	s.writeProgress(run, &models.RunProgress{
		Progress:     recalcProgressDone,
		CurrentStep:  stepCompleted,
		CurrentItems: run.Processed,
		TotalItems:   int(total),
	}, log)
	s.finishRun(run, status, log)
}

// repriceProduct recomputes the pricing fields for one product. Overridden
// prices are never replaced: with RespectOverrides the rows are excluded at
// the query and the guard here catches ones that flip mid-walk, without it
// the stored price is kept and only the cost and profit fields are
// refreshed against the new shipping input.
//
// Rows with a bad stored cost or no matching tier are skipped and counted,
// not erred: they were priced (or flagged) by a sync already, and a
// recalculation cannot fix their inputs.
func (s *RecalcService) repriceProduct(ctx context.Context, run *models.SyncRun, product *models.CatalogProduct, tiers *pricing.TierSet, req *RecalcRequest, log *logrus.Entry) {
	if req.RespectOverrides && product.PriceOverride {
		run.Skipped++
		return
	}
	if product.CostUnit <= 0 {
		run.Skipped++
		return
	}

	quote := tiers.Price(product.CostUnit, req.ShippingCost, req.Formula)
	if quote == nil {
		run.Skipped++
		log.WithFields(logrus.Fields{
			"sku":       product.SKU,
			"unit_cost": product.CostUnit,
		}).Debug("no pricing tier matches, row skipped")
		return
	}

	update := repository.PricingUpdate{
		Price:               quote.Price,
		ProfitAmount:        quote.Profit,
		ProfitMarginPercent: quote.MarginPercent,
		CostShipping:        pricing.Round2(req.ShippingCost),
		CostTotal:           quote.TotalCost,
		MarkupMultiplier:    quote.Tier.Multiplier,
		PricingTierID:       &quote.Tier.ID,
	}
	if product.PriceOverride {
		update.Price = product.Price
		update.ProfitAmount = pricing.Round2(product.Price - quote.TotalCost)
		update.ProfitMarginPercent = 0
		if quote.TotalCost > 0 {
			update.ProfitMarginPercent = pricing.Round2(update.ProfitAmount / quote.TotalCost * 100)
		}
	}

	if err := s.productRepo.UpdatePricing(ctx, product.ID, update); err != nil {
		// A write killed by cancellation is not a record failure
		if ctx.Err() != nil {
			return
		}
		s.recordError(ctx, run, product.SKU, models.ReasonDatabaseError,
			fmt.Sprintf("failed to update pricing: %v", err), nil)
		return
	}
	run.Updated++
}

func (s *RecalcService) shouldCancel(ctx context.Context, runID uuid.UUID) bool {
	if ctx.Err() != nil {
		return true
	}
	requested, err := s.runRepo.IsCancelRequested(ctx, runID)
	if err != nil {
		return false
	}
	return requested
}

// writeProgress mirrors the payload onto the run before the best-effort
// write, so the full-row finalize keeps the last progress the pollers saw
func (s *RecalcService) writeProgress(run *models.SyncRun, progress *models.RunProgress, log *logrus.Entry) {
	run.SetProgress(progress)
	if err := s.runRepo.UpdateRunProgress(context.Background(), run.ID, progress); err != nil {
		log.WithError(err).Warn("failed to write progress")
	}
}

func (s *RecalcService) recordError(ctx context.Context, run *models.SyncRun, recordKey string, reason models.ReasonCode, message string, raw models.JSONB) {
	run.ErrorCount++
	runErr := &models.SyncRunError{
		ID:         uuid.New(),
		RunID:      run.ID,
		Message:    message,
		ReasonCode: reason,
		RawContext: raw,
	}
	if recordKey != "" {
		runErr.RecordKey = &recordKey
	}
	if err := s.runRepo.CreateRunError(ctx, runErr); err != nil {
		s.logger.WithError(err).WithField("run_id", run.ID).Warn("failed to write run error")
	}
}

func (s *RecalcService) failRun(run *models.SyncRun, reason models.ReasonCode, cause error, log *logrus.Entry) {
	log.WithError(cause).Error("recalculation failed")
	run.ErrorMessage = cause.Error()
	s.recordError(context.Background(), run, "", reason, cause.Error(), nil)
	s.finishRun(run, models.RunStatusFailed, log)
}

func (s *RecalcService) finishRun(run *models.SyncRun, status models.RunStatus, log *logrus.Entry) {
	run.Status = status
	if err := s.runRepo.FinalizeRun(context.Background(), run); err != nil {
		log.WithError(err).Error("failed to finalize run")
		return
	}
	log.WithFields(logrus.Fields{
		"status":    status,
		"total":     run.TotalFetched,
		"processed": run.Processed,
		"updated":   run.Updated,
		"skipped":   run.Skipped,
		"errors":    run.ErrorCount,
		"duration":  run.DurationSeconds,
	}).Info("recalculation finished")
}
