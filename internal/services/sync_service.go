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
	"catalog-sync-service/internal/source"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Progress milestones written at each state transition of a full sync, so
// a polling observer sees forward motion even mid-run.
const (
	progressInit        = 5
	progressTiersLoaded = 10
	progressLookups     = 15
	progressFetched     = 25
	progressMapped      = 40
	progressUpserting   = 50
	progressDeactivated = 95
	progressDone        = 100
)

// Step names surfaced through the progress channel
const (
	stepLoadingTiers = "loading_tiers"
	stepReconciling  = "reconciling_lookups"
	stepFetching     = "fetching_records"
	stepMapping      = "mapping_records"
	stepUpserting    = "upserting_products"
	stepDeactivating = "deactivating_missing"
	stepCompleted    = "completed"
)

// SyncRunRequest contains the trigger parameters for a full sync
type SyncRunRequest struct {
	TriggeredBy   models.TriggerType `json:"triggeredBy"`
	RecordCap     int                `json:"recordCap,omitempty"`
	ShippingCost  float64            `json:"shippingCost"`
	ExistingRunID *uuid.UUID         `json:"existingRunId,omitempty"`
}

// SyncService orchestrates the full ERP synchronization pipeline:
// tiers -> lookups -> fetch -> map+price -> upsert -> deactivate -> finalize.
// Each run is a single sequential flow; partial failures are isolated per
// record and never abort the loop.
type SyncService struct {
	runRepo      repository.RunRepositoryInterface
	tierRepo     repository.TierRepositoryInterface
	productRepo  repository.ProductRepositoryInterface
	movementRepo repository.MovementRepositoryInterface
	lookups      *LookupService
	client       source.Client
	cfg          *config.Config
	logger       *logrus.Logger

	activeRuns map[uuid.UUID]context.CancelFunc
	mu         sync.RWMutex
}

// NewSyncService creates a new sync orchestrator
func NewSyncService(
	runRepo repository.RunRepositoryInterface,
	tierRepo repository.TierRepositoryInterface,
	productRepo repository.ProductRepositoryInterface,
	movementRepo repository.MovementRepositoryInterface,
	lookups *LookupService,
	client source.Client,
	cfg *config.Config,
	logger *logrus.Logger,
) *SyncService {
	return &SyncService{
		runRepo:      runRepo,
		tierRepo:     tierRepo,
		productRepo:  productRepo,
		movementRepo: movementRepo,
		lookups:      lookups,
		client:       client,
		cfg:          cfg,
		logger:       logger,
		activeRuns:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// StartRun creates (or adopts) a run record and starts the sync in the
// background. Only one full sync may be running at a time.
func (s *SyncService) StartRun(ctx context.Context, req *SyncRunRequest) (*models.SyncRun, error) {
	if req.ShippingCost < 0 {
		return nil, fmt.Errorf("%w: shipping cost must not be negative", ErrInvalidRequest)
	}
	if req.ShippingCost == 0 {
		req.ShippingCost = s.cfg.DefaultShippingCost
	}

	running, err := s.runRepo.GetRunningRuns(ctx, models.RunTypeFullSync)
	if err != nil {
		return nil, fmt.Errorf("failed to check running syncs: %w", err)
	}

	var run *models.SyncRun
	if req.ExistingRunID != nil {
		// The trigger surface may pre-create the run row so it can hand
		// the id to the poller before starting us
		run, err = s.runRepo.GetRun(ctx, *req.ExistingRunID)
		if err != nil {
			return nil, fmt.Errorf("%w: existing run not found: %v", ErrInvalidRequest, err)
		}
		if run.IsTerminal() {
			return nil, fmt.Errorf("%w: run %s is already finished", ErrRunConflict, run.ID)
		}
	}

	for _, r := range running {
		if run == nil || r.ID != run.ID {
			return nil, fmt.Errorf("%w: a full sync is already running", ErrRunConflict)
		}
	}

	if run == nil {
		run = &models.SyncRun{
			ID:          uuid.New(),
			RunType:     models.RunTypeFullSync,
			Status:      models.RunStatusRunning,
			TriggeredBy: req.TriggeredBy,
			StartedAt:   time.Now(),
		}
		run.SetProgress(&models.RunProgress{})
		if err := s.runRepo.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
	s.mu.Lock()
	s.activeRuns[run.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		s.runSync(runCtx, run, req)
	}()

	return run, nil
}

// GetRun retrieves a run by ID
func (s *SyncService) GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	return s.runRepo.GetRun(ctx, id)
}

// ListRuns lists runs
func (s *SyncService) ListRuns(ctx context.Context, opts *repository.RunListOptions) ([]models.SyncRun, int64, error) {
	if opts == nil {
		opts = &repository.RunListOptions{}
	}
	return s.runRepo.ListRuns(ctx, *opts)
}

// GetRunErrors retrieves the itemized error rows for a run
func (s *SyncService) GetRunErrors(ctx context.Context, runID uuid.UUID, limit, offset int) ([]models.SyncRunError, error) {
	return s.runRepo.GetRunErrors(ctx, runID, limit, offset)
}

// GetRunMovements retrieves the stock movements a run emitted
func (s *SyncService) GetRunMovements(ctx context.Context, runID uuid.UUID) ([]models.InventoryMovement, error) {
	return s.movementRepo.GetMovementsByRun(ctx, runID)
}

// GetStats retrieves aggregate run statistics
func (s *SyncService) GetStats(ctx context.Context) (*repository.RunStats, error) {
	return s.runRepo.GetRunStats(ctx)
}

// CancelRun requests cooperative cancellation of a running run. The flag
// is honored at the next progress checkpoint.
func (s *SyncService) CancelRun(ctx context.Context, id uuid.UUID) error {
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

// TestConnection probes the source API
func (s *SyncService) TestConnection(ctx context.Context) bool {
	return s.client.TestConnection(ctx)
}

// runSync executes the whole pipeline for one run
func (s *SyncService) runSync(ctx context.Context, run *models.SyncRun, req *SyncRunRequest) {
	defer func() {
		s.mu.Lock()
		delete(s.activeRuns, run.ID)
		s.mu.Unlock()
	}()

	log := s.logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"run_type": run.RunType,
	})
	log.Info("sync started")

	s.writeProgress(run, &models.RunProgress{Progress: progressInit, CurrentStep: stepLoadingTiers}, log)

	// Initialization: tier load failure is fatal before any milestone work
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
	if err := tiers.Validate(); err != nil {
		log.WithError(err).Warn("pricing tier ranges are inconsistent")
	}
	s.writeProgress(run, &models.RunProgress{Progress: progressTiersLoaded, CurrentStep: stepReconciling}, log)

	// Reference data: all three tables reconcile before any mapping
	maps, err := s.reconcileLookups(ctx, run, log)
	if err != nil {
		s.failRun(run, models.ReasonNetworkError, err, log)
		return
	}
	s.writeProgress(run, &models.RunProgress{Progress: progressLookups, CurrentStep: stepFetching}, log)

	// Fetch: a page failure after retries fails the whole run
	records, err := s.client.FetchAll(ctx, source.ResourceProducts, nil, source.FetchOptions{
		Cap:      req.RecordCap,
		PageSize: s.cfg.SourcePageSize,
	})
	if err != nil {
		s.failRun(run, models.ReasonNetworkError, fmt.Errorf("failed to fetch source records: %w", err), log)
		return
	}
	run.TotalFetched = len(records)
	s.writeProgress(run, &models.RunProgress{
		Progress:    progressFetched,
		CurrentStep: stepMapping,
		TotalItems:  len(records),
	}, log)

	// Map: partition into candidates and failures, never aborting on a
	// bad record
	products := make([]*models.CatalogProduct, 0, len(records))
	for _, record := range records {
		product, failure := MapRecord(record, maps, tiers, req.ShippingCost, models.FormulaShippingIncluded)
		if failure != nil {
			s.recordError(ctx, run, failure.RecordKey, failure.ReasonCode, failure.Message, failure.Raw)
			run.Skipped++
			run.Processed++
			continue
		}
		products = append(products, product)
	}
	s.writeProgress(run, &models.RunProgress{
		Progress:    progressMapped,
		CurrentStep: stepUpserting,
		TotalItems:  len(records),
	}, log)

	// Upsert survivors one at a time, preserving price overrides and
	// tracking stock changes
	cancelled := false
	for i, product := range products {
		// A dead context is the cancel signal; records past this point
		// would only fail against it
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if i%s.cfg.ProgressBatchSize == 0 {
			if s.shouldCancel(ctx, run.ID) {
				cancelled = true
				break
			}
			percent := progressUpserting
			if len(products) > 0 {
				percent += (progressDeactivated - progressUpserting) * i / len(products)
			}
			s.writeProgress(run, &models.RunProgress{
				Progress:     percent,
				CurrentStep:  stepUpserting,
				CurrentItems: run.Processed,
				TotalItems:   len(records),
			}, log)
		}

		s.upsertProduct(ctx, run, product, log)
		run.Processed++
	}

	if cancelled {
		s.finishRun(run, models.RunStatusCancelled, log)
		return
	}

	// Deactivate records the source stopped returning, in bounded batches
	s.deactivateMissing(ctx, run, records, log)
	s.writeProgress(run, &models.RunProgress{
		Progress:     progressDeactivated,
		CurrentStep:  stepDeactivating,
		CurrentItems: run.Processed,
		TotalItems:   len(records),
	}, log)

	status := models.RunStatusSuccess
	if run.ErrorCount > 0 {
		status = models.RunStatusPartial
	}
	s.writeProgress(run, &models.RunProgress{
		Progress:     progressDone,
		CurrentStep:  stepCompleted,
		CurrentItems: run.Processed,
		TotalItems:   len(records),
	}, log)
	s.finishRun(run, status, log)
}

// reconcileLookups fetches the three reference collections and upserts
// them. Fetch failures are fatal; per-row upsert failures are logged as
// run errors and the row is excluded from the maps.
func (s *SyncService) reconcileLookups(ctx context.Context, run *models.SyncRun, log *logrus.Entry) (*models.LookupMaps, error) {
	categories, err := s.client.FetchAll(ctx, source.ResourceCategories, nil, source.FetchOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	brands, err := s.client.FetchAll(ctx, source.ResourceBrands, nil, source.FetchOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch brands: %w", err)
	}
	materials, err := s.client.FetchAll(ctx, source.ResourceMaterials, nil, source.FetchOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch materials: %w", err)
	}

	maps, failures := s.lookups.ReconcileAll(ctx, categories, brands, materials)
	for _, failure := range failures {
		key := failure.ExternalID
		s.recordError(ctx, run, key, models.ReasonDatabaseError,
			fmt.Sprintf("failed to upsert %s %s: %v", failure.Table, failure.ExternalID, failure.Err),
			models.JSONB{"table": failure.Table, "external_id": failure.ExternalID})
	}

	log.WithFields(logrus.Fields{
		"categories": len(maps.Categories),
		"brands":     len(maps.Brands),
		"materials":  len(maps.Materials),
		"failures":   len(failures),
	}).Info("lookups reconciled")

	return maps, nil
}

// upsertProduct writes one mapped product, preserving a manual price
// override on the existing row and emitting an inventory movement when
// the stock level changed
func (s *SyncService) upsertProduct(ctx context.Context, run *models.SyncRun, product *models.CatalogProduct, log *logrus.Entry) {
	existing, err := s.productRepo.GetBySKU(ctx, product.SKU)
	if err != nil {
		// A read killed by cancellation is not a record failure
		if ctx.Err() != nil {
			return
		}
		s.recordError(ctx, run, product.SKU, models.ReasonDatabaseError,
			fmt.Sprintf("failed to load existing product: %v", err), nil)
		return
	}

	if existing != nil && existing.PriceOverride {
		// A human set this price; only the informational fields follow
		// the new cost
		product.Price = existing.Price
		product.PriceOverride = true
		product.ProfitAmount = pricing.Round2(product.Price - product.CostTotal)
		if product.CostTotal > 0 {
			product.ProfitMarginPercent = pricing.Round2(product.ProfitAmount / product.CostTotal * 100)
		}
	}

	now := time.Now()
	product.LastSyncedAt = &now

	if err := s.productRepo.Upsert(ctx, product); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.recordError(ctx, run, product.SKU, models.ReasonDatabaseError,
			fmt.Sprintf("failed to upsert product: %v", err), nil)
		return
	}
	run.Updated++

	if existing != nil && existing.StockQuantity != product.StockQuantity {
		movement := models.NewSyncMovement(existing.ID, run.ID, existing.StockQuantity, product.StockQuantity)
		if err := s.movementRepo.CreateMovement(ctx, movement); err != nil {
			log.WithError(err).WithField("sku", product.SKU).Warn("failed to record inventory movement")
		}
	}
}

// deactivateMissing marks previously synced products inactive when the
// source stopped returning them. The id list is processed in fixed-size
// batches; large NOT-IN predicates are rejected by the query transport,
// so batching is a correctness requirement here.
func (s *SyncService) deactivateMissing(ctx context.Context, run *models.SyncRun, records []source.Record, log *logrus.Entry) {
	present := make(map[string]struct{}, len(records))
	for _, record := range records {
		if record.ExternalID != "" {
			present[record.ExternalID] = struct{}{}
		}
	}

	refs, err := s.productRepo.ListActiveExternalRefs(ctx)
	if err != nil {
		s.recordError(ctx, run, "", models.ReasonDatabaseError,
			fmt.Sprintf("failed to list active products for deactivation: %v", err), nil)
		return
	}

	var missing []uuid.UUID
	for _, ref := range refs {
		if _, ok := present[ref.ExternalID]; !ok {
			missing = append(missing, ref.ID)
		}
	}
	if len(missing) == 0 {
		return
	}

	batchSize := s.cfg.DeactivationBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	var deactivated int64
	for i := 0; i < len(missing); i += batchSize {
		end := i + batchSize
		if end > len(missing) {
			end = len(missing)
		}
		count, err := s.productRepo.DeactivateByIDs(ctx, missing[i:end])
		if err != nil {
			s.recordError(ctx, run, "", models.ReasonDatabaseError,
				fmt.Sprintf("failed to deactivate batch: %v", err), nil)
			continue
		}
		deactivated += count
	}

	log.WithField("deactivated", deactivated).Info("missing products deactivated")
}

// shouldCancel checks the context and the run's cooperative cancel flag
func (s *SyncService) shouldCancel(ctx context.Context, runID uuid.UUID) bool {
	if ctx.Err() != nil {
		return true
	}
	requested, err := s.runRepo.IsCancelRequested(ctx, runID)
	if err != nil {
		return false
	}
	return requested
}

// writeProgress mirrors the payload onto the run before writing it, so a
// later full-row finalize cannot roll the stored progress back. The write
// itself is best-effort: a failed progress write never aborts a run.
func (s *SyncService) writeProgress(run *models.SyncRun, progress *models.RunProgress, log *logrus.Entry) {
	run.SetProgress(progress)
	if err := s.runRepo.UpdateRunProgress(context.Background(), run.ID, progress); err != nil {
		log.WithError(err).Warn("failed to write progress")
	}
}

// recordError appends a run error row and bumps the run's error counter
func (s *SyncService) recordError(ctx context.Context, run *models.SyncRun, recordKey string, reason models.ReasonCode, message string, raw models.JSONB) {
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

// failRun marks a run failed with exactly one synthetic error row
func (s *SyncService) failRun(run *models.SyncRun, reason models.ReasonCode, cause error, log *logrus.Entry) {
	log.WithError(cause).Error("sync failed")
	run.ErrorMessage = cause.Error()
	s.recordError(context.Background(), run, "", reason, cause.Error(), nil)
	s.finishRun(run, models.RunStatusFailed, log)
}

// finishRun persists the terminal state of a run
func (s *SyncService) finishRun(run *models.SyncRun, status models.RunStatus, log *logrus.Entry) {
	run.Status = status
	if err := s.runRepo.FinalizeRun(context.Background(), run); err != nil {
		log.WithError(err).Error("failed to finalize run")
		return
	}
	log.WithFields(logrus.Fields{
		"status":    status,
		"fetched":   run.TotalFetched,
		"processed": run.Processed,
		"updated":   run.Updated,
		"skipped":   run.Skipped,
		"errors":    run.ErrorCount,
		"duration":  run.DurationSeconds,
	}).Info("sync finished")
}
