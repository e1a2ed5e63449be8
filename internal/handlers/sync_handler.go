package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SyncHandler handles sync run trigger and polling endpoints
type SyncHandler struct {
	syncService   *services.SyncService
	recalcService *services.RecalcService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService *services.SyncService, recalcService *services.RecalcService) *SyncHandler {
	return &SyncHandler{
		syncService:   syncService,
		recalcService: recalcService,
	}
}

// CreateRun starts a full synchronization run
func (h *SyncHandler) CreateRun(c *gin.Context) {
	var req services.SyncRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = models.TriggerManual
	}

	run, err := h.syncService.StartRun(c.Request.Context(), &req)
	if err != nil {
		writeStartError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": run})
}

// CreateRecalculation starts a pricing recalculation run
func (h *SyncHandler) CreateRecalculation(c *gin.Context) {
	var req services.RecalcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = models.TriggerManual
	}

	run, err := h.recalcService.StartRun(c.Request.Context(), &req)
	if err != nil {
		writeStartError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": run})
}

// ListRuns returns run history
func (h *SyncHandler) ListRuns(c *gin.Context) {
	opts := &repository.RunListOptions{
		RunType: c.Query("runType"),
		Status:  c.Query("status"),
		Limit:   parsePositiveInt(c.Query("limit"), 50),
		Offset:  parsePositiveInt(c.Query("offset"), 0),
	}

	runs, total, err := h.syncService.ListRuns(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  runs,
		"total": total,
	})
}

// GetRun returns a single run including its progress payload
func (h *SyncHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	run, err := h.syncService.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}

// GetRunErrors returns the itemized error rows for a run
func (h *SyncHandler) GetRunErrors(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	limit := parsePositiveInt(c.Query("limit"), 100)
	offset := parsePositiveInt(c.Query("offset"), 0)

	errs, err := h.syncService.GetRunErrors(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   errs,
		"limit":  limit,
		"offset": offset,
	})
}

// GetRunMovements returns the stock movements a sync run emitted
func (h *SyncHandler) GetRunMovements(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	movements, err := h.syncService.GetRunMovements(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": movements})
}

// CancelRun requests cancellation of a running run
func (h *SyncHandler) CancelRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	run, err := h.syncService.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if run.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "run is already finished"})
		return
	}

	// Route the request to the orchestrator that owns the in-flight run
	if run.RunType == models.RunTypeRecalculation {
		err = h.recalcService.CancelRun(c.Request.Context(), id)
	} else {
		err = h.syncService.CancelRun(c.Request.Context(), id)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

// GetStats returns aggregate run statistics
func (h *SyncHandler) GetStats(c *gin.Context) {
	stats, err := h.syncService.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// TestConnection probes the source API
func (h *SyncHandler) TestConnection(c *gin.Context) {
	ok := h.syncService.TestConnection(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"connected": ok})
}

// writeStartError maps a run trigger rejection to an HTTP status: bad
// input gets 400, a competing run gets 409, anything else is internal
func writeStartError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrRunConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidRequest):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
