package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"quantity-sync-service/internal/middleware"
	"quantity-sync-service/internal/models"
	"quantity-sync-service/internal/services"
)

// SyncHandler handles sync and run history endpoints
type SyncHandler struct {
	service *services.SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service *services.SyncService) *SyncHandler {
	return &SyncHandler{service: service}
}

type syncResponse struct {
	Detail string `json:"detail"`
	*models.SyncResult
}

// Sync runs a sync of the selected store against a stored file
// @Summary Sync store quantities from a file
// @Description Plans and applies inventory deltas in adjust, replace or tabula_rasa mode
// @Tags sync
// @Produce json
// @Param X-Selected-Store header string true "Store ID"
// @Param filename path string true "File name"
// @Param mode query string false "adjust, replace or tabula_rasa" default(adjust)
// @Param dry_run query bool false "Plan without submitting" default(false)
// @Success 200 {object} syncResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /sync/{filename} [post]
func (h *SyncHandler) Sync(c *gin.Context) {
	store, _ := middleware.GetStore(c)
	name := c.Param("filename")

	mode, err := models.ParseSyncMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))

	result, err := h.service.Sync(c.Request.Context(), store.Context(), name, services.SyncOptions{
		Mode:   mode,
		DryRun: dryRun,
	})
	if result == nil {
		respondError(c, err)
		return
	}

	resp := syncResponse{SyncResult: result, Detail: syncDetail(name, result)}
	if err != nil {
		_ = c.Error(err)
		resp.Detail = err.Error()
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func syncDetail(name string, result *models.SyncResult) string {
	switch {
	case result.DryRun:
		return fmt.Sprintf("Dry run of '%s': %d changes planned", name, result.Stats.PlannedChanges)
	case result.HasFailedBatches():
		return fmt.Sprintf("File '%s' partially synced: %d of %d batches failed", name, len(result.FailedBatches), result.Stats.Batches)
	case len(result.MissingRows) > 0:
		return fmt.Sprintf("Matching variants found missing in '%s'", name)
	}
	return fmt.Sprintf("File '%s' synced", name)
}

// ListRuns returns the run history of the selected store
// @Summary List sync runs
// @Tags runs
// @Produce json
// @Param X-Selected-Store header string true "Store ID"
// @Param limit query int false "Maximum runs returned" default(50)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	store, _ := middleware.GetStore(c)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	runs, err := h.service.ListRuns(c.Request.Context(), store.ID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  runs,
		"total": len(runs),
	})
}

// GetRun returns one run of the selected store
// @Summary Get a sync run
// @Tags runs
// @Produce json
// @Param X-Selected-Store header string true "Store ID"
// @Param id path string true "Run ID"
// @Success 200 {object} models.SyncRun
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /runs/{id} [get]
func (h *SyncHandler) GetRun(c *gin.Context) {
	store, _ := middleware.GetStore(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), store.ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": run})
}
