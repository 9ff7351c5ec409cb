package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/middleware"
	"github.com/nutshimit/mashin-registry/internal/services"
)

// ModuleReader looks up registered modules.
type ModuleReader interface {
	GetModule(ctx context.Context, name string) (*models.Module, error)
}

// Backfiller queues builds for a module's historical releases.
type Backfiller interface {
	Run(ctx context.Context, module *models.Module, opts services.Options, skipTag string) (int, error)
}

// BackfillHandlers lets operators replay release history for a module that
// was registered before backfill was enabled, or whose builds were lost.
type BackfillHandlers struct {
	modules  ModuleReader
	backfill Backfiller
}

// NewBackfillHandlers creates backfill handlers.
func NewBackfillHandlers(modules ModuleReader, backfill Backfiller) *BackfillHandlers {
	return &BackfillHandlers{modules: modules, backfill: backfill}
}

// TriggerBackfill handles POST /api/v1/modules/:module/backfill
// Query: version_prefix selects the module's tags in a shared repository.
func (h *BackfillHandlers) TriggerBackfill(c *gin.Context) {
	name := c.Param("module")

	module, err := h.modules.GetModule(c.Request.Context(), name)
	if err != nil {
		slog.Error("failed to get module", "module", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to get module"})
		return
	}
	if module == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "module not found"})
		return
	}

	opts := services.Options{VersionPrefix: c.Query("version_prefix"), Type: module.Kind}
	queued, err := h.backfill.Run(c.Request.Context(), module, opts, "")
	if err != nil {
		slog.Error("backfill failed", "module", name, "queued", queued, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "backfill failed", "queued": queued})
		return
	}

	operator := c.GetString(middleware.OperatorKey)
	slog.Info("backfill triggered", "module", name, "operator", operator, "queued", queued)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"module": name, "queued": queued}})
}
