// Package admin holds operator endpoints: build status, token minting and
// manual backfills. Every route here sits behind AuthMiddleware or
// AdminKeyMiddleware.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/db/models"
)

// BuildReader looks up builds by id.
type BuildReader interface {
	GetBuild(ctx context.Context, id string) (*models.Build, error)
}

// BuildHandlers serves build status.
type BuildHandlers struct {
	builds BuildReader
}

// NewBuildHandlers creates build handlers.
func NewBuildHandlers(builds BuildReader) *BuildHandlers {
	return &BuildHandlers{builds: builds}
}

// @Summary      Get build
// @Description  Returns the status of a queued, successful or failed build.
// @Tags         Builds
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Build ID"
// @Success      200  {object}  map[string]interface{}  "success, data: build"
// @Failure      404  {object}  map[string]interface{}  "Build not found"
// @Router       /api/v1/builds/{id} [get]
// GetBuild handles GET /api/v1/builds/:id
func (h *BuildHandlers) GetBuild(c *gin.Context) {
	id := c.Param("id")

	build, err := h.builds.GetBuild(c.Request.Context(), id)
	if err != nil {
		slog.Error("failed to get build", "build_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to get build"})
		return
	}
	if build == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "build not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": build})
}
