package modules

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/db/repositories"
)

// ModuleList is one page of modules of a single kind.
type ModuleList struct {
	Items       []*models.Module `json:"items"`
	Total       int              `json:"total"`
	CurrentPage int              `json:"current_page"`
}

// @Summary      List std libraries
// @Tags         Modules
// @Produce      json
// @Param        page   query  int  false  "Page number (default 1)"
// @Param        limit  query  int  false  "Page size (default 10, max 20)"
// @Success      200  {object}  map[string]interface{}  "success, data: {items, total, current_page}"
// @Router       /api/v1/libs [get]
// ListLibs handles GET /api/v1/libs
func (h *Handler) ListLibs(c *gin.Context) {
	h.list(c, models.ModuleKindStd)
}

// @Summary      List providers
// @Tags         Modules
// @Produce      json
// @Param        page   query  int  false  "Page number (default 1)"
// @Param        limit  query  int  false  "Page size (default 10, max 20)"
// @Success      200  {object}  map[string]interface{}  "success, data: {items, total, current_page}"
// @Router       /api/v1/providers [get]
// ListProviders handles GET /api/v1/providers
func (h *Handler) ListProviders(c *gin.Context) {
	h.list(c, models.ModuleKindProvider)
}

func (h *Handler) list(c *gin.Context, kind string) {
	// Unparsable values fall back to the defaults.
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, limit = repositories.NormalizePage(page, limit)

	key := fmt.Sprintf("list:%s:%d:%d", kind, page, limit)
	v, err := h.cached(key, func() (any, error) {
		items, total, err := h.catalog.ListModules(c.Request.Context(), kind, page, limit)
		if err != nil {
			return nil, err
		}
		return &ModuleList{Items: items, Total: total, CurrentPage: page}, nil
	})
	if err != nil {
		slog.Error("failed to list modules", "kind", kind, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to list modules")
		return
	}

	respondOK(c, v)
}
