// versions.go serves single module and module version records.
package modules

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/validation"
)

// VersionRecord is a module version without its documentation, which is
// served separately because it dominates the payload.
type VersionRecord struct {
	Version    string  `json:"version"`
	Module     string  `json:"module"`
	Entrypoint string  `json:"entrypoint"`
	LinuxX86   bool    `json:"linux_x86"`
	MacOSX86   bool    `json:"macos_x86"`
	WindowsX86 bool    `json:"windows_x86"`
	Readme     *string `json:"readme"`
}

func newVersionRecord(v *models.ModuleVersion) *VersionRecord {
	return &VersionRecord{
		Version:    v.Version(),
		Module:     v.Module,
		Entrypoint: v.Entrypoint,
		LinuxX86:   v.LinuxX86,
		MacOSX86:   v.MacOSX86,
		WindowsX86: v.WindowsX86,
		Readme:     v.Readme,
	}
}

// GetLib handles GET /api/v1/lib/:module
func (h *Handler) GetLib(c *gin.Context) { h.getModule(c, models.ModuleKindStd) }

// GetProvider handles GET /api/v1/provider/:module
func (h *Handler) GetProvider(c *gin.Context) { h.getModule(c, models.ModuleKindProvider) }

// GetLibVersion handles GET /api/v1/lib/:module/:version
func (h *Handler) GetLibVersion(c *gin.Context) { h.getVersion(c, models.ModuleKindStd) }

// @Summary      Get provider version
// @Description  Returns a published provider version: entrypoint, platform flags and readme.
// @Tags         Modules
// @Produce      json
// @Param        module   path  string  true  "Module name"
// @Param        version  path  string  true  "Version (MAJOR.MINOR.PATCH, leading v allowed)"
// @Success      200  {object}  map[string]interface{}  "success, data"
// @Failure      400  {object}  map[string]interface{}  "invalid module or version"
// @Failure      404  {object}  map[string]interface{}  "module or version not found"
// @Router       /api/v1/provider/{module}/{version} [get]
// GetProviderVersion handles GET /api/v1/provider/:module/:version
func (h *Handler) GetProviderVersion(c *gin.Context) { h.getVersion(c, models.ModuleKindProvider) }

// @Summary      Get provider documentation
// @Tags         Modules
// @Produce      json
// @Param        module   path  string  true  "Module name"
// @Param        version  path  string  true  "Version"
// @Success      200  {object}  map[string]interface{}  "success, data: documentation items"
// @Router       /api/v1/provider/{module}/{version}/doc [get]
// GetProviderDoc handles GET /api/v1/provider/:module/:version/doc
func (h *Handler) GetProviderDoc(c *gin.Context) {
	v, ok := h.resolveVersion(c, models.ModuleKindProvider)
	if !ok {
		return
	}
	doc := v.Doc
	if len(doc) == 0 {
		doc = json.RawMessage("[]")
	}
	respondOK(c, doc)
}

func (h *Handler) getModule(c *gin.Context, kind string) {
	module, ok := h.resolveModule(c, kind)
	if !ok {
		return
	}
	respondOK(c, module)
}

func (h *Handler) getVersion(c *gin.Context, kind string) {
	v, ok := h.resolveVersion(c, kind)
	if !ok {
		return
	}
	respondOK(c, newVersionRecord(v))
}

// resolveModule loads :module and checks its kind, writing the error response
// itself when it returns false.
func (h *Handler) resolveModule(c *gin.Context, kind string) (*models.Module, bool) {
	name := c.Param("module")
	v, err := h.cached("module:"+name, func() (any, error) {
		m, err := h.catalog.GetModule(c.Request.Context(), name)
		if m == nil {
			return nil, err
		}
		return m, err
	})
	if err != nil {
		slog.Error("failed to get module", "module", name, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to get module")
		return nil, false
	}
	if v == nil {
		respondError(c, http.StatusNotFound, "module not found")
		return nil, false
	}

	module := v.(*models.Module)
	if module.Kind != kind {
		respondError(c, http.StatusBadRequest, "invalid module")
		return nil, false
	}
	return module, true
}

func (h *Handler) resolveVersion(c *gin.Context, kind string) (*models.ModuleVersion, bool) {
	module, ok := h.resolveModule(c, kind)
	if !ok {
		return nil, false
	}

	parsed := validation.Parse(validation.TrimTagPrefix(c.Param("version")))
	if !parsed.Matches {
		respondError(c, http.StatusBadRequest, "invalid version")
		return nil, false
	}

	key := "version:" + module.Name + "@" + parsed.Core()
	v, err := h.cached(key, func() (any, error) {
		mv, err := h.catalog.GetVersion(c.Request.Context(), module.Name, parsed.Major, parsed.Minor, parsed.Patch)
		if mv == nil {
			return nil, err
		}
		return mv, err
	})
	if err != nil {
		slog.Error("failed to get module version", "module", module.Name, "version", parsed.Core(), "error", err)
		respondError(c, http.StatusInternalServerError, "failed to get module version")
		return nil, false
	}
	if v == nil {
		respondError(c, http.StatusNotFound, "version not found")
		return nil, false
	}
	return v.(*models.ModuleVersion), true
}
