// serve.go serves raw module files extracted from release archives.
package modules

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/archive"
	"github.com/nutshimit/mashin-registry/internal/storage"
	"github.com/nutshimit/mashin-registry/internal/validation"
)

// FileKey is the object key of path inside the extracted archive of version.
func FileKey(owner, repo, version, path string) string {
	return owner + "/" + archive.RootDir(repo, version) + "/" + path
}

// ServeFile handles GET /:spec/*path where spec is "{name}@{version}". The
// file is read from {owner}/{repo}-{version}/{path} and returned with a
// strong ETag over its content.
func (h *Handler) ServeFile(c *gin.Context) {
	name, version, ok := strings.Cut(c.Param("spec"), "@")
	filePath := strings.TrimPrefix(c.Param("path"), "/")
	if !ok || name == "" || version == "" || validation.ValidateEntryPath(filePath) != nil {
		respondError(c, http.StatusNotFound, "file not found")
		return
	}

	module, err := h.catalog.GetModule(c.Request.Context(), name)
	if err != nil {
		slog.Error("failed to get module", "module", name, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to get module")
		return
	}
	if module == nil {
		respondError(c, http.StatusNotFound, "file not found")
		return
	}

	key := FileKey(module.Owner, module.Repo, version, filePath)
	reader, err := h.store.Get(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		slog.Error("failed to read file", "key", key, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer reader.Close()

	body, err := io.ReadAll(io.LimitReader(reader, validation.MaxEntrySize+1))
	if err != nil {
		slog.Error("failed to read file", "key", key, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to read file")
		return
	}

	etag := `"` + storage.Checksum(body) + `"`
	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=3600")
	if match := c.GetHeader("If-None-Match"); match == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, storage.ContentTypeFor(filePath), body)
}
