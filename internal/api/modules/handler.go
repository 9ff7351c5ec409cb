// Package modules serves the public read side of the registry: module
// listings, module and version records, documentation and raw module files.
package modules

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/storage"
)

// Catalog is the read surface of the module repository.
type Catalog interface {
	GetModule(ctx context.Context, name string) (*models.Module, error)
	GetVersion(ctx context.Context, module string, major, minor, patch uint64) (*models.ModuleVersion, error)
	ListModules(ctx context.Context, kind string, page, limit int) ([]*models.Module, int, error)
}

// Handler serves module reads. Catalog responses are cached in-process for
// ttl; raw files are not cached since object storage is already the cache.
type Handler struct {
	catalog Catalog
	store   storage.Storage
	cache   *cache.Cache
}

// NewHandler creates a read handler. A zero ttl disables caching.
func NewHandler(catalog Catalog, store storage.Storage, ttl, cleanupInterval time.Duration) *Handler {
	h := &Handler{catalog: catalog, store: store}
	if ttl > 0 {
		h.cache = cache.New(ttl, cleanupInterval)
	}
	return h
}

// cached returns the value stored under key or computes, stores and returns it.
// Errors and misses (nil values) are never cached.
func (h *Handler) cached(key string, load func() (any, error)) (any, error) {
	if h.cache != nil {
		if v, ok := h.cache.Get(key); ok {
			return v, nil
		}
	}
	v, err := load()
	if err != nil || v == nil {
		return v, err
	}
	if h.cache != nil {
		h.cache.SetDefault(key, v)
	}
	return v, nil
}

// Flush drops every cached response.
func (h *Handler) Flush() {
	if h.cache != nil {
		h.cache.Flush()
	}
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
