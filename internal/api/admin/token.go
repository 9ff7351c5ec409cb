package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/auth"
	"github.com/nutshimit/mashin-registry/internal/validation"
)

// maxTokenTTL caps the lifetime an operator may request.
const maxTokenTTL = 30 * 24 * time.Hour

// TokenRequest is the body of POST /api/v1/auth/token.
type TokenRequest struct {
	Operator string `json:"operator" binding:"required"`
	// TTL is a Go duration string; empty uses the configured default.
	TTL string `json:"ttl"`
}

// TokenHandlers mints operator JWTs.
type TokenHandlers struct {
	defaultTTL time.Duration
}

// NewTokenHandlers creates token handlers. A zero defaultTTL means one hour.
func NewTokenHandlers(defaultTTL time.Duration) *TokenHandlers {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &TokenHandlers{defaultTTL: defaultTTL}
}

// @Summary      Issue operator token
// @Description  Exchanges the static admin key for a short-lived JWT naming an operator.
// @Tags         Authentication
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  TokenRequest  true  "Operator and optional TTL"
// @Success      200  {object}  map[string]interface{}  "success, data: {token, expires_in}"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /api/v1/auth/token [post]
// IssueToken handles POST /api/v1/auth/token
func (h *TokenHandlers) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "operator is required"})
		return
	}
	if err := validation.ValidateOperatorName(req.Operator); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	ttl := h.defaultTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 || d > maxTokenTTL {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "ttl must be a positive duration of at most 720h"})
			return
		}
		ttl = d
	}

	token, err := auth.GenerateJWT(req.Operator, ttl)
	if err != nil {
		slog.Error("failed to generate operator token", "operator", req.Operator, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to generate token"})
		return
	}

	slog.Info("issued operator token", "operator", req.Operator, "ttl", ttl)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"token":      token,
			"expires_in": int(ttl.Seconds()),
		},
	})
}
