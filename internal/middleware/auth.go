package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/auth"
	"github.com/nutshimit/mashin-registry/internal/config"
)

// Context keys set by the auth middleware.
const (
	OperatorKey   = "operator"
	AuthMethodKey = "auth_method"
)

// Authentication methods recorded under AuthMethodKey.
const (
	AuthMethodJWT      = "jwt"
	AuthMethodAdminKey = "admin_key"
)

// AdminOperator is the operator name recorded for admin key requests.
const AdminOperator = "admin"

// AuthMiddleware admits a request carrying either an operator JWT or the
// static admin key as a Bearer token.
//
// JWTs are tried first: verification is a single HMAC, while the admin key
// costs a bcrypt comparison.
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		if claims, err := auth.ValidateJWT(token); err == nil {
			c.Set(OperatorKey, claims.Operator)
			c.Set(AuthMethodKey, AuthMethodJWT)
			c.Next()
			return
		}

		if auth.ValidateAPIKey(token, cfg.AdminKeyHash) {
			c.Set(OperatorKey, AdminOperator)
			c.Set(AuthMethodKey, AuthMethodAdminKey)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "invalid credentials",
		})
	}
}

// AdminKeyMiddleware admits only the static admin key. It guards token
// minting so a JWT cannot be used to extend itself.
func AdminKeyMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		if !auth.ValidateAPIKey(token, cfg.AdminKeyHash) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid credentials",
			})
			return
		}

		c.Set(OperatorKey, AdminOperator)
		c.Set(AuthMethodKey, AuthMethodAdminKey)
		c.Next()
	}
}

// bearerToken extracts the token or aborts with 401.
func bearerToken(c *gin.Context) (string, bool) {
	token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return "", false
	}
	return token, true
}
