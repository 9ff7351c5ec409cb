// Package webhooks receives GitHub webhook deliveries for registered modules.
// A ping registers (or refreshes) the module bound to the repository; a
// release queues a build. Payloads may be HMAC-signed with a shared secret.
package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/github"
	"github.com/nutshimit/mashin-registry/internal/services"
	"github.com/nutshimit/mashin-registry/internal/telemetry"
)

// GitHub delivery headers.
const (
	EventHeader     = "X-GitHub-Event"
	SignatureHeader = "X-Hub-Signature-256"
	DeliveryHeader  = "X-GitHub-Delivery"
)

// maxPayloadSize is GitHub's own cap on webhook payloads.
const maxPayloadSize = 25 << 20

// InfoUnsupportedEvent is returned for events other than ping and release.
const InfoUnsupportedEvent = "not a ping, or create event"

// EventHandler handles decoded deliveries.
type EventHandler interface {
	HandlePing(ctx context.Context, module string, ev github.PingEvent, opts services.Options) (*services.Outcome, error)
	HandleRelease(ctx context.Context, module string, ev github.ReleaseEvent, opts services.Options) (*services.Outcome, error)
}

// GitHubWebhookHandler handles incoming GitHub webhooks
type GitHubWebhookHandler struct {
	events EventHandler
	secret string
}

// NewGitHubWebhookHandler creates a handler. An empty secret disables
// signature verification.
func NewGitHubWebhookHandler(events EventHandler, secret string) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{events: events, secret: secret}
}

// @Summary      Receive GitHub webhook
// @Description  Registers a module on ping and queues a build on a released release.
// @Description  When a webhook secret is configured the X-Hub-Signature-256 header must match the payload.
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Param        module          path   string  true   "Module name"
// @Param        version_prefix  query  string  false  "Tag prefix that selects releases for this module"
// @Param        subdir          query  string  false  "Accepted for compatibility, unused"
// @Param        type            query  string  false  "Module type: provider (default) or std"
// @Success      200  {object}  map[string]interface{}  "success, data or info"
// @Failure      400  {object}  map[string]interface{}  "Empty body or rejected delivery"
// @Failure      401  {object}  map[string]interface{}  "Signature mismatch"
// @Failure      409  {object}  map[string]interface{}  "Module registered to a different repository"
// @Router       /api/v1/webhook/github/{module} [post]
// HandleWebhook processes a delivery.
// POST /api/v1/webhook/github/:module
func (h *GitHubWebhookHandler) HandleWebhook(c *gin.Context) {
	module := c.Param("module")
	event := c.GetHeader(EventHeader)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadSize))
	if err != nil || len(payload) == 0 || !json.Valid(payload) {
		h.record(event, "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no body provided"})
		return
	}

	if h.secret != "" && !github.VerifySignature(payload, c.GetHeader(SignatureHeader), h.secret) {
		h.record(event, "rejected")
		slog.Warn("webhook signature mismatch", "module", module, "delivery", c.GetHeader(DeliveryHeader))
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid webhook signature"})
		return
	}

	opts := services.Options{
		VersionPrefix: c.Query("version_prefix"),
		Subdir:        c.Query("subdir"),
		Type:          c.Query("type"),
	}
	ctx := c.Request.Context()

	var outcome *services.Outcome
	switch event {
	case "ping":
		var ev github.PingEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			h.record(event, "rejected")
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no body provided"})
			return
		}
		outcome, err = h.events.HandlePing(ctx, module, ev, opts)
	case "release":
		var ev github.ReleaseEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			h.record(event, "rejected")
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no body provided"})
			return
		}
		outcome, err = h.events.HandleRelease(ctx, module, ev, opts)
	default:
		h.record(event, "ignored")
		c.JSON(http.StatusOK, gin.H{"success": false, "info": InfoUnsupportedEvent})
		return
	}

	if err != nil {
		if rejection, ok := services.AsRejection(err); ok {
			h.record(event, "rejected")
			slog.Info("webhook delivery rejected", "module", module, "event", event, "reason", rejection.Reason)
			c.JSON(rejection.Status, gin.H{"success": false, "error": rejection.Reason})
			return
		}
		h.record(event, "error")
		slog.Error("failed to handle webhook delivery", "module", module, "event", event,
			"delivery", c.GetHeader(DeliveryHeader), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	if !outcome.Success {
		h.record(event, "ignored")
		c.JSON(http.StatusOK, gin.H{"success": false, "info": outcome.Info})
		return
	}

	h.record(event, "accepted")
	c.JSON(http.StatusOK, gin.H{"success": true, "data": outcome.Data})
}

func (h *GitHubWebhookHandler) record(event, outcome string) {
	switch event {
	case "ping", "release":
	default:
		event = "other"
	}
	telemetry.WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
}
