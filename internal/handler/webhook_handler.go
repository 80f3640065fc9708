package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/service"
)

type WebhookHandler struct {
	pipeline *service.Pipeline
	logger   *zap.Logger
}

func NewWebhookHandler(pipeline *service.Pipeline, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Handle serves GET|POST /webhook. The provider first calls with a
// validationToken query parameter that must be echoed back verbatim as
// plain text before the subscription becomes active; after that, POSTs
// carry notification batches.
func (h *WebhookHandler) Handle(c *gin.Context) {
	if token := c.Query("validationToken"); token != "" {
		h.logger.Info("Webhook validation request received",
			zap.String("method", c.Request.Method),
		)
		c.String(http.StatusOK, "%s", token)
		return
	}

	if c.Request.Method != http.MethodPost {
		c.String(http.StatusBadRequest, "Missing validationToken")
		return
	}

	var batch model.NotificationBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		// the only case that produces a non-accepted response:
		// an unparseable top-level request
		h.logger.Warn("Malformed webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	h.pipeline.HandleNotifications(c.Request.Context(), batch)

	// always 202 for structurally valid notifications, whatever
	// happened per entry; anything else invites provider retry storms
	c.Status(http.StatusAccepted)
}
