package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/service"
)

type SubscriptionHandler struct {
	manager *service.SubscriptionManager
	logger  *zap.Logger
}

func NewSubscriptionHandler(manager *service.SubscriptionManager, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		manager: manager,
		logger:  logger,
	}
}

// List handles GET /subscriptions.
func (h *SubscriptionHandler) List(c *gin.Context) {
	subs, err := h.manager.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list subscriptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// Create handles POST /subscriptions.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req struct {
		WebhookURL string `json:"webhook_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.WebhookURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_url required in body"})
		return
	}

	sub, err := h.manager.Create(c.Request.Context(), req.WebhookURL)
	if err != nil {
		h.logger.Error("Failed to create subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"subscription": sub,
		"note":         "Save the subscription ID - needed to delete/renew",
	})
}

// Delete handles DELETE /subscriptions.
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	var req struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SubscriptionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription_id required in body"})
		return
	}

	if err := h.manager.Delete(c.Request.Context(), req.SubscriptionID); err != nil {
		h.logger.Error("Failed to delete subscription",
			zap.String("subscription_id", req.SubscriptionID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted": req.SubscriptionID})
}
