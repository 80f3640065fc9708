package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/repository"
)

const recentEmailsLimit = 50

// QueryHandler exposes the read-only reporting endpoints.
type QueryHandler struct {
	emailRepo *repository.EmailRepository
	usageRepo *repository.UsageRepository
	logger    *zap.Logger
}

func NewQueryHandler(emailRepo *repository.EmailRepository, usageRepo *repository.UsageRepository, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		emailRepo: emailRepo,
		usageRepo: usageRepo,
		logger:    logger,
	}
}

// RecentEmails handles GET /emails.
func (h *QueryHandler) RecentEmails(c *gin.Context) {
	emails, err := h.emailRepo.ListRecent(c.Request.Context(), recentEmailsLimit)
	if err != nil {
		h.logger.Error("Failed to list recent emails", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails})
}

// Stats handles GET /stats.
func (h *QueryHandler) Stats(c *gin.Context) {
	stats, err := h.emailRepo.ClassificationStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load classification stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// ConversationStats handles GET /conversations.
func (h *QueryHandler) ConversationStats(c *gin.Context) {
	stats, err := h.emailRepo.ConversationStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load conversation stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_conversations": len(stats),
		"conversations":       stats,
	})
}

// Conversation handles GET /conversation/:id.
func (h *QueryHandler) Conversation(c *gin.Context) {
	conversationID := c.Param("id")

	emails, err := h.emailRepo.EmailsByConversation(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.Error("Failed to load conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"emails":          emails,
	})
}

// LLMUsage handles GET /llm-usage.
func (h *QueryHandler) LLMUsage(c *gin.Context) {
	stats, err := h.usageRepo.UsageStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load usage stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": stats})
}
