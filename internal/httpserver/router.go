package httpserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailtriage/internal/handler"
	"mailtriage/pkg/metrics"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	webhookHandler *handler.WebhookHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	queryHandler *handler.QueryHandler,
	adminHandler *handler.AdminHandler,
	db *pgxpool.Pool,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestMetrics())

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "mailtriage",
		})
	})

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhook: validation handshake and notification batches
	r.GET("/webhook", webhookHandler.Handle)
	r.POST("/webhook", webhookHandler.Handle)

	// Subscription management
	r.GET("/subscriptions", subscriptionHandler.List)
	r.POST("/subscriptions", subscriptionHandler.Create)
	r.DELETE("/subscriptions", subscriptionHandler.Delete)

	// Reporting
	r.GET("/emails", queryHandler.RecentEmails)
	r.GET("/stats", queryHandler.Stats)
	r.GET("/conversations", queryHandler.ConversationStats)
	r.GET("/conversation/:id", queryHandler.Conversation)
	r.GET("/llm-usage", queryHandler.LLMUsage)

	// One-time setup
	r.POST("/init-db", adminHandler.InitDB)

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
