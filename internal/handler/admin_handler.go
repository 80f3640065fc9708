package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mailtriage/internal/repository"
)

// AdminHandler holds the one-time setup endpoints.
type AdminHandler struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAdminHandler(db *pgxpool.Pool, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, logger: logger}
}

// InitDB handles POST /init-db. Safe to call repeatedly.
func (h *AdminHandler) InitDB(c *gin.Context) {
	if err := repository.InitSchema(c.Request.Context(), h.db); err != nil {
		h.logger.Error("Schema initialization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Database initialized"})
}
