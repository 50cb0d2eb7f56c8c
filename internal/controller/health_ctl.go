package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger 依赖探活
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthController 健康检查
type HealthController struct {
	db Pinger
}

// NewHealthController 创建健康检查，db 可为 nil
func NewHealthController(db Pinger) *HealthController {
	return &HealthController{db: db}
}

// Health 存活与数据库连通
// @Summary 健康检查
// @Tags System
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthController) Health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
