package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== 手动触发冷却中间件 ====================

// SyncRateLimit 手动触发冷却中间件
// 路由带 :product_id 时按商品维度冷却，否则按全局冷却
//
//	api.POST("/listings/:product_id/publish",
//	    middleware.SyncRateLimit(limiter, middleware.SyncTypeListing, 0),
//	    listingCtl.Publish,
//	)
//
// interval 为 0 时使用 DefaultIntervals
// 下游返回 5xx 时清除冷却，允许立即重试
func SyncRateLimit(limiter *SyncRateLimiter, syncType SyncType, interval time.Duration) gin.HandlerFunc {
	if limiter == nil {
		limiter = GetLimiter()
	}
	if interval <= 0 {
		interval = GetInterval(syncType)
	}

	return func(c *gin.Context) {
		key := GlobalSyncKey(syncType)
		if productID := c.Param("product_id"); productID != "" {
			key = ProductSyncKey(productID, syncType)
		}

		result := limiter.Check(key, interval)
		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", retrySeconds(result.RetryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": retrySeconds(result.RetryAfter),
					"sync_type":   syncType,
				},
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			limiter.Reset(key)
		}
	}
}

// retrySeconds 向上取整，至少 1 秒
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// formatRetryMessage 格式化重试提示
func formatRetryMessage(d time.Duration) string {
	seconds := retrySeconds(d)
	if seconds < 60 {
		return fmt.Sprintf("同步冷却中，请 %d 秒后重试", seconds)
	}

	minutes := seconds / 60
	remainingSeconds := seconds % 60
	if remainingSeconds == 0 {
		return fmt.Sprintf("同步冷却中，请 %d 分钟后重试", minutes)
	}
	return fmt.Sprintf("同步冷却中，请 %d 分 %d 秒后重试", minutes, remainingSeconds)
}
