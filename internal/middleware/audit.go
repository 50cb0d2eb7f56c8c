package middleware

import (
	"strconv"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/metrics"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-Id"

// RequestAudit 请求审计中间件
// 为每个请求分配 ID 写入 context，记录访问日志与接口耗时
func RequestAudit(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(logger.WithRunID(c.Request.Context(), reqID))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).
			Observe(elapsed.Seconds())

		if path == "/health" || path == "/metrics" {
			return
		}
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.Errorf(ctx, "[HTTP] %s %s -> %d (%s) %s", c.Request.Method, c.Request.URL.Path, status, elapsed, c.Errors.String())
		case status >= 400:
			log.Warnf(ctx, "[HTTP] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, elapsed)
		default:
			log.Infof(ctx, "[HTTP] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, elapsed)
		}
	}
}
