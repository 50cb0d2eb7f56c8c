package controller

import (
	"errors"
	"net/http"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/task"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"

	"github.com/gin-gonic/gin"
)

// ==================== 统一响应 ====================

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": message,
		"data":    data,
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
	})
}

// failErr 按错误类型映射 HTTP 状态码
func failErr(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, task.ErrTaskRunning):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, task.ErrTaskDisabled):
		fail(c, http.StatusServiceUnavailable, err.Error())
	case platform.IsValidation(err):
		fail(c, http.StatusBadRequest, err.Error())
	case platform.IsNotFound(err):
		fail(c, http.StatusNotFound, err.Error())
	case platform.IsRetryable(err):
		fail(c, http.StatusBadGateway, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}
