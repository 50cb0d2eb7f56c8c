package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SettingsManager 运行配置读写
type SettingsManager interface {
	Effective(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, values map[string]string) error
}

// SettingsController 配置控制器
type SettingsController struct {
	settings SettingsManager
}

// NewSettingsController 创建配置控制器
func NewSettingsController(settings SettingsManager) *SettingsController {
	return &SettingsController{settings: settings}
}

// Get 当前生效配置
// @Summary 查询生效配置（settings 表叠加默认值）
// @Tags Settings
// @Success 200 {object} map[string]string
// @Router /api/settings [get]
func (h *SettingsController) Get(c *gin.Context) {
	values, err := h.settings.Effective(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "success", values)
}

// Update 修改配置
// @Summary 批量修改配置，下一次运行生效
// @Tags Settings
// @Param request body map[string]string true "key -> value"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]interface{} "未知 key 或非法值"
// @Router /api/settings [put]
func (h *SettingsController) Update(c *gin.Context) {
	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(values) == 0 {
		fail(c, http.StatusBadRequest, "没有需要修改的配置")
		return
	}

	ctx := c.Request.Context()
	if err := h.settings.Update(ctx, values); err != nil {
		failErr(c, err)
		return
	}
	effective, err := h.settings.Effective(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "配置已更新", effective)
}
