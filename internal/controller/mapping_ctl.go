package controller

import (
	"context"
	"net/http"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"

	"github.com/gin-gonic/gin"
)

// OrderMappingReader 订单映射查询
type OrderMappingReader interface {
	ListMappings(ctx context.Context, filter repository.OrderMappingFilter) ([]model.OrderMapping, int64, error)
}

// OrderMappingController 订单映射控制器
type OrderMappingController struct {
	orders OrderMappingReader
}

// NewOrderMappingController 创建订单映射控制器
func NewOrderMappingController(orders OrderMappingReader) *OrderMappingController {
	return &OrderMappingController{orders: orders}
}

// List 订单映射列表
// @Summary 订单映射分页
// @Tags Mapping
// @Param status query string false "synced / fulfilled / failed"
// @Param low_confidence query bool false "仅备注文本命中的去重"
// @Success 200 {object} dto.ListResp
// @Router /api/mappings/orders [get]
func (h *OrderMappingController) List(c *gin.Context) {
	var q dto.OrderMappingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	list, total, err := h.orders.ListMappings(c.Request.Context(), repository.OrderMappingFilter{
		Status:        q.Status,
		LowConfidence: q.LowConfidence,
		Page:          q.Page,
		PageSize:      q.PageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "success", dto.ListResp{Total: total, List: list})
}
