package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListingManager 刊登管理
type ListingManager interface {
	Publish(ctx context.Context, productID string) (*dto.PublishResult, error)
	End(ctx context.Context, productID string, reason model.EndReason) (*dto.PublishResult, error)
	ListMappings(ctx context.Context, filter repository.ProductMappingFilter) ([]model.ProductMapping, int64, error)
}

// ListingController 刊登控制器
type ListingController struct {
	listings ListingManager
}

// NewListingController 创建刊登控制器
func NewListingController(listings ListingManager) *ListingController {
	return &ListingController{listings: listings}
}

// Publish 刊登商品
// @Summary 将 Catalog 商品刊登到 Marketplace
// @Description 每个 SKU 依次创建库存记录、报价并发布，重复调用幂等
// @Tags Listing
// @Param product_id path string true "Catalog 商品 ID"
// @Success 200 {object} dto.PublishResult
// @Failure 404 {object} map[string]interface{} "商品不存在"
// @Router /api/listings/{product_id}/publish [post]
func (h *ListingController) Publish(c *gin.Context) {
	productID := c.Param("product_id")
	result, err := h.listings.Publish(c.Request.Context(), productID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "刊登完成", result)
}

// End 下架商品
// @Summary 下架商品全部在售 SKU
// @Tags Listing
// @Param product_id path string true "Catalog 商品 ID"
// @Param request body dto.EndListingReq false "下架原因，默认 delisted"
// @Success 200 {object} dto.PublishResult
// @Router /api/listings/{product_id}/end [post]
func (h *ListingController) End(c *gin.Context) {
	var req dto.EndListingReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	reason := model.EndReasonDelisted
	if req.Reason != "" {
		reason = model.EndReason(req.Reason)
	}

	result, err := h.listings.End(c.Request.Context(), c.Param("product_id"), reason)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "下架完成", result)
}

// Mappings 商品映射列表
// @Summary 商品映射分页
// @Tags Mapping
// @Param product_id query string false "Catalog 商品 ID"
// @Param status query string false "生命周期状态"
// @Success 200 {object} dto.ListResp
// @Router /api/mappings/products [get]
func (h *ListingController) Mappings(c *gin.Context) {
	var q dto.ProductMappingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	list, total, err := h.listings.ListMappings(c.Request.Context(), repository.ProductMappingFilter{
		CatalogProductID: q.ProductID,
		Status:           q.Status,
		Page:             q.Page,
		PageSize:         q.PageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "success", dto.ListResp{Total: total, List: list})
}
