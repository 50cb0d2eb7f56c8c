package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"

	"github.com/gin-gonic/gin"
)

// SyncTrigger 手动触发同步，与定时任务共享防重入
type SyncTrigger interface {
	TriggerOrderSync(ctx context.Context, window dto.OrderWindow, dryRun bool) (*dto.OrderSyncResult, error)
	TriggerInventorySync(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error)
	TriggerPriceSync(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error)
	TriggerFulfillmentSync(ctx context.Context, dryRun bool) (*dto.FulfillmentSyncResult, error)
	Status() map[string]dto.TaskStatus
}

// SyncLogReader 同步日志查询
type SyncLogReader interface {
	List(ctx context.Context, filter repository.SyncLogFilter) ([]model.SyncLogEntry, int64, error)
	ErrorPatterns(ctx context.Context, window time.Duration, limit int) ([]repository.ErrorPattern, error)
}

// StatusCounter 按状态计数
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// QueueInspector 事件队列积压
type QueueInspector interface {
	Depth() int
}

// SyncStatusSources 状态概览数据源
type SyncStatusSources struct {
	Products StatusCounter
	Orders   StatusCounter
	Webhooks StatusCounter
	Queue    QueueInspector
}

// SyncController 同步控制器
type SyncController struct {
	tasks  SyncTrigger
	logs   SyncLogReader
	status SyncStatusSources
}

// NewSyncController 创建同步控制器
func NewSyncController(tasks SyncTrigger, logs SyncLogReader, status SyncStatusSources) *SyncController {
	return &SyncController{tasks: tasks, logs: logs, status: status}
}

// ==================== 手动触发 ====================

// SyncOrders 手动导入订单
// @Summary 导入 Marketplace 订单
// @Tags Sync
// @Param dry_run query bool false "只计算不写入"
// @Param from query string false "起始时间 RFC3339"
// @Param to query string false "结束时间 RFC3339"
// @Param all query bool false "不限时间"
// @Success 200 {object} dto.OrderSyncResult
// @Failure 409 {object} map[string]interface{} "同步进行中"
// @Failure 429 {object} map[string]interface{} "冷却中"
// @Router /api/sync/orders [post]
func (h *SyncController) SyncOrders(c *gin.Context) {
	var req dto.SyncTriggerReq
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		fail(c, http.StatusBadRequest, "to 不能早于 from")
		return
	}

	result, err := h.tasks.TriggerOrderSync(c.Request.Context(), req.Window(), req.DryRun)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "订单同步完成", result)
}

// SyncInventory 手动库存对账
// @Summary 库存对账
// @Tags Sync
// @Param dry_run query bool false "只计算不写入"
// @Success 200 {object} dto.ItemSyncResult
// @Router /api/sync/inventory [post]
func (h *SyncController) SyncInventory(c *gin.Context) {
	dryRun, good := bindDryRun(c)
	if !good {
		return
	}
	result, err := h.tasks.TriggerInventorySync(c.Request.Context(), dryRun)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "库存同步完成", result)
}

// SyncPrices 手动价格对账
// @Summary 价格对账
// @Tags Sync
// @Param dry_run query bool false "只计算不写入"
// @Success 200 {object} dto.ItemSyncResult
// @Router /api/sync/prices [post]
func (h *SyncController) SyncPrices(c *gin.Context) {
	dryRun, good := bindDryRun(c)
	if !good {
		return
	}
	result, err := h.tasks.TriggerPriceSync(c.Request.Context(), dryRun)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "价格同步完成", result)
}

// SyncFulfillments 手动回传发货
// @Summary 回传已发货订单
// @Tags Sync
// @Param dry_run query bool false "只计算不写入"
// @Success 200 {object} dto.FulfillmentSyncResult
// @Router /api/sync/fulfillments [post]
func (h *SyncController) SyncFulfillments(c *gin.Context) {
	dryRun, good := bindDryRun(c)
	if !good {
		return
	}
	result, err := h.tasks.TriggerFulfillmentSync(c.Request.Context(), dryRun)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "发货回传完成", result)
}

// ==================== 查询 ====================

// Logs 同步日志
// @Summary 同步日志分页
// @Tags Sync
// @Success 200 {object} dto.ListResp
// @Router /api/sync/logs [get]
func (h *SyncController) Logs(c *gin.Context) {
	var q dto.SyncLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	list, total, err := h.logs.List(c.Request.Context(), repository.SyncLogFilter{
		EntityType: q.EntityType,
		EntityID:   q.EntityID,
		Status:     q.Status,
		RunID:      q.RunID,
		Page:       q.Page,
		PageSize:   q.PageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "success", dto.ListResp{Total: total, List: list})
}

// Errors 失败聚合
// @Summary 最近失败按原因聚合
// @Tags Sync
// @Param hours query int false "统计窗口（小时），默认 24"
// @Param limit query int false "条数，默认 20"
// @Router /api/sync/errors [get]
func (h *SyncController) Errors(c *gin.Context) {
	var q dto.ErrorPatternQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	patterns, err := h.logs.ErrorPatterns(c.Request.Context(), time.Duration(q.Hours)*time.Hour, q.Limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, "success", patterns)
}

// Status 同步概览
// @Summary 映射、收件箱、队列与定时任务状态
// @Tags Sync
// @Success 200 {object} dto.SyncStatusResp
// @Router /api/sync/status [get]
func (h *SyncController) Status(c *gin.Context) {
	ctx := c.Request.Context()
	resp := dto.SyncStatusResp{Tasks: h.tasks.Status()}

	var err error
	if h.status.Products != nil {
		if resp.ProductMappings, err = h.status.Products.CountByStatus(ctx); err != nil {
			failErr(c, err)
			return
		}
	}
	if h.status.Orders != nil {
		if resp.OrderMappings, err = h.status.Orders.CountByStatus(ctx); err != nil {
			failErr(c, err)
			return
		}
	}
	if h.status.Webhooks != nil {
		if resp.WebhookEvents, err = h.status.Webhooks.CountByStatus(ctx); err != nil {
			failErr(c, err)
			return
		}
	}
	if h.status.Queue != nil {
		resp.QueueDepth = h.status.Queue.Depth()
	}
	ok(c, "success", resp)
}

func bindDryRun(c *gin.Context) (bool, bool) {
	var req struct {
		DryRun bool `form:"dry_run"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return false, false
	}
	return req.DryRun, true
}
