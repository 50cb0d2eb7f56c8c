package task

import (
	"context"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/config"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/service"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
)

// ==================== TaskManager 轮询任务管理器 ====================

// 任务名称，用于状态查询
const (
	TaskOrder       = "order"
	TaskInventory   = "inventory"
	TaskPrice       = "price"
	TaskFulfillment = "fulfillment"
)

// TaskManager 统一管理定时轮询任务
// 管理范围：订单导入、库存对账、价格对账、发货回传
// 不包含：事件分发（由 event.Dispatcher 独立运行）
type TaskManager struct {
	orderTask     *OrderSyncTask
	inventoryTask *ProductSyncTask
	priceTask     *ProductSyncTask
	trackingTask  *TrackingSyncTask

	runOnStart bool
	log        logger.Logger
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	OrderService       *service.OrderService
	InventoryService   *service.InventoryService
	PriceService       *service.PriceService
	FulfillmentService *service.FulfillmentService
	SettingsService    *service.SettingsService
	Logger             logger.Logger
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	Enabled         bool
	RunOnStart      bool
	OrderCron       string
	InventoryCron   string
	PriceCron       string
	FulfillmentCron string
	Timeout         time.Duration
}

// ConfigFrom 由全局配置生成，任务超时比单次运行超时多留一分钟
func ConfigFrom(s config.ScheduleConfig, runTimeout time.Duration) *TaskManagerConfig {
	return &TaskManagerConfig{
		Enabled:         s.Enabled,
		RunOnStart:      s.RunOnStart,
		OrderCron:       s.OrderCron,
		InventoryCron:   s.InventoryCron,
		PriceCron:       s.PriceCron,
		FulfillmentCron: s.FulfillmentCron,
		Timeout:         runTimeout + time.Minute,
	}
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		Enabled:         true,
		RunOnStart:      true,
		OrderCron:       "0 * * * * *",
		InventoryCron:   "0 */15 * * * *",
		PriceCron:       "0 7,37 * * * *",
		FulfillmentCron: "0 */10 * * * *",
		Timeout:         11 * time.Minute,
	}
}

// NewTaskManager 创建任务管理器
// 未启用定时时任务仍然创建，手动触发照常可用
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	tm := &TaskManager{runOnStart: cfg.RunOnStart, log: log}

	// 订单同步：cron 频繁触发，按 poll_interval_minutes 限制实际间隔
	if deps.OrderService != nil {
		var interval func(ctx context.Context) time.Duration
		if deps.SettingsService != nil {
			interval = pollInterval(deps.SettingsService)
		}
		tm.orderTask = NewOrderSyncTask(deps.OrderService, cfg.OrderCron, cfg.Timeout, interval, log)
		tm.orderTask.enabled = cfg.Enabled
	}

	// 库存对账
	if deps.InventoryService != nil {
		tm.inventoryTask = NewProductSyncTask("InventorySyncTask", deps.InventoryService.RunInventorySync, cfg.InventoryCron, cfg.Timeout, log)
		tm.inventoryTask.enabled = cfg.Enabled
	}

	// 价格对账
	if deps.PriceService != nil {
		tm.priceTask = NewProductSyncTask("PriceSyncTask", deps.PriceService.RunPriceSync, cfg.PriceCron, cfg.Timeout, log)
		tm.priceTask.enabled = cfg.Enabled
	}

	// 发货回传
	if deps.FulfillmentService != nil {
		tm.trackingTask = NewTrackingSyncTask(deps.FulfillmentService, cfg.FulfillmentCron, cfg.Timeout, log)
		tm.trackingTask.enabled = cfg.Enabled
	}

	return tm
}

func pollInterval(settings *service.SettingsService) func(ctx context.Context) time.Duration {
	return func(ctx context.Context) time.Duration {
		rc, err := settings.Snapshot(ctx)
		if err != nil || rc.PollIntervalMinutes <= 0 {
			return 0
		}
		return time.Duration(rc.PollIntervalMinutes) * time.Minute
	}
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() error {
	ctx := context.Background()
	tm.log.Infof(ctx, "[TaskManager] 正在启动轮询任务...")

	if tm.orderTask != nil {
		if err := tm.orderTask.Start(tm.runOnStart); err != nil {
			return err
		}
	}
	if tm.inventoryTask != nil {
		if err := tm.inventoryTask.Start(tm.runOnStart); err != nil {
			return err
		}
	}
	if tm.priceTask != nil {
		if err := tm.priceTask.Start(tm.runOnStart); err != nil {
			return err
		}
	}
	if tm.trackingTask != nil {
		if err := tm.trackingTask.Start(tm.runOnStart); err != nil {
			return err
		}
	}

	tm.log.Infof(ctx, "[TaskManager] 轮询任务已全部启动")
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	ctx := context.Background()
	tm.log.Infof(ctx, "[TaskManager] 正在停止轮询任务...")

	if tm.orderTask != nil {
		tm.orderTask.Stop()
	}
	if tm.inventoryTask != nil {
		tm.inventoryTask.Stop()
	}
	if tm.priceTask != nil {
		tm.priceTask.Stop()
	}
	if tm.trackingTask != nil {
		tm.trackingTask.Stop()
	}

	tm.log.Infof(ctx, "[TaskManager] 轮询任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerOrderSync 触发订单同步
func (tm *TaskManager) TriggerOrderSync(ctx context.Context, window dto.OrderWindow, dryRun bool) (*dto.OrderSyncResult, error) {
	if tm.orderTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.orderTask.SyncNow(ctx, window, dryRun)
}

// TriggerInventorySync 触发库存对账
func (tm *TaskManager) TriggerInventorySync(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error) {
	if tm.inventoryTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.inventoryTask.SyncNow(ctx, dryRun)
}

// TriggerPriceSync 触发价格对账
func (tm *TaskManager) TriggerPriceSync(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error) {
	if tm.priceTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.priceTask.SyncNow(ctx, dryRun)
}

// TriggerFulfillmentSync 触发发货回传
func (tm *TaskManager) TriggerFulfillmentSync(ctx context.Context, dryRun bool) (*dto.FulfillmentSyncResult, error) {
	if tm.trackingTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.trackingTask.SyncNow(ctx, dryRun)
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]dto.TaskStatus {
	out := make(map[string]dto.TaskStatus, 4)
	if tm.orderTask != nil {
		out[TaskOrder] = tm.orderTask.status()
	}
	if tm.inventoryTask != nil {
		out[TaskInventory] = tm.inventoryTask.status()
	}
	if tm.priceTask != nil {
		out[TaskPrice] = tm.priceTask.status()
	}
	if tm.trackingTask != nil {
		out[TaskFulfillment] = tm.trackingTask.status()
	}
	return out
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
	ErrTaskRunning  TaskError = "task is already running"
)
