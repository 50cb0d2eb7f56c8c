package task

import (
	"context"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
)

// OrderRunner 订单导入
type OrderRunner interface {
	RunOrderSync(ctx context.Context, window dto.OrderWindow, dryRun bool) (*dto.OrderSyncResult, error)
}

// ==================== OrderSyncTask 订单同步任务 ====================

// OrderSyncTask 定时拉取 Marketplace 订单导入 Catalog
// cron 每分钟触发，实际间隔由 poll_interval_minutes 控制
type OrderSyncTask struct {
	*cronJob
	orders OrderRunner
}

// NewOrderSyncTask 创建订单同步任务，interval 为 nil 时每次触发都执行
func NewOrderSyncTask(orders OrderRunner, spec string, timeout time.Duration, interval func(ctx context.Context) time.Duration, log logger.Logger) *OrderSyncTask {
	t := &OrderSyncTask{
		cronJob: newCronJob("OrderSyncTask", spec, timeout, log),
		orders:  orders,
	}
	t.minInterval = interval
	return t
}

// Start 启动定时任务
func (t *OrderSyncTask) Start(runOnStart bool) error {
	return t.start(runOnStart, func(ctx context.Context) error {
		_, err := t.syncWindow(ctx, dto.OrderWindow{}, false)
		return err
	})
}

// Stop 停止任务
func (t *OrderSyncTask) Stop() {
	t.stop()
}

// SyncNow 手动触发，与定时执行互斥
func (t *OrderSyncTask) SyncNow(ctx context.Context, window dto.OrderWindow, dryRun bool) (*dto.OrderSyncResult, error) {
	var result *dto.OrderSyncResult
	err := t.exec(ctx, !dryRun, func(ctx context.Context) error {
		var err error
		result, err = t.syncWindow(ctx, window, dryRun)
		return err
	})
	return result, err
}

func (t *OrderSyncTask) syncWindow(ctx context.Context, window dto.OrderWindow, dryRun bool) (*dto.OrderSyncResult, error) {
	result, err := t.orders.RunOrderSync(ctx, window, dryRun)
	if err != nil {
		return nil, err
	}
	t.log.Infof(ctx, "[OrderSyncTask] 完成: imported=%d skipped=%d failed=%d", result.Imported, result.Skipped, result.Failed)
	return result, nil
}
