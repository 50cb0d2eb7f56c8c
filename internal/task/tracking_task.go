package task

import (
	"context"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
)

// FulfillmentRunner 发货回传轮询
type FulfillmentRunner interface {
	RunFulfillmentSync(ctx context.Context, dryRun bool) (*dto.FulfillmentSyncResult, error)
}

// ==================== TrackingSyncTask 发货回传任务 ====================

// TrackingSyncTask 定时检查已导入订单的 Catalog 发货记录并回传 Marketplace
type TrackingSyncTask struct {
	*cronJob
	fulfillment FulfillmentRunner
}

// NewTrackingSyncTask 创建发货回传任务
func NewTrackingSyncTask(fulfillment FulfillmentRunner, spec string, timeout time.Duration, log logger.Logger) *TrackingSyncTask {
	return &TrackingSyncTask{
		cronJob:     newCronJob("TrackingSyncTask", spec, timeout, log),
		fulfillment: fulfillment,
	}
}

// Start 启动定时任务
func (t *TrackingSyncTask) Start(runOnStart bool) error {
	return t.start(runOnStart, func(ctx context.Context) error {
		_, err := t.sync(ctx, false)
		return err
	})
}

// Stop 停止任务
func (t *TrackingSyncTask) Stop() {
	t.stop()
}

// SyncNow 手动触发
func (t *TrackingSyncTask) SyncNow(ctx context.Context, dryRun bool) (*dto.FulfillmentSyncResult, error) {
	var result *dto.FulfillmentSyncResult
	err := t.exec(ctx, !dryRun, func(ctx context.Context) error {
		var err error
		result, err = t.sync(ctx, dryRun)
		return err
	})
	return result, err
}

func (t *TrackingSyncTask) sync(ctx context.Context, dryRun bool) (*dto.FulfillmentSyncResult, error) {
	result, err := t.fulfillment.RunFulfillmentSync(ctx, dryRun)
	if err != nil {
		return nil, err
	}
	t.log.Infof(ctx, "[TrackingSyncTask] 完成: checked=%d fulfilled=%d skipped=%d failed=%d",
		result.Checked, result.Fulfilled, result.Skipped, result.Failed)
	return result, nil
}
