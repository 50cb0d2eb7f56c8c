package task

import (
	"context"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
)

// ItemRunner 库存或价格全量对账
type ItemRunner func(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error)

// ==================== ProductSyncTask 商品对账任务 ====================

// ProductSyncTask 定时全量对账（库存、价格各一个实例）
// webhook 只是加速，漏掉的事件由这里兜底
type ProductSyncTask struct {
	*cronJob
	run ItemRunner
}

// NewProductSyncTask 创建商品对账任务，name 用于日志
func NewProductSyncTask(name string, run ItemRunner, spec string, timeout time.Duration, log logger.Logger) *ProductSyncTask {
	return &ProductSyncTask{
		cronJob: newCronJob(name, spec, timeout, log),
		run:     run,
	}
}

// Start 启动定时任务
func (t *ProductSyncTask) Start(runOnStart bool) error {
	return t.start(runOnStart, func(ctx context.Context) error {
		_, err := t.sync(ctx, false)
		return err
	})
}

// Stop 停止任务
func (t *ProductSyncTask) Stop() {
	t.stop()
}

// SyncNow 手动触发
func (t *ProductSyncTask) SyncNow(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error) {
	var result *dto.ItemSyncResult
	err := t.exec(ctx, !dryRun, func(ctx context.Context) error {
		var err error
		result, err = t.sync(ctx, dryRun)
		return err
	})
	return result, err
}

func (t *ProductSyncTask) sync(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error) {
	result, err := t.run(ctx, dryRun)
	if err != nil {
		return nil, err
	}
	t.log.Infof(ctx, "[%s] 完成: checked=%d updated=%d ended=%d relisted=%d failed=%d",
		t.name, result.Checked, result.Updated, result.Ended, result.Relisted, result.Failed)
	return result, nil
}
