package repository

import (
	"context"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEventRepository 事件收件箱仓库接口
type WebhookEventRepository interface {
	// Record 写入收件箱，同来源同投递 ID 已存在时返回 duplicate=true
	Record(ctx context.Context, e *model.WebhookEvent) (duplicate bool, err error)
	MarkStatus(ctx context.Context, id int64, status, errMsg string) error
	// Delete 撤销收件箱记录，入队失败时调用，使平台重投不被视为重复
	Delete(ctx context.Context, id int64) error
	ListRecent(ctx context.Context, source string, limit int) ([]model.WebhookEvent, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository 创建事件收件箱仓库
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Record(ctx context.Context, e *model.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "delivery_id"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 0, nil
}

func (r *webhookEventRepository) MarkStatus(ctx context.Context, id int64, status, errMsg string) error {
	updates := map[string]interface{}{
		"status": status,
		"error":  errMsg,
	}
	if status == model.WebhookStatusProcessed || status == model.WebhookStatusFailed || status == model.WebhookStatusIgnored {
		updates["processed_at"] = nowUTC()
	}
	return r.db.WithContext(ctx).Model(&model.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *webhookEventRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.WebhookEvent{}, id).Error
}

func (r *webhookEventRepository) ListRecent(ctx context.Context, source string, limit int) ([]model.WebhookEvent, error) {
	var list []model.WebhookEvent
	db := r.db.WithContext(ctx).Order("id DESC")
	if source != "" {
		db = db.Where("source = ?", source)
	}
	if limit <= 0 {
		limit = 50
	}
	err := db.Limit(limit).Find(&list).Error
	return list, err
}

func (r *webhookEventRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
