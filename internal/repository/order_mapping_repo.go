package repository

import (
	"context"
	"errors"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderMappingFilter 订单映射过滤条件
type OrderMappingFilter struct {
	Status        string
	LowConfidence *bool
	Page          int
	PageSize      int
}

// ==================== OrderMappingRepository 订单映射仓库 ====================

// OrderMappingRepository 订单映射仓库接口
type OrderMappingRepository interface {
	// Create 按 marketplace_order_id 插入，已存在时不覆盖，created=false
	Create(ctx context.Context, m *model.OrderMapping) (bool, error)
	GetByMarketplaceID(ctx context.Context, orderID string) (*model.OrderMapping, error)
	GetByCatalogOrderID(ctx context.Context, catalogOrderID string) (*model.OrderMapping, error)
	// ListByStatus 按主键游标分页，afterID 为上一页最后一条的 ID
	ListByStatus(ctx context.Context, status string, afterID int64, limit int) ([]model.OrderMapping, error)
	List(ctx context.Context, filter OrderMappingFilter) ([]model.OrderMapping, int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// MarkFulfilled 仅 synced 状态可标记，返回是否由本次调用完成
	MarkFulfilled(ctx context.Context, id int64, trackingNumber string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type orderMappingRepository struct {
	db *gorm.DB
}

// NewOrderMappingRepository 创建订单映射仓库
func NewOrderMappingRepository(db *gorm.DB) OrderMappingRepository {
	return &orderMappingRepository{db: db}
}

func (r *orderMappingRepository) Create(ctx context.Context, m *model.OrderMapping) (bool, error) {
	if m.Status == "" {
		m.Status = model.OrderMappingSynced
	}
	if m.SyncedAt.IsZero() {
		m.SyncedAt = nowUTC()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "marketplace_order_id"}}, DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *orderMappingRepository) GetByMarketplaceID(ctx context.Context, orderID string) (*model.OrderMapping, error) {
	return r.first(ctx, "marketplace_order_id = ?", orderID)
}

func (r *orderMappingRepository) GetByCatalogOrderID(ctx context.Context, catalogOrderID string) (*model.OrderMapping, error) {
	return r.first(ctx, "catalog_order_id = ?", catalogOrderID)
}

func (r *orderMappingRepository) first(ctx context.Context, query string, arg interface{}) (*model.OrderMapping, error) {
	var m model.OrderMapping
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *orderMappingRepository) ListByStatus(ctx context.Context, status string, afterID int64, limit int) ([]model.OrderMapping, error) {
	var list []model.OrderMapping
	db := r.db.WithContext(ctx).Where("status = ? AND id > ?", status, afterID).Order("id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	err := db.Find(&list).Error
	return list, err
}

func (r *orderMappingRepository) List(ctx context.Context, filter OrderMappingFilter) ([]model.OrderMapping, int64, error) {
	var list []model.OrderMapping
	var total int64

	db := r.db.WithContext(ctx).Model(&model.OrderMapping{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.LowConfidence != nil {
		db = db.Where("low_confidence = ?", *filter.LowConfidence)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	err := db.Order("synced_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error
	return list, total, err
}

func (r *orderMappingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.OrderMapping{}).
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

func (r *orderMappingRepository) MarkFulfilled(ctx context.Context, id int64, trackingNumber string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.OrderMapping{}).
		Where("id = ? AND status = ?", id, model.OrderMappingSynced).
		Updates(map[string]interface{}{
			"status":          model.OrderMappingFulfilled,
			"tracking_number": trackingNumber,
			"fulfilled_at":    at,
			"last_error":      "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *orderMappingRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.db.WithContext(ctx).Model(&model.OrderMapping{}).
		Where("id = ? AND status = ?", id, model.OrderMappingSynced).
		Updates(map[string]interface{}{
			"status":     model.OrderMappingFailed,
			"last_error": reason,
		}).Error
}
