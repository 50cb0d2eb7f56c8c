package repository

import (
	"context"
	"sort"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"

	"gorm.io/gorm"
)

// SyncLogFilter 同步日志过滤条件
type SyncLogFilter struct {
	EntityType string
	EntityID   string
	Status     string
	RunID      string
	Since      *time.Time
	Page       int
	PageSize   int
}

// ErrorPattern 失败日志聚合
type ErrorPattern struct {
	EntityType string    `json:"entity_type"`
	Detail     string    `json:"detail"`
	Count      int64     `json:"count"`
	LastSeen   time.Time `json:"last_seen"`
}

// ==================== SyncLogRepository 同步日志仓库 ====================

// SyncLogRepository 同步日志仓库接口
type SyncLogRepository interface {
	Create(ctx context.Context, entry *model.SyncLogEntry) error
	List(ctx context.Context, filter SyncLogFilter) ([]model.SyncLogEntry, int64, error)
	// ErrorPatterns 按 entity_type + detail 聚合失败日志，按次数倒序
	ErrorPatterns(ctx context.Context, since time.Time, limit int) ([]ErrorPattern, error)
}

type syncLogRepository struct {
	db *gorm.DB
}

// NewSyncLogRepository 创建同步日志仓库
func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) Create(ctx context.Context, entry *model.SyncLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *syncLogRepository) List(ctx context.Context, filter SyncLogFilter) ([]model.SyncLogEntry, int64, error) {
	var list []model.SyncLogEntry
	var total int64

	db := r.db.WithContext(ctx).Model(&model.SyncLogEntry{})
	if filter.EntityType != "" {
		db = db.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		db = db.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.RunID != "" {
		db = db.Where("run_id = ?", filter.RunID)
	}
	if filter.Since != nil {
		db = db.Where("created_at >= ?", *filter.Since)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	err := db.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error
	return list, total, err
}

func (r *syncLogRepository) ErrorPatterns(ctx context.Context, since time.Time, limit int) ([]ErrorPattern, error) {
	var rows []model.SyncLogEntry
	err := r.db.WithContext(ctx).
		Select("entity_type", "detail", "created_at").
		Where("status = ? AND created_at >= ?", model.SyncStatusFailed, since).
		Order("id DESC").
		Limit(10000).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// 聚合放在内存做，MAX(created_at) 在 sqlite 下返回文本
	index := make(map[string]*ErrorPattern)
	var patterns []*ErrorPattern
	for _, row := range rows {
		key := row.EntityType + "\x00" + row.Detail
		p, ok := index[key]
		if !ok {
			p = &ErrorPattern{EntityType: row.EntityType, Detail: row.Detail}
			index[key] = p
			patterns = append(patterns, p)
		}
		p.Count++
		if row.CreatedAt.After(p.LastSeen) {
			p.LastSeen = row.CreatedAt
		}
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].LastSeen.After(patterns[j].LastSeen)
	})
	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}

	out := make([]ErrorPattern, len(patterns))
	for i, p := range patterns {
		out[i] = *p
	}
	return out, nil
}
