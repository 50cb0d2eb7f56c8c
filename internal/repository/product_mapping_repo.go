package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"

	"gorm.io/gorm"
)

// ErrInvalidTransition 非法的生命周期流转
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ==================== 过滤条件 ====================

// ProductMappingFilter 商品映射过滤条件
type ProductMappingFilter struct {
	CatalogProductID string
	Status           string
	Page             int
	PageSize         int
}

// ==================== ProductMappingRepository 商品映射仓库 ====================

// ProductMappingRepository 商品映射仓库接口
type ProductMappingRepository interface {
	// CreateIfAbsent 同键已有未下架映射时直接返回已有记录，created=false
	CreateIfAbsent(ctx context.Context, m *model.ProductMapping) (*model.ProductMapping, bool, error)
	FindLive(ctx context.Context, productID, sku string) (*model.ProductMapping, error)
	// FindCurrent 优先返回未下架映射，否则返回最近一条已下架映射
	FindCurrent(ctx context.Context, productID, sku string) (*model.ProductMapping, error)
	FindLiveBySKU(ctx context.Context, sku string) (*model.ProductMapping, error)
	ListByProduct(ctx context.Context, productID string) ([]model.ProductMapping, error)
	// ListSyncable 需要参与库存/价格对账的映射
	ListSyncable(ctx context.Context, requireOffer bool) ([]model.ProductMapping, error)
	List(ctx context.Context, filter ProductMappingFilter) ([]model.ProductMapping, int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Transition 校验并执行状态流转，fields 为同时更新的字段
	Transition(ctx context.Context, m *model.ProductMapping, to model.LifecycleStatus, fields map[string]interface{}) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
}

// ==================== 实现 ====================

type productMappingRepository struct {
	db *gorm.DB
}

// NewProductMappingRepository 创建商品映射仓库
func NewProductMappingRepository(db *gorm.DB) ProductMappingRepository {
	return &productMappingRepository{db: db}
}

func (r *productMappingRepository) CreateIfAbsent(ctx context.Context, m *model.ProductMapping) (*model.ProductMapping, bool, error) {
	existing, err := r.FindLive(ctx, m.CatalogProductID, m.MarketplaceItemSKU)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if m.LifecycleStatus == "" {
		m.LifecycleStatus = model.LifecycleInventoryOnly
	}
	err = r.db.WithContext(ctx).Create(m).Error
	if err == nil {
		return m, true, nil
	}
	if !IsUniqueViolation(err) {
		return nil, false, err
	}

	// 并发插入撞唯一索引，回读胜出方
	existing, err = r.FindLive(ctx, m.CatalogProductID, m.MarketplaceItemSKU)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("product mapping %s/%s: unique conflict without live row", m.CatalogProductID, m.MarketplaceItemSKU)
	}
	return existing, false, nil
}

func (r *productMappingRepository) FindLive(ctx context.Context, productID, sku string) (*model.ProductMapping, error) {
	var m model.ProductMapping
	err := r.db.WithContext(ctx).
		Where("catalog_product_id = ? AND marketplace_item_sku = ? AND lifecycle_status <> ?", productID, sku, model.LifecycleEnded).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *productMappingRepository) FindCurrent(ctx context.Context, productID, sku string) (*model.ProductMapping, error) {
	live, err := r.FindLive(ctx, productID, sku)
	if err != nil || live != nil {
		return live, err
	}

	var m model.ProductMapping
	err = r.db.WithContext(ctx).
		Where("catalog_product_id = ? AND marketplace_item_sku = ?", productID, sku).
		Order("updated_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *productMappingRepository) FindLiveBySKU(ctx context.Context, sku string) (*model.ProductMapping, error) {
	var m model.ProductMapping
	err := r.db.WithContext(ctx).
		Where("marketplace_item_sku = ? AND lifecycle_status <> ?", sku, model.LifecycleEnded).
		Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *productMappingRepository) ListByProduct(ctx context.Context, productID string) ([]model.ProductMapping, error) {
	var list []model.ProductMapping
	err := r.db.WithContext(ctx).
		Where("catalog_product_id = ?", productID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *productMappingRepository) ListSyncable(ctx context.Context, requireOffer bool) ([]model.ProductMapping, error) {
	var list []model.ProductMapping
	db := r.db.WithContext(ctx).
		Where("lifecycle_status <> ? OR (lifecycle_status = ? AND end_reason = ?)",
			model.LifecycleEnded, model.LifecycleEnded, model.EndReasonOutOfStock)
	if requireOffer {
		db = db.Where("offer_id <> ''")
	}
	err := db.Order("catalog_product_id ASC, id DESC").Find(&list).Error
	if err != nil {
		return nil, err
	}
	return dedupeCurrent(list), nil
}

// dedupeCurrent 同键既有未下架又有缺货下架记录时只保留未下架那条
func dedupeCurrent(list []model.ProductMapping) []model.ProductMapping {
	live := make(map[string]bool, len(list))
	for _, m := range list {
		if m.IsLive() {
			live[m.CatalogProductID+"\x00"+m.MarketplaceItemSKU] = true
		}
	}
	out := list[:0]
	seenEnded := make(map[string]bool)
	for _, m := range list {
		k := m.CatalogProductID + "\x00" + m.MarketplaceItemSKU
		if !m.IsLive() {
			if live[k] || seenEnded[k] {
				continue
			}
			seenEnded[k] = true
		}
		out = append(out, m)
	}
	return out
}

func (r *productMappingRepository) List(ctx context.Context, filter ProductMappingFilter) ([]model.ProductMapping, int64, error) {
	var list []model.ProductMapping
	var total int64

	db := r.db.WithContext(ctx).Model(&model.ProductMapping{})
	if filter.CatalogProductID != "" {
		db = db.Where("catalog_product_id = ?", filter.CatalogProductID)
	}
	if filter.Status != "" {
		db = db.Where("lifecycle_status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	err := db.Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error
	return list, total, err
}

func (r *productMappingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		LifecycleStatus string
		Count           int64
	}
	err := r.db.WithContext(ctx).Model(&model.ProductMapping{}).
		Select("lifecycle_status, COUNT(*) AS count").
		Group("lifecycle_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.LifecycleStatus] = row.Count
	}
	return out, nil
}

func (r *productMappingRepository) Transition(ctx context.Context, m *model.ProductMapping, to model.LifecycleStatus, fields map[string]interface{}) error {
	if !model.CanTransition(m.LifecycleStatus, m.EndReason, to) {
		return fmt.Errorf("%w: %s -> %s (end_reason=%q)", ErrInvalidTransition, m.LifecycleStatus, to, m.EndReason)
	}
	updates := map[string]interface{}{"lifecycle_status": to}
	for k, v := range fields {
		updates[k] = v
	}
	if to != model.LifecycleEnded {
		if _, ok := updates["end_reason"]; !ok {
			updates["end_reason"] = model.EndReasonNone
		}
	}
	if to != model.LifecycleError {
		if _, ok := updates["last_error"]; !ok {
			updates["last_error"] = ""
		}
	}

	// 条件更新，防止并发改写
	res := r.db.WithContext(ctx).Model(&model.ProductMapping{}).
		Where("id = ? AND lifecycle_status = ?", m.ID, m.LifecycleStatus).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product mapping %d changed concurrently (expected %s)", m.ID, m.LifecycleStatus)
	}
	return r.reload(ctx, m)
}

func (r *productMappingRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.ProductMapping{}).Where("id = ?", id).Updates(fields).Error
}

func (r *productMappingRepository) reload(ctx context.Context, m *model.ProductMapping) error {
	return r.db.WithContext(ctx).First(m, m.ID).Error
}

// ==================== 工具函数 ====================

// IsUniqueViolation 是否唯一约束冲突（postgres / sqlite）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
