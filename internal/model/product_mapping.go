package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ==================== 商品映射生命周期 ====================

// LifecycleStatus 商品映射生命周期状态
type LifecycleStatus string

const (
	LifecycleInventoryOnly LifecycleStatus = "inventory_only" // 仅创建了库存记录
	LifecycleDraft         LifecycleStatus = "draft"          // 报价已创建未发布
	LifecycleActive        LifecycleStatus = "active"         // 在售
	LifecycleEnded         LifecycleStatus = "ended"          // 已下架
	LifecycleError         LifecycleStatus = "error"          // 上一步失败
)

// EndReason 下架原因
type EndReason string

const (
	EndReasonNone       EndReason = ""
	EndReasonOutOfStock EndReason = "out_of_stock" // 库存归零，补货后可重新上架
	EndReasonDelisted   EndReason = "delisted"     // 手动下架
	EndReasonDeleted    EndReason = "deleted"      // Catalog 商品已删除
)

// transitions 允许的状态流转，同状态视为合法
var transitions = map[LifecycleStatus][]LifecycleStatus{
	LifecycleInventoryOnly: {LifecycleDraft, LifecycleActive, LifecycleEnded, LifecycleError},
	LifecycleDraft:         {LifecycleActive, LifecycleEnded, LifecycleError},
	LifecycleActive:        {LifecycleEnded, LifecycleError},
	LifecycleEnded:         {LifecycleActive, LifecycleError},
	LifecycleError:         {LifecycleInventoryOnly, LifecycleDraft, LifecycleActive, LifecycleEnded},
}

// CanTransition 校验状态流转
// ended -> active 只允许缺货下架的映射（补货重新上架）
func CanTransition(from LifecycleStatus, reason EndReason, to LifecycleStatus) bool {
	if from == to {
		return true
	}
	if from == LifecycleEnded && to == LifecycleActive && reason != EndReasonOutOfStock {
		return false
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ==================== ProductMapping 商品映射 ====================

// ProductMapping Catalog 变体与 Marketplace 库存记录/报价/刊登的对应关系
// 同一 (catalog_product_id, marketplace_item_sku) 最多一条未下架记录
type ProductMapping struct {
	BaseModel
	CatalogProductID   string          `gorm:"size:64;not null;uniqueIndex:idx_pm_live,where:lifecycle_status <> 'ended';index" json:"catalog_product_id"`
	CatalogVariantID   string          `gorm:"size:64;index" json:"catalog_variant_id"`
	MarketplaceItemSKU string          `gorm:"size:100;not null;uniqueIndex:idx_pm_live,where:lifecycle_status <> 'ended';index" json:"marketplace_item_sku"`
	OfferID            string          `gorm:"size:64;index" json:"offer_id"`
	ListingID          string          `gorm:"size:64" json:"listing_id"`
	LifecycleStatus    LifecycleStatus `gorm:"size:20;not null;index;default:inventory_only" json:"lifecycle_status"`
	EndReason          EndReason       `gorm:"size:20" json:"end_reason"`
	LastError          string          `gorm:"type:text" json:"last_error"`

	// 最近一次成功推送的值，仅用于展示
	LastPushedQuantity *int             `json:"last_pushed_quantity"`
	LastPushedPrice    *decimal.Decimal `gorm:"type:decimal(12,2)" json:"last_pushed_price"`
	LastSyncedAt       *time.Time       `json:"last_synced_at"`
}

func (ProductMapping) TableName() string {
	return "product_mappings"
}

// IsLive 未下架
func (m *ProductMapping) IsLive() bool {
	return m.LifecycleStatus != LifecycleEnded
}

// Restockable 缺货下架，补货后可重新上架
func (m *ProductMapping) Restockable() bool {
	return m.LifecycleStatus == LifecycleEnded && m.EndReason == EndReasonOutOfStock
}
