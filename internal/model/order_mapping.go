package model

import "time"

// ==================== 订单映射状态 ====================

const (
	OrderMappingSynced    = "synced"    // 已导入 Catalog
	OrderMappingFulfilled = "fulfilled" // 运单已回传 Marketplace
	OrderMappingFailed    = "failed"    // 运单回传被拒，不再自动重试
)

// DedupLayer 订单去重命中层
const (
	DedupLayerCreated          = "created"           // 本服务创建
	DedupLayerTag              = "tag"               // 按标签命中
	DedupLayerSourceIdentifier = "source_identifier" // 按来源标识命中
	DedupLayerNoteText         = "note_text"         // 按备注文本命中（低置信度）
)

// ==================== OrderMapping 订单映射 ====================

// OrderMapping Marketplace 订单与 Catalog 订单的对应关系
type OrderMapping struct {
	BaseModel
	MarketplaceOrderID    string     `gorm:"size:64;not null;uniqueIndex" json:"marketplace_order_id"`
	CatalogOrderID        string     `gorm:"size:64;index" json:"catalog_order_id"`
	CatalogOrderReference string     `gorm:"size:64" json:"catalog_order_reference"`
	Status                string     `gorm:"size:20;not null;index;default:synced" json:"status"`
	DedupLayer            string     `gorm:"size:32" json:"dedup_layer"`
	LowConfidence         bool       `gorm:"default:false" json:"low_confidence"`
	TrackingNumber        string     `gorm:"size:100" json:"tracking_number"`
	LastError             string     `gorm:"type:text" json:"last_error"`
	SyncedAt              time.Time  `json:"synced_at"`
	FulfilledAt           *time.Time `json:"fulfilled_at"`
}

func (OrderMapping) TableName() string {
	return "order_mappings"
}
