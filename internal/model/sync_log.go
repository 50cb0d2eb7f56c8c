package model

import "time"

// ==================== 同步日志 ====================

// Direction 同步方向
const (
	DirectionCatalogToMarketplace = "catalog_to_marketplace"
	DirectionMarketplaceToCatalog = "marketplace_to_catalog"
)

// EntityType 同步实体
const (
	EntityProduct     = "product"
	EntityInventory   = "inventory"
	EntityPrice       = "price"
	EntityOrder       = "order"
	EntityFulfillment = "fulfillment"
	EntityEvent       = "event"
)

// SyncStatus 同步结果
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncLogEntry 同步日志，只追加
type SyncLogEntry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Direction  string    `gorm:"size:32;not null" json:"direction"`
	EntityType string    `gorm:"size:20;not null;index:idx_sync_log_entity" json:"entity_type"`
	EntityID   string    `gorm:"size:100;index:idx_sync_log_entity" json:"entity_id"`
	Status     string    `gorm:"size:20;not null;index" json:"status"`
	Detail     string    `gorm:"type:text" json:"detail"`
	RunID      string    `gorm:"size:64;index" json:"run_id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (SyncLogEntry) TableName() string {
	return "sync_logs"
}
