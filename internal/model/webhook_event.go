package model

import (
	"time"

	"gorm.io/datatypes"
)

// 事件来源
const (
	EventSourceCatalog     = "catalog"
	EventSourceMarketplace = "marketplace"
)

// WebhookEvent 处理状态
const (
	WebhookStatusQueued    = "queued"
	WebhookStatusProcessed = "processed"
	WebhookStatusFailed    = "failed"
	WebhookStatusDuplicate = "duplicate"
	WebhookStatusRejected  = "rejected"
	WebhookStatusIgnored   = "ignored" // 不支持的 topic，已确认未处理
)

// WebhookEvent 收件箱，记录每一次投递
type WebhookEvent struct {
	BaseModel
	Source         string         `gorm:"size:20;not null;uniqueIndex:idx_webhook_delivery" json:"source"`
	DeliveryID     string         `gorm:"size:128;not null;uniqueIndex:idx_webhook_delivery" json:"delivery_id"`
	Topic          string         `gorm:"size:100;index" json:"topic"`
	Payload        datatypes.JSON `json:"payload"`
	SignatureValid bool           `json:"signature_valid"`
	Status         string         `gorm:"size:20;not null;index" json:"status"`
	Error          string         `gorm:"type:text" json:"error"`
	ProcessedAt    *time.Time     `json:"processed_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
