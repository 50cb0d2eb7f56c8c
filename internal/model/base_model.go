package model

import (
	"time"
)

// BaseModel 公共字段
// 映射表不做物理删除
type BaseModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllModels 需要自动迁移的表
func AllModels() []interface{} {
	return []interface{}{
		&ProductMapping{},
		&OrderMapping{},
		&SyncLogEntry{},
		&Setting{},
		&WebhookEvent{},
	}
}
