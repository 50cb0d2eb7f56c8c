package model

import "time"

// 已知配置项
const (
	SettingOrderSyncEnabled       = "order_sync_enabled"
	SettingInventorySyncEnabled   = "inventory_sync_enabled"
	SettingPriceSyncEnabled       = "price_sync_enabled"
	SettingFulfillmentSyncEnabled = "fulfillment_sync_enabled"
	SettingAutoPublish            = "auto_publish"
	SettingPollIntervalMinutes    = "poll_interval_minutes"
	SettingDefaultLocationID      = "default_location_id"
	SettingCategoryID             = "marketplace_category_id"
	SettingFulfillmentPolicyID    = "fulfillment_policy_id"
	SettingPaymentPolicyID        = "payment_policy_id"
	SettingReturnPolicyID         = "return_policy_id"
	SettingMerchantLocationKey    = "merchant_location_key"
	SettingPriceMarkupPercent     = "price_markup_percent"
	SettingListingCondition       = "listing_condition"
)

// KnownSettings 允许通过接口修改的 key
var KnownSettings = []string{
	SettingOrderSyncEnabled,
	SettingInventorySyncEnabled,
	SettingPriceSyncEnabled,
	SettingFulfillmentSyncEnabled,
	SettingAutoPublish,
	SettingPollIntervalMinutes,
	SettingDefaultLocationID,
	SettingCategoryID,
	SettingFulfillmentPolicyID,
	SettingPaymentPolicyID,
	SettingReturnPolicyID,
	SettingMerchantLocationKey,
	SettingPriceMarkupPercent,
	SettingListingCondition,
}

// IsKnownSetting 是否为已知 key
func IsKnownSetting(key string) bool {
	for _, k := range KnownSettings {
		if k == key {
			return true
		}
	}
	return false
}

// Setting 扁平 key/value 配置
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}
