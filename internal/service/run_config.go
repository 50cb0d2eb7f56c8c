package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/config"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"

	"github.com/shopspring/decimal"
)

// ==================== RunConfig 单次运行配置快照 ====================

// RunConfig 每次运行开始时读取一次，运行期间不变
type RunConfig struct {
	OrderSyncEnabled       bool
	InventorySyncEnabled   bool
	PriceSyncEnabled       bool
	FulfillmentSyncEnabled bool
	AutoPublish            bool
	PollIntervalMinutes    int

	DefaultLocationID  string
	Policies           platform.PolicySet
	PriceMarkupPercent decimal.Decimal
	Condition          string
	Currency           string
	DedupTagPrefix     string

	CatalogBatchSize  int
	OrderPageSize     int
	OrderLookbackDays int
	WriteDelay        time.Duration
	RunTimeout        time.Duration
	MaxErrors         int
}

// DefaultRunConfig 由静态配置生成默认快照
func DefaultRunConfig(c config.SyncConfig) RunConfig {
	return RunConfig{
		OrderSyncEnabled:       true,
		InventorySyncEnabled:   true,
		PriceSyncEnabled:       true,
		FulfillmentSyncEnabled: true,
		AutoPublish:            false,
		PollIntervalMinutes:    5,
		PriceMarkupPercent:     decimal.Zero,
		Condition:              c.Condition,
		Currency:               c.Currency,
		DedupTagPrefix:         c.DedupTagPrefix,
		CatalogBatchSize:       c.CatalogBatchSize,
		OrderPageSize:          c.OrderPageSize,
		OrderLookbackDays:      c.OrderLookbackDays,
		WriteDelay:             c.WriteDelay,
		RunTimeout:             c.RunTimeout,
		MaxErrors:              c.MaxErrors,
	}
}

// DedupTag 订单去重标签
func (c RunConfig) DedupTag(marketplaceOrderID string) string {
	return c.DedupTagPrefix + marketplaceOrderID
}

// TargetPrice 目标售价 = Catalog 价格 × (1 + 加价百分比)，保留两位小数
func (c RunConfig) TargetPrice(catalogPrice decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(c.PriceMarkupPercent.Div(decimal.NewFromInt(100)))
	return catalogPrice.Mul(factor).Round(2)
}

// ==================== SettingsService 配置服务 ====================

// SettingsService settings 表叠加静态默认值
type SettingsService struct {
	repo     repository.SettingRepository
	defaults RunConfig
	log      logger.Logger
}

// NewSettingsService 创建配置服务
func NewSettingsService(repo repository.SettingRepository, defaults RunConfig, log logger.Logger) *SettingsService {
	return &SettingsService{repo: repo, defaults: defaults, log: log}
}

// Defaults 静态默认值
func (s *SettingsService) Defaults() RunConfig {
	return s.defaults
}

// Snapshot 生成本次运行的配置快照
// 读取失败视为启动失败，非法值回退默认并告警
func (s *SettingsService) Snapshot(ctx context.Context) (RunConfig, error) {
	values, err := s.repo.GetAll(ctx)
	if err != nil {
		return RunConfig{}, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := s.defaults
	for key, raw := range values {
		if err := applySetting(&cfg, key, raw); err != nil {
			s.log.Warnf(ctx, "[SettingsService] 配置 %s=%q 无效，使用默认值: %v", key, raw, err)
		}
	}
	return cfg, nil
}

// Effective 当前生效的全部已知配置
func (s *SettingsService) Effective(ctx context.Context) (map[string]string, error) {
	cfg, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		model.SettingOrderSyncEnabled:       strconv.FormatBool(cfg.OrderSyncEnabled),
		model.SettingInventorySyncEnabled:   strconv.FormatBool(cfg.InventorySyncEnabled),
		model.SettingPriceSyncEnabled:       strconv.FormatBool(cfg.PriceSyncEnabled),
		model.SettingFulfillmentSyncEnabled: strconv.FormatBool(cfg.FulfillmentSyncEnabled),
		model.SettingAutoPublish:            strconv.FormatBool(cfg.AutoPublish),
		model.SettingPollIntervalMinutes:    strconv.Itoa(cfg.PollIntervalMinutes),
		model.SettingDefaultLocationID:      cfg.DefaultLocationID,
		model.SettingCategoryID:             cfg.Policies.CategoryID,
		model.SettingFulfillmentPolicyID:    cfg.Policies.FulfillmentPolicyID,
		model.SettingPaymentPolicyID:        cfg.Policies.PaymentPolicyID,
		model.SettingReturnPolicyID:         cfg.Policies.ReturnPolicyID,
		model.SettingMerchantLocationKey:    cfg.Policies.MerchantLocationKey,
		model.SettingPriceMarkupPercent:     cfg.PriceMarkupPercent.String(),
		model.SettingListingCondition:       cfg.Condition,
	}, nil
}

// Update 批量修改配置，未知 key 或非法值整体拒绝
func (s *SettingsService) Update(ctx context.Context, values map[string]string) error {
	candidate := s.defaults
	for key, raw := range values {
		if !model.IsKnownSetting(key) {
			return platform.Validation("settings.update", "unknown setting "+key)
		}
		if err := applySetting(&candidate, key, raw); err != nil {
			return platform.Validation("settings.update", fmt.Sprintf("%s: %v", key, err))
		}
	}
	if err := s.repo.Upsert(ctx, values); err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}
	s.log.Infof(ctx, "[SettingsService] 配置已更新: %d 项", len(values))
	return nil
}

// parseBoolInto 解析失败时保留原值
func parseBoolInto(dst *bool, raw string) error {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func applySetting(cfg *RunConfig, key, raw string) error {
	raw = strings.TrimSpace(raw)
	var err error
	switch key {
	case model.SettingOrderSyncEnabled:
		err = parseBoolInto(&cfg.OrderSyncEnabled, raw)
	case model.SettingInventorySyncEnabled:
		err = parseBoolInto(&cfg.InventorySyncEnabled, raw)
	case model.SettingPriceSyncEnabled:
		err = parseBoolInto(&cfg.PriceSyncEnabled, raw)
	case model.SettingFulfillmentSyncEnabled:
		err = parseBoolInto(&cfg.FulfillmentSyncEnabled, raw)
	case model.SettingAutoPublish:
		err = parseBoolInto(&cfg.AutoPublish, raw)
	case model.SettingPollIntervalMinutes:
		var n int
		n, err = strconv.Atoi(raw)
		if err == nil && n <= 0 {
			err = fmt.Errorf("must be positive")
		}
		if err == nil {
			cfg.PollIntervalMinutes = n
		}
	case model.SettingPriceMarkupPercent:
		var d decimal.Decimal
		d, err = decimal.NewFromString(raw)
		if err == nil && d.LessThan(decimal.NewFromInt(-100)) {
			err = fmt.Errorf("must be >= -100")
		}
		if err == nil {
			cfg.PriceMarkupPercent = d
		}
	case model.SettingDefaultLocationID:
		cfg.DefaultLocationID = raw
	case model.SettingCategoryID:
		cfg.Policies.CategoryID = raw
	case model.SettingFulfillmentPolicyID:
		cfg.Policies.FulfillmentPolicyID = raw
	case model.SettingPaymentPolicyID:
		cfg.Policies.PaymentPolicyID = raw
	case model.SettingReturnPolicyID:
		cfg.Policies.ReturnPolicyID = raw
	case model.SettingMerchantLocationKey:
		cfg.Policies.MerchantLocationKey = raw
	case model.SettingListingCondition:
		if raw != "" {
			cfg.Condition = raw
		}
	}
	return err
}
