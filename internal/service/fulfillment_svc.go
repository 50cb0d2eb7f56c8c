package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/metrics"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/lock"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

// fulfillmentPollPageSize 轮询按主键游标分页，每页映射数
var fulfillmentPollPageSize = 200

// PropagateOutcome 发货回传结果
type PropagateOutcome string

const (
	PropagateFulfilled PropagateOutcome = "fulfilled"
	PropagateSkipped   PropagateOutcome = "skipped" // 已回传 / 缺运单 / 物流商不支持
	PropagateIgnored   PropagateOutcome = "ignored" // 非 Marketplace 订单
)

// ==================== FulfillmentService 发货回传 ====================

// FulfillmentService Catalog 发货信息回传 Marketplace，每个订单恰好一次
type FulfillmentService struct {
	catalog  platform.CatalogClient
	market   platform.MarketplaceClient
	orders   repository.OrderMappingRepository
	settings *SettingsService
	syncLog  *SyncLogService
	locker   lock.Locker
	log      logger.Logger
}

// NewFulfillmentService 创建发货回传服务
func NewFulfillmentService(
	catalog platform.CatalogClient,
	market platform.MarketplaceClient,
	orders repository.OrderMappingRepository,
	settings *SettingsService,
	syncLog *SyncLogService,
	locker lock.Locker,
	log logger.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		catalog:  catalog,
		market:   market,
		orders:   orders,
		settings: settings,
		syncLog:  syncLog,
		locker:   locker,
		log:      log,
	}
}

// Propagate 回传一次 Catalog 发货
func (s *FulfillmentService) Propagate(ctx context.Context, n platform.FulfillmentNotice) (PropagateOutcome, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if !cfg.FulfillmentSyncEnabled {
		return PropagateSkipped, nil
	}
	return s.propagate(ctx, cfg, n, false)
}

func (s *FulfillmentService) propagate(ctx context.Context, cfg RunConfig, n platform.FulfillmentNotice, dryRun bool) (PropagateOutcome, error) {
	m, err := s.orders.GetByCatalogOrderID(ctx, n.CatalogOrderID)
	if err != nil {
		return "", err
	}
	if m == nil {
		// 带去重标签但无映射：映射写入前崩溃留下的订单，从标签恢复
		marketplaceID := marketplaceIDFromTags(n.Tags, cfg.DedupTagPrefix)
		if marketplaceID == "" {
			return PropagateIgnored, nil
		}
		if dryRun {
			return PropagateFulfilled, nil
		}
		s.log.Warnf(ctx, "[FulfillmentService] Catalog 订单 %s 带标签但无映射，按标签恢复为 %s", n.CatalogOrderID, marketplaceID)
		if _, err := s.orders.Create(ctx, &model.OrderMapping{
			MarketplaceOrderID:    marketplaceID,
			CatalogOrderID:        n.CatalogOrderID,
			CatalogOrderReference: n.OrderName,
			Status:                model.OrderMappingSynced,
			DedupLayer:            model.DedupLayerTag,
		}); err != nil {
			return "", fmt.Errorf("恢复订单映射失败: %w", err)
		}
		if m, err = s.orders.GetByCatalogOrderID(ctx, n.CatalogOrderID); err != nil || m == nil {
			return "", fmt.Errorf("恢复订单映射失败: %v", err)
		}
	}

	release, err := s.locker.Acquire(ctx, OrderLockKey(m.MarketplaceOrderID))
	if err != nil {
		return "", err
	}
	defer release()

	// 拿锁后重读，防止并发回传
	m, err = s.orders.GetByMarketplaceID(ctx, m.MarketplaceOrderID)
	if err != nil {
		return "", err
	}
	if m == nil || m.Status != model.OrderMappingSynced {
		return PropagateSkipped, nil
	}

	tracking := strings.TrimSpace(n.TrackingNumber)
	if tracking == "" {
		s.log.Warnf(ctx, "[FulfillmentService] Catalog 订单 %s 无运单号，跳过", n.CatalogOrderID)
		return PropagateSkipped, nil
	}
	carrier := MapCarrier(n.TrackingCompany)
	if carrier == "" {
		s.log.Warnf(ctx, "[FulfillmentService] Catalog 订单 %s 物流商 %q 无法映射，跳过", n.CatalogOrderID, n.TrackingCompany)
		return PropagateSkipped, nil
	}
	if dryRun {
		return PropagateFulfilled, nil
	}

	order, err := s.market.GetOrder(ctx, m.MarketplaceOrderID)
	if err != nil {
		return "", fmt.Errorf("获取 Marketplace 订单 %s 失败: %w", m.MarketplaceOrderID, err)
	}
	lines := make([]platform.FulfillmentLine, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		lines = append(lines, platform.FulfillmentLine{LineItemID: li.LineItemID, Quantity: li.Quantity})
	}

	now := time.Now()
	_, err = s.market.CreateShippingFulfillment(ctx, m.MarketplaceOrderID, &platform.ShippingFulfillment{
		LineItems:      lines,
		Carrier:        carrier,
		TrackingNumber: tracking,
		ShippedAt:      now,
	})
	if err != nil {
		s.syncLog.Failure(ctx, model.DirectionCatalogToMarketplace, model.EntityFulfillment, m.MarketplaceOrderID, err)
		if platform.IsValidation(err) {
			// 被拒的回传不再自动重试
			if markErr := s.orders.MarkFailed(ctx, m.ID, err.Error()); markErr != nil {
				s.log.Errorf(ctx, "[FulfillmentService] 标记映射失败 %d: %v", m.ID, markErr)
			}
		}
		return "", err
	}

	if _, err := s.orders.MarkFulfilled(ctx, m.ID, tracking, now); err != nil {
		s.log.Errorf(ctx, "[FulfillmentService] 订单 %s 已回传但映射更新失败: %v", m.MarketplaceOrderID, err)
		return PropagateFulfilled, nil
	}
	s.syncLog.Success(ctx, model.DirectionCatalogToMarketplace, model.EntityFulfillment, m.MarketplaceOrderID,
		fmt.Sprintf("%s %s", carrier, tracking))
	s.log.Infof(ctx, "[FulfillmentService] 订单 %s 发货回传成功: %s %s", m.MarketplaceOrderID, carrier, tracking)
	return PropagateFulfilled, nil
}

// RunFulfillmentSync 轮询已导入未回传的订单，补回漏掉的发货通知
func (s *FulfillmentService) RunFulfillmentSync(ctx context.Context, dryRun bool) (*dto.FulfillmentSyncResult, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel, runID := startRun(ctx, cfg.RunTimeout)
	defer cancel()

	result := dto.NewFulfillmentSyncResult(runID, cfg.MaxErrors, dryRun)
	defer func() { result.FinishedAt = time.Now() }()
	if !cfg.FulfillmentSyncEnabled {
		result.Disabled = true
		return result, nil
	}

	// 游标翻页覆盖全部未回传映射，长期不发货的旧订单不会挤占新订单
	var afterID int64
poll:
	for {
		pending, err := s.orders.ListByStatus(ctx, model.OrderMappingSynced, afterID, fulfillmentPollPageSize)
		if err != nil {
			if afterID == 0 {
				return nil, fmt.Errorf("查询待回传订单失败: %w", err)
			}
			s.log.Errorf(ctx, "[FulfillmentService] 翻页失败 after_id=%d: %v", afterID, err)
			result.Errors.Add(fmt.Sprintf("page@%d", afterID), err)
			break
		}

		for i := range pending {
			if done, timedOut := stopped(ctx); done {
				result.TimedOut = timedOut
				break poll
			}
			afterID = pending[i].ID
			s.pollOne(ctx, cfg, result, &pending[i], dryRun)
		}
		if len(pending) < fulfillmentPollPageSize {
			break
		}
	}

	observeRun("fulfillment", result.StartedAt, result.TimedOut)
	s.log.Infof(ctx, "[FulfillmentService] 发货轮询完成: checked=%d fulfilled=%d skipped=%d failed=%d",
		result.Checked, result.Fulfilled, result.Skipped, result.Failed)
	return result, nil
}

// pollOne 检查单个映射对应的 Catalog 订单是否已发货
func (s *FulfillmentService) pollOne(ctx context.Context, cfg RunConfig, result *dto.FulfillmentSyncResult, m *model.OrderMapping, dryRun bool) {
	result.Checked++

	co, err := s.catalog.GetOrder(ctx, m.CatalogOrderID)
	if err != nil {
		result.Failed++
		result.Errors.Add(m.MarketplaceOrderID, err)
		metrics.ObserveItem("fulfillment", metrics.OutcomeFailed)
		return
	}
	f := co.LatestTrackedFulfillment()
	if f == nil {
		result.Skipped++
		return
	}

	outcome, err := s.propagate(ctx, cfg, platform.FulfillmentNotice{
		CatalogOrderID:  co.ID,
		OrderName:       co.Name,
		Tags:            co.Tags,
		TrackingNumber:  f.TrackingNumber,
		TrackingCompany: f.TrackingCompany,
	}, dryRun)
	switch {
	case err != nil:
		result.Failed++
		result.Errors.Add(m.MarketplaceOrderID, err)
		metrics.ObserveItem("fulfillment", metrics.OutcomeFailed)
		s.log.Errorf(ctx, "[FulfillmentService] 订单 %s 回传失败: %v", m.MarketplaceOrderID, err)
	case outcome == PropagateFulfilled:
		result.Fulfilled++
		metrics.ObserveItem("fulfillment", metrics.OutcomeSuccess)
	default:
		result.Skipped++
		metrics.ObserveItem("fulfillment", metrics.OutcomeSkipped)
	}
}

// ==================== 工具函数 ====================

// MapCarrier 将 Catalog 物流商名称映射为 Marketplace 物流商代码，未知返回空
func MapCarrier(company string) string {
	carriers := map[string]string{
		"usps":          "USPS",
		"ups":           "UPS",
		"fedex":         "FEDEX",
		"dhl":           "DHL",
		"dhl express":   "DHL",
		"dhl-express":   "DHL",
		"dhl ecommerce": "DHL_ECOMMERCE",
		"canada post":   "CANADA_POST",
		"royal mail":    "ROYAL_MAIL",
		"ontrac":        "ONTRAC",
		"lasership":     "LASERSHIP",
	}
	key := strings.ToLower(strings.TrimSpace(company))
	if mapped, ok := carriers[key]; ok {
		return mapped
	}
	return ""
}

// marketplaceIDFromTags 从去重标签解析 Marketplace 订单号
func marketplaceIDFromTags(tags []string, prefix string) string {
	if prefix == "" {
		return ""
	}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if len(t) > len(prefix) && strings.EqualFold(t[:len(prefix)], prefix) {
			return t[len(prefix):]
		}
	}
	return ""
}
