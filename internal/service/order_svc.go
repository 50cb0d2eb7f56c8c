package service

import (
	"context"
	"fmt"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/metrics"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/lock"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

const (
	// textScanPageSize 文本兜底扫描单页条数
	textScanPageSize = 250
	// textScanMaxPages 文本兜底扫描翻页上限
	textScanMaxPages = 20
	// textScanLookback 文本兜底扫描的起点早于 Marketplace 下单时间
	textScanLookback = 24 * time.Hour
)

// OrderLockKey 同一 Marketplace 订单的导入与发货回传共用
func OrderLockKey(marketplaceOrderID string) string {
	return "order:" + marketplaceOrderID
}

// orderOutcome 单个订单的处理结果
type orderOutcome int

const (
	outcomeImported orderOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// dedupHit 远端去重命中
type dedupHit struct {
	layer string
	order *platform.Order
}

// ==================== OrderService 订单同步 ====================

// OrderService Marketplace 订单导入 Catalog
// 每个 Marketplace 订单在 Catalog 中最多出现一次
type OrderService struct {
	catalog  platform.CatalogClient
	market   platform.MarketplaceClient
	orders   repository.OrderMappingRepository
	products repository.ProductMappingRepository
	settings *SettingsService
	syncLog  *SyncLogService
	locker   lock.Locker
	log      logger.Logger
}

// NewOrderService 创建订单同步服务
func NewOrderService(
	catalog platform.CatalogClient,
	market platform.MarketplaceClient,
	orders repository.OrderMappingRepository,
	products repository.ProductMappingRepository,
	settings *SettingsService,
	syncLog *SyncLogService,
	locker lock.Locker,
	log logger.Logger,
) *OrderService {
	return &OrderService{
		catalog:  catalog,
		market:   market,
		orders:   orders,
		products: products,
		settings: settings,
		syncLog:  syncLog,
		locker:   locker,
		log:      log,
	}
}

// ==================== 批量同步 ====================

// RunOrderSync 按时间窗口拉取 Marketplace 订单并导入
// 单个订单失败不影响其它订单；只有启动失败返回 error
func (s *OrderService) RunOrderSync(ctx context.Context, window dto.OrderWindow, dryRun bool) (*dto.OrderSyncResult, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel, runID := startRun(ctx, cfg.RunTimeout)
	defer cancel()

	result := dto.NewOrderSyncResult(runID, cfg.MaxErrors, dryRun)
	if !cfg.OrderSyncEnabled {
		result.Disabled = true
		result.FinishedAt = time.Now()
		s.log.Infof(ctx, "[OrderService] 订单同步已关闭，跳过")
		return result, nil
	}

	filter := platform.OrderFilter{Limit: cfg.OrderPageSize, CreatedTo: window.To}
	if !window.All {
		from := window.From
		if from == nil {
			t := time.Now().AddDate(0, 0, -cfg.OrderLookbackDays)
			from = &t
		}
		filter.CreatedFrom = from
	}

	s.log.Infof(ctx, "[OrderService] 开始订单同步 dry_run=%v from=%v", dryRun, filter.CreatedFrom)
	defer func() {
		result.FinishedAt = time.Now()
		observeRun("order", result.StartedAt, result.TimedOut)
	}()

	for {
		if done, timedOut := stopped(ctx); done {
			result.TimedOut = timedOut
			break
		}

		page, err := s.market.GetOrders(ctx, filter)
		if err != nil {
			if done, timedOut := stopped(ctx); done {
				result.TimedOut = timedOut
				break
			}
			if filter.Offset == 0 {
				return nil, fmt.Errorf("拉取 Marketplace 订单失败: %w", err)
			}
			// 中途翻页失败，保留已处理部分
			s.log.Errorf(ctx, "[OrderService] 翻页失败 offset=%d: %v", filter.Offset, err)
			result.Errors.Add(fmt.Sprintf("page@%d", filter.Offset), err)
			break
		}
		if len(page.Orders) == 0 {
			break
		}

		for i := range page.Orders {
			if done, timedOut := stopped(ctx); done {
				result.TimedOut = timedOut
				break
			}
			s.applyOutcome(ctx, result, &page.Orders[i], cfg, dryRun)
		}
		if result.TimedOut {
			break
		}

		filter.Offset += len(page.Orders)
		if filter.Offset >= page.Total || !page.HasNext {
			break
		}
	}

	s.log.Infof(ctx, "[OrderService] 订单同步完成: imported=%d skipped=%d failed=%d warnings=%d timed_out=%v",
		result.Imported, result.Skipped, result.Failed, result.Warnings.Len(), result.TimedOut)
	return result, nil
}

// SyncOrder 同步单个 Marketplace 订单（订单通知事件）
func (s *OrderService) SyncOrder(ctx context.Context, orderID string) (*dto.OrderSyncResult, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel, runID := startRun(ctx, cfg.RunTimeout)
	defer cancel()

	result := dto.NewOrderSyncResult(runID, cfg.MaxErrors, false)
	defer func() { result.FinishedAt = time.Now() }()
	if !cfg.OrderSyncEnabled {
		result.Disabled = true
		return result, nil
	}

	order, err := s.market.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("获取 Marketplace 订单 %s 失败: %w", orderID, err)
	}
	s.applyOutcome(ctx, result, order, cfg, false)
	return result, nil
}

func (s *OrderService) applyOutcome(ctx context.Context, result *dto.OrderSyncResult, o *platform.MarketOrder, cfg RunConfig, dryRun bool) {
	outcome, warning, err := s.syncOne(ctx, o, cfg, dryRun)
	switch outcome {
	case outcomeImported:
		result.Imported++
		metrics.ObserveItem("order", metrics.OutcomeSuccess)
	case outcomeSkipped:
		result.Skipped++
		metrics.ObserveItem("order", metrics.OutcomeSkipped)
	case outcomeFailed:
		result.Failed++
		result.Errors.Add(o.OrderID, err)
		metrics.ObserveItem("order", metrics.OutcomeFailed)
	}
	if warning != "" {
		result.Warnings.Add(o.OrderID, fmt.Errorf("%s", warning))
	}
}

// syncOne 处理单个订单
func (s *OrderService) syncOne(ctx context.Context, o *platform.MarketOrder, cfg RunConfig, dryRun bool) (orderOutcome, string, error) {
	release, err := s.locker.Acquire(ctx, OrderLockKey(o.OrderID))
	if err != nil {
		return s.fail(ctx, o.OrderID, err)
	}
	defer release()

	// 1. 本地映射
	existing, err := s.orders.GetByMarketplaceID(ctx, o.OrderID)
	if err != nil {
		return s.fail(ctx, o.OrderID, err)
	}
	if existing != nil {
		return outcomeSkipped, "", nil
	}

	// 2. 远端去重探测
	hit, err := s.findExisting(ctx, cfg, o)
	if err != nil {
		return s.fail(ctx, o.OrderID, fmt.Errorf("去重探测失败: %w", err))
	}
	if hit != nil {
		warning := ""
		if hit.layer == model.DedupLayerNoteText {
			warning = fmt.Sprintf("matched catalog order %s by note text only", hit.order.Name)
			s.log.Warnf(ctx, "[OrderService] 订单 %s 仅通过备注文本匹配到 Catalog 订单 %s，低置信度", o.OrderID, hit.order.ID)
			metrics.DedupLowConfidenceTotal.Inc()
		}
		if !dryRun {
			if _, err := s.orders.Create(ctx, &model.OrderMapping{
				MarketplaceOrderID:    o.OrderID,
				CatalogOrderID:        hit.order.ID,
				CatalogOrderReference: hit.order.Name,
				Status:                model.OrderMappingSynced,
				DedupLayer:            hit.layer,
				LowConfidence:         hit.layer == model.DedupLayerNoteText,
			}); err != nil {
				return s.fail(ctx, o.OrderID, fmt.Errorf("补写订单映射失败: %w", err))
			}
		}
		if !dryRun {
			s.syncLog.Success(ctx, model.DirectionMarketplaceToCatalog, model.EntityOrder, o.OrderID,
				fmt.Sprintf("deduplicated via %s as %s", hit.layer, hit.order.Name))
		}
		s.log.Infof(ctx, "[OrderService] 订单 %s 已存在于 Catalog (%s 命中 %s)，跳过", o.OrderID, hit.layer, hit.order.ID)
		return outcomeSkipped, warning, nil
	}

	// 3. 映射 + 校验
	variants, err := s.resolveVariants(ctx, o)
	if err != nil {
		return s.fail(ctx, o.OrderID, err)
	}
	input := MapMarketplaceOrder(o, MapOptions{Currency: cfg.Currency, DedupTag: cfg.DedupTag(o.OrderID), VariantBy: variants})
	if err := ValidateOrderInput(input); err != nil {
		return s.fail(ctx, o.OrderID, err)
	}
	if dryRun {
		return outcomeImported, "", nil
	}

	// 4. 先远端创建，再写映射
	ref, err := s.catalog.CreateOrder(ctx, input)
	if err != nil {
		return s.fail(ctx, o.OrderID, err)
	}
	if _, err := s.orders.Create(ctx, &model.OrderMapping{
		MarketplaceOrderID:    o.OrderID,
		CatalogOrderID:        ref.ID,
		CatalogOrderReference: ref.Name,
		Status:                model.OrderMappingSynced,
		DedupLayer:            model.DedupLayerCreated,
	}); err != nil {
		// 订单已创建，下次运行由标签探测补写映射
		s.log.Errorf(ctx, "[OrderService] 订单 %s 已创建为 %s，但映射写入失败: %v", o.OrderID, ref.ID, err)
		s.syncLog.Failure(ctx, model.DirectionMarketplaceToCatalog, model.EntityOrder, o.OrderID, fmt.Errorf("mapping write failed after create %s: %w", ref.ID, err))
		return outcomeImported, "created without local mapping", nil
	}

	s.syncLog.Success(ctx, model.DirectionMarketplaceToCatalog, model.EntityOrder, o.OrderID, "imported as "+ref.Name)
	s.log.Infof(ctx, "[OrderService] 订单 %s 导入成功 -> %s (%s)", o.OrderID, ref.ID, ref.Name)
	return outcomeImported, "", nil
}

func (s *OrderService) fail(ctx context.Context, orderID string, err error) (orderOutcome, string, error) {
	s.log.Errorf(ctx, "[OrderService] 订单 %s 处理失败: %v", orderID, err)
	s.syncLog.Failure(ctx, model.DirectionMarketplaceToCatalog, model.EntityOrder, orderID, err)
	return outcomeFailed, "", err
}

// findExisting 远端去重查找：标签 -> 来源标识 -> 备注文本
func (s *OrderService) findExisting(ctx context.Context, cfg RunConfig, o *platform.MarketOrder) (*dedupHit, error) {
	tag := cfg.DedupTag(o.OrderID)
	byTag, err := s.catalog.SearchOrders(ctx, platform.OrderQuery{Tag: tag, Limit: 5})
	if err != nil {
		return nil, err
	}
	for i := range byTag {
		if byTag[i].HasTag(tag) {
			return &dedupHit{layer: model.DedupLayerTag, order: &byTag[i]}, nil
		}
	}

	bySource, err := s.catalog.SearchOrders(ctx, platform.OrderQuery{SourceIdentifier: o.OrderID, Limit: 5})
	if err != nil {
		return nil, err
	}
	for i := range bySource {
		if bySource[i].SourceIdentifier == o.OrderID {
			return &dedupHit{layer: model.DedupLayerSourceIdentifier, order: &bySource[i]}, nil
		}
	}

	recent, err := s.catalog.SearchOrders(ctx, textScanQuery(cfg, o))
	if err != nil {
		return nil, err
	}
	for i := range recent {
		if recent[i].MentionsText(o.OrderID) {
			return &dedupHit{layer: model.DedupLayerNoteText, order: &recent[i]}, nil
		}
	}
	return nil, nil
}

// textScanQuery 文本兜底的时间窗口：下单前一天到下单后 OrderLookbackDays 天
func textScanQuery(cfg RunConfig, o *platform.MarketOrder) platform.OrderQuery {
	q := platform.OrderQuery{Limit: textScanPageSize, MaxPages: textScanMaxPages}
	if o.CreatedAt.IsZero() {
		q.CreatedFrom = time.Now().AddDate(0, 0, -cfg.OrderLookbackDays)
		return q
	}
	q.CreatedFrom = o.CreatedAt.Add(-textScanLookback)
	q.CreatedTo = o.CreatedAt.AddDate(0, 0, cfg.OrderLookbackDays)
	return q
}

// resolveVariants 通过商品映射把 SKU 解析为 Catalog 变体
func (s *OrderService) resolveVariants(ctx context.Context, o *platform.MarketOrder) (map[string]string, error) {
	out := make(map[string]string, len(o.LineItems))
	for _, li := range o.LineItems {
		if li.SKU == "" {
			continue
		}
		if _, ok := out[li.SKU]; ok {
			continue
		}
		m, err := s.products.FindLiveBySKU(ctx, li.SKU)
		if err != nil {
			return nil, fmt.Errorf("查询 SKU %s 映射失败: %w", li.SKU, err)
		}
		if m != nil {
			out[li.SKU] = m.CatalogVariantID
		}
	}
	return out, nil
}

// ==================== 查询 ====================

// ListMappings 订单映射列表
func (s *OrderService) ListMappings(ctx context.Context, filter repository.OrderMappingFilter) ([]model.OrderMapping, int64, error) {
	return s.orders.List(ctx, filter)
}
