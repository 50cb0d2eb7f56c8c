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

// PriceService Catalog 价格推送到 Marketplace 报价
type PriceService struct {
	catalog  platform.CatalogClient
	market   platform.MarketplaceClient
	mappings repository.ProductMappingRepository
	settings *SettingsService
	syncLog  *SyncLogService
	locker   lock.Locker
	log      logger.Logger
}

// NewPriceService 创建价格同步服务
func NewPriceService(
	catalog platform.CatalogClient,
	market platform.MarketplaceClient,
	mappings repository.ProductMappingRepository,
	settings *SettingsService,
	syncLog *SyncLogService,
	locker lock.Locker,
	log logger.Logger,
) *PriceService {
	return &PriceService{
		catalog:  catalog,
		market:   market,
		mappings: mappings,
		settings: settings,
		syncLog:  syncLog,
		locker:   locker,
		log:      log,
	}
}

// RunPriceSync 全量价格对账
func (s *PriceService) RunPriceSync(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel, runID := startRun(ctx, cfg.RunTimeout)
	defer cancel()

	result := dto.NewItemSyncResult(runID, cfg.MaxErrors, dryRun)
	if !cfg.PriceSyncEnabled {
		result.Disabled = true
		result.FinishedAt = time.Now()
		s.log.Infof(ctx, "[PriceService] 价格同步已关闭，跳过")
		return result, nil
	}

	list, err := s.mappings.ListSyncable(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("查询商品映射失败: %w", err)
	}
	s.log.Infof(ctx, "[PriceService] 开始价格同步: %d 条映射 markup=%s%% dry_run=%v", len(list), cfg.PriceMarkupPercent, dryRun)

	s.run(ctx, cfg, list, result, dryRun)

	result.FinishedAt = time.Now()
	observeRun("price", result.StartedAt, result.TimedOut)
	s.log.Infof(ctx, "[PriceService] 价格同步完成: checked=%d updated=%d unchanged=%d failed=%d timed_out=%v",
		result.Checked, result.Updated, result.Unchanged, result.Failed, result.TimedOut)
	return result, nil
}

// SyncProduct 单个商品的价格对账（事件路径）
func (s *PriceService) SyncProduct(ctx context.Context, productID string) (*dto.ItemSyncResult, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel, runID := startRun(ctx, cfg.RunTimeout)
	defer cancel()

	result := dto.NewItemSyncResult(runID, cfg.MaxErrors, false)
	if !cfg.PriceSyncEnabled {
		result.Disabled = true
		result.FinishedAt = time.Now()
		return result, nil
	}

	list, err := s.mappings.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("查询商品映射失败: %w", err)
	}
	withOffer := list[:0]
	for _, m := range list {
		if m.OfferID != "" && (m.IsLive() || m.Restockable()) {
			withOffer = append(withOffer, m)
		}
	}
	s.run(ctx, cfg, withOffer, result, false)
	result.FinishedAt = time.Now()
	return result, nil
}

func (s *PriceService) run(ctx context.Context, cfg RunConfig, list []model.ProductMapping, result *dto.ItemSyncResult, dryRun bool) {
	pacer := NewPacer(cfg.WriteDelay)
	ids, groups := groupByProduct(list)

	for _, chunkIDs := range chunk(ids, cfg.CatalogBatchSize) {
		if done, timedOut := stopped(ctx); done {
			result.TimedOut = timedOut
			return
		}
		batch := loadBatch(ctx, s.catalog, chunkIDs, groups)
		if batch.err != nil {
			s.log.Errorf(ctx, "[PriceService] 批量读取 %d 个商品失败: %v", len(chunkIDs), batch.err)
			for _, m := range batch.mappings {
				result.Checked++
				result.Failed++
				result.Errors.Add(m.MarketplaceItemSKU, batch.err)
				metrics.ObserveItem("price", metrics.OutcomeFailed)
			}
			continue
		}

		for i := range batch.mappings {
			if done, timedOut := stopped(ctx); done {
				result.TimedOut = timedOut
				return
			}
			m := &batch.mappings[i]
			result.Checked++
			if err := s.syncItem(ctx, cfg, pacer, m, batch.products[m.CatalogProductID], result, dryRun); err != nil {
				result.Failed++
				result.Errors.Add(m.MarketplaceItemSKU, err)
				metrics.ObserveItem("price", metrics.OutcomeFailed)
				s.log.Errorf(ctx, "[PriceService] SKU %s 价格同步失败: %v", m.MarketplaceItemSKU, err)
				s.syncLog.Failure(ctx, model.DirectionCatalogToMarketplace, model.EntityPrice, m.MarketplaceItemSKU, err)
			}
		}
	}
}

func (s *PriceService) syncItem(ctx context.Context, cfg RunConfig, pacer *Pacer, m *model.ProductMapping, p *platform.Product, result *dto.ItemSyncResult, dryRun bool) error {
	if p == nil {
		return platform.NotFound("catalog.product", "product "+m.CatalogProductID+" not found")
	}
	v := variantFor(p, m)
	if v == nil {
		return platform.NotFound("catalog.variant", "sku "+m.MarketplaceItemSKU+" no longer on product "+p.ID)
	}

	release, err := s.locker.Acquire(ctx, ListingLockKey(m.CatalogProductID, m.MarketplaceItemSKU))
	if err != nil {
		return err
	}
	defer release()

	target := cfg.TargetPrice(v.Price)
	offer, err := s.market.GetOffer(ctx, m.OfferID)
	if platform.IsNotFound(err) {
		return platform.Consistency("price.sync", "offer "+m.OfferID+" missing for mapped sku "+m.MarketplaceItemSKU)
	}
	if err != nil {
		return err
	}

	if offer.Price.Equal(target) {
		result.Unchanged++
		metrics.ObserveItem("price", metrics.OutcomeUnchanged)
		return nil
	}
	if dryRun {
		result.Updated++
		return nil
	}

	if err := pacer.Wait(ctx); err != nil {
		return err
	}
	currency := offer.Currency
	if currency == "" {
		currency = cfg.Currency
	}
	if err := s.market.UpdateOfferPrice(ctx, m.OfferID, target, currency); err != nil {
		return err
	}
	if err := s.mappings.UpdateFields(ctx, m.ID, map[string]interface{}{
		"last_pushed_price": target,
		"last_synced_at":    time.Now(),
	}); err != nil {
		s.log.Warnf(ctx, "[PriceService] 记录推送价格失败 %s: %v", m.MarketplaceItemSKU, err)
	}

	result.Updated++
	metrics.ObserveItem("price", metrics.OutcomeSuccess)
	s.syncLog.Success(ctx, model.DirectionCatalogToMarketplace, model.EntityPrice, m.MarketplaceItemSKU,
		fmt.Sprintf("price %s -> %s %s", offer.Price.StringFixed(2), target.StringFixed(2), currency))
	return nil
}
