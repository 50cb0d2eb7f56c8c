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

// ==================== 公共：按商品批量读取 ====================

// productBatch 一批商品映射及其 Catalog 数据
type productBatch struct {
	mappings []model.ProductMapping
	products map[string]*platform.Product
	err      error
}

// groupByProduct 按商品 ID 分组，保持首次出现的顺序
func groupByProduct(list []model.ProductMapping) ([]string, map[string][]model.ProductMapping) {
	var ids []string
	groups := make(map[string][]model.ProductMapping)
	for _, m := range list {
		if _, ok := groups[m.CatalogProductID]; !ok {
			ids = append(ids, m.CatalogProductID)
		}
		groups[m.CatalogProductID] = append(groups[m.CatalogProductID], m)
	}
	return ids, groups
}

// loadBatch 批量读取一块 Catalog 商品，失败只影响该块
func loadBatch(ctx context.Context, catalog platform.CatalogClient, ids []string, groups map[string][]model.ProductMapping) productBatch {
	b := productBatch{products: make(map[string]*platform.Product, len(ids))}
	for _, id := range ids {
		b.mappings = append(b.mappings, groups[id]...)
	}
	products, err := catalog.GetProducts(ctx, ids)
	if err != nil {
		b.err = err
		return b
	}
	for i := range products {
		b.products[products[i].ID] = &products[i]
	}
	return b
}

// variantFor 映射对应的 Catalog 变体，优先按变体 ID
func variantFor(p *platform.Product, m *model.ProductMapping) *platform.Variant {
	if v := p.VariantByID(m.CatalogVariantID); v != nil {
		return v
	}
	return p.VariantBySKU(m.MarketplaceItemSKU)
}

// ==================== InventoryService 库存同步 ====================

// InventoryService Catalog 库存推送到 Marketplace
// 只在数量不一致时写入；归零下架，补货重新上架
type InventoryService struct {
	catalog  platform.CatalogClient
	market   platform.MarketplaceClient
	mappings repository.ProductMappingRepository
	listings *ListingService
	settings *SettingsService
	syncLog  *SyncLogService
	locker   lock.Locker
	log      logger.Logger
}

// NewInventoryService 创建库存同步服务
func NewInventoryService(
	catalog platform.CatalogClient,
	market platform.MarketplaceClient,
	mappings repository.ProductMappingRepository,
	listings *ListingService,
	settings *SettingsService,
	syncLog *SyncLogService,
	locker lock.Locker,
	log logger.Logger,
) *InventoryService {
	return &InventoryService{
		catalog:  catalog,
		market:   market,
		mappings: mappings,
		listings: listings,
		settings: settings,
		syncLog:  syncLog,
		locker:   locker,
		log:      log,
	}
}

// RunInventorySync 全量库存对账
func (s *InventoryService) RunInventorySync(ctx context.Context, dryRun bool) (*dto.ItemSyncResult, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel, runID := startRun(ctx, cfg.RunTimeout)
	defer cancel()

	result := dto.NewItemSyncResult(runID, cfg.MaxErrors, dryRun)
	if !cfg.InventorySyncEnabled {
		result.Disabled = true
		result.FinishedAt = time.Now()
		s.log.Infof(ctx, "[InventoryService] 库存同步已关闭，跳过")
		return result, nil
	}

	list, err := s.mappings.ListSyncable(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("查询商品映射失败: %w", err)
	}
	s.log.Infof(ctx, "[InventoryService] 开始库存同步: %d 条映射 dry_run=%v", len(list), dryRun)

	s.run(ctx, cfg, list, result, dryRun)

	result.FinishedAt = time.Now()
	observeRun("inventory", result.StartedAt, result.TimedOut)
	s.log.Infof(ctx, "[InventoryService] 库存同步完成: checked=%d updated=%d ended=%d relisted=%d failed=%d timed_out=%v",
		result.Checked, result.Updated, result.Ended, result.Relisted, result.Failed, result.TimedOut)
	return result, nil
}

// SyncProduct 单个商品的库存对账（事件路径）
func (s *InventoryService) SyncProduct(ctx context.Context, productID string) (*dto.ItemSyncResult, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel, runID := startRun(ctx, cfg.RunTimeout)
	defer cancel()

	result := dto.NewItemSyncResult(runID, cfg.MaxErrors, false)
	if !cfg.InventorySyncEnabled {
		result.Disabled = true
		result.FinishedAt = time.Now()
		return result, nil
	}

	list, err := s.mappings.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("查询商品映射失败: %w", err)
	}
	syncable := list[:0]
	for _, m := range list {
		if m.IsLive() || m.Restockable() {
			syncable = append(syncable, m)
		}
	}
	s.run(ctx, cfg, syncable, result, false)
	result.FinishedAt = time.Now()
	return result, nil
}

func (s *InventoryService) run(ctx context.Context, cfg RunConfig, list []model.ProductMapping, result *dto.ItemSyncResult, dryRun bool) {
	pacer := NewPacer(cfg.WriteDelay)
	ids, groups := groupByProduct(list)

	for _, chunkIDs := range chunk(ids, cfg.CatalogBatchSize) {
		if done, timedOut := stopped(ctx); done {
			result.TimedOut = timedOut
			return
		}
		batch := loadBatch(ctx, s.catalog, chunkIDs, groups)
		if batch.err != nil {
			s.log.Errorf(ctx, "[InventoryService] 批量读取 %d 个商品失败: %v", len(chunkIDs), batch.err)
			for _, m := range batch.mappings {
				result.Checked++
				result.Failed++
				result.Errors.Add(m.MarketplaceItemSKU, batch.err)
				metrics.ObserveItem("inventory", metrics.OutcomeFailed)
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
				metrics.ObserveItem("inventory", metrics.OutcomeFailed)
				s.log.Errorf(ctx, "[InventoryService] SKU %s 库存同步失败: %v", m.MarketplaceItemSKU, err)
				s.syncLog.Failure(ctx, model.DirectionCatalogToMarketplace, model.EntityInventory, m.MarketplaceItemSKU, err)
			}
		}
	}
}

func (s *InventoryService) syncItem(ctx context.Context, cfg RunConfig, pacer *Pacer, m *model.ProductMapping, p *platform.Product, result *dto.ItemSyncResult, dryRun bool) error {
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

	want, err := catalogQuantity(ctx, s.catalog, cfg, v)
	if err != nil {
		return err
	}
	item, err := s.market.GetInventoryItem(ctx, m.MarketplaceItemSKU)
	if platform.IsNotFound(err) {
		return platform.Consistency("inventory.sync", "marketplace inventory item "+m.MarketplaceItemSKU+" missing for mapped sku")
	}
	if err != nil {
		return err
	}

	changed := item.Quantity != want
	if changed {
		if dryRun {
			result.Updated++
			return nil
		}
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		if err := s.market.UpdateQuantity(ctx, m.MarketplaceItemSKU, want); err != nil {
			return err
		}
		if err := s.mappings.UpdateFields(ctx, m.ID, map[string]interface{}{
			"last_pushed_quantity": want,
			"last_synced_at":       time.Now(),
		}); err != nil {
			s.log.Warnf(ctx, "[InventoryService] 记录推送数量失败 %s: %v", m.MarketplaceItemSKU, err)
		}
		result.Updated++
		metrics.ObserveItem("inventory", metrics.OutcomeSuccess)
		s.syncLog.Success(ctx, model.DirectionCatalogToMarketplace, model.EntityInventory, m.MarketplaceItemSKU,
			fmt.Sprintf("quantity %d -> %d", item.Quantity, want))
	}

	// 归零下架 / 补货上架
	switch {
	case want == 0 && m.LifecycleStatus == model.LifecycleActive:
		if dryRun {
			result.Ended++
			return nil
		}
		ended, err := s.listings.EndForStock(ctx, m)
		if err != nil {
			return err
		}
		if ended {
			result.Ended++
		}
	case want > 0 && m.Restockable():
		if dryRun {
			result.Relisted++
			return nil
		}
		if err := s.listings.Relist(ctx, m); err != nil {
			return err
		}
		result.Relisted++
	default:
		if !changed {
			result.Unchanged++
			metrics.ObserveItem("inventory", metrics.OutcomeUnchanged)
		}
	}
	return nil
}
