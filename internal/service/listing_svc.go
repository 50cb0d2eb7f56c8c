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

const publishSkipped = "skipped"

// ListingLockKey 同一 SKU 的刊登、下架、库存推送共用这把锁
func ListingLockKey(productID, sku string) string {
	return "listing:" + productID + ":" + sku
}

// ==================== ListingService 刊登服务 ====================

// ListingService Catalog 商品到 Marketplace 刊登的生命周期
// inventory_only -> draft -> active -> ended，任一步失败进入 error
type ListingService struct {
	catalog  platform.CatalogClient
	market   platform.MarketplaceClient
	mappings repository.ProductMappingRepository
	settings *SettingsService
	syncLog  *SyncLogService
	locker   lock.Locker
	log      logger.Logger
}

// NewListingService 创建刊登服务
func NewListingService(
	catalog platform.CatalogClient,
	market platform.MarketplaceClient,
	mappings repository.ProductMappingRepository,
	settings *SettingsService,
	syncLog *SyncLogService,
	locker lock.Locker,
	log logger.Logger,
) *ListingService {
	return &ListingService{
		catalog:  catalog,
		market:   market,
		mappings: mappings,
		settings: settings,
		syncLog:  syncLog,
		locker:   locker,
		log:      log,
	}
}

// ==================== 刊登 ====================

// Publish 刊登商品的全部 SKU 变体
// 重复调用幂等：已在售的 SKU 不会重复创建报价或刊登
func (s *ListingService) Publish(ctx context.Context, productID string) (*dto.PublishResult, error) {
	cfg, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel, _ := startRun(ctx, cfg.RunTimeout)
	defer cancel()

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("获取商品 %s 失败: %w", productID, err)
	}
	return s.publishProduct(ctx, cfg, product), nil
}

// PublishLoaded 使用已获取的商品数据刊登（事件路径）
func (s *ListingService) PublishLoaded(ctx context.Context, cfg RunConfig, product *platform.Product) *dto.PublishResult {
	return s.publishProduct(ctx, cfg, product)
}

func (s *ListingService) publishProduct(ctx context.Context, cfg RunConfig, product *platform.Product) *dto.PublishResult {
	result := &dto.PublishResult{ProductID: product.ID, Items: []dto.PublishItem{}}
	for i := range product.Variants {
		item := s.publishVariant(ctx, cfg, product, &product.Variants[i])
		result.Items = append(result.Items, item)
	}
	result.Status = aggregateStatus(result.Items)
	s.log.Infof(ctx, "[ListingService] 商品 %s 刊登完成: status=%s items=%d", product.ID, result.Status, len(result.Items))
	return result
}

func (s *ListingService) publishVariant(ctx context.Context, cfg RunConfig, product *platform.Product, v *platform.Variant) dto.PublishItem {
	item := dto.PublishItem{SKU: v.SKU, VariantID: v.ID}

	sku := strings.TrimSpace(v.SKU)
	if sku == "" {
		err := platform.Validation("listing.publish", "missing SKU")
		s.log.Warnf(ctx, "[ListingService] 商品 %s 变体 %s 缺少 SKU，跳过", product.ID, v.ID)
		s.syncLog.Failure(ctx, model.DirectionCatalogToMarketplace, model.EntityProduct, product.ID+"/"+v.ID, err)
		metrics.ObserveItem("listing", metrics.OutcomeSkipped)
		item.Status = publishSkipped
		item.Error = err.Error()
		return item
	}

	release, err := s.locker.Acquire(ctx, ListingLockKey(product.ID, sku))
	if err != nil {
		return s.failItem(ctx, item, product.ID, nil, err)
	}
	defer release()

	m, err := s.mappings.FindCurrent(ctx, product.ID, sku)
	if err != nil {
		return s.failItem(ctx, item, product.ID, nil, err)
	}

	if m != nil {
		item.OfferID, item.ListingID = m.OfferID, m.ListingID
		switch {
		case m.LifecycleStatus == model.LifecycleActive:
			item.Status = string(m.LifecycleStatus)
			metrics.ObserveItem("listing", metrics.OutcomeUnchanged)
			return item
		case m.Restockable():
			quantity, qerr := s.catalogQuantity(ctx, cfg, v)
			if qerr != nil {
				return s.failItem(ctx, item, product.ID, nil, qerr)
			}
			if quantity <= 0 {
				item.Status = string(m.LifecycleStatus)
				return item
			}
			if err := s.market.UpdateQuantity(ctx, sku, quantity); err != nil {
				return s.failItem(ctx, item, product.ID, nil, err)
			}
			if err := s.Relist(ctx, m); err != nil {
				return s.failItem(ctx, item, product.ID, nil, err)
			}
			item.Status, item.ListingID = string(m.LifecycleStatus), m.ListingID
			return item
		case m.LifecycleStatus == model.LifecycleEnded:
			// 手动下架或商品已删除的不自动重新刊登
			item.Status = string(m.LifecycleStatus)
			return item
		}
	}

	quantity, err := s.catalogQuantity(ctx, cfg, v)
	if err != nil {
		return s.failItem(ctx, item, product.ID, m, err)
	}

	// 1. 库存记录
	inv := buildInventoryItem(cfg, product, v, quantity)
	if err := s.market.CreateOrReplaceInventoryItem(ctx, inv); err != nil {
		return s.failItem(ctx, item, product.ID, m, err)
	}

	if m == nil {
		m, _, err = s.mappings.CreateIfAbsent(ctx, &model.ProductMapping{
			CatalogProductID:   product.ID,
			CatalogVariantID:   v.ID,
			MarketplaceItemSKU: sku,
			LifecycleStatus:    model.LifecycleInventoryOnly,
			LastPushedQuantity: &quantity,
		})
		if err != nil {
			return s.failItem(ctx, item, product.ID, nil, err)
		}
	} else if m.LifecycleStatus == model.LifecycleError {
		back := model.LifecycleInventoryOnly
		if m.OfferID != "" {
			back = model.LifecycleDraft
		}
		if err := s.mappings.Transition(ctx, m, back, map[string]interface{}{"last_pushed_quantity": quantity}); err != nil {
			return s.failItem(ctx, item, product.ID, m, err)
		}
	}
	item.Status = string(m.LifecycleStatus)

	if !cfg.Policies.Complete() {
		s.log.Warnf(ctx, "[ListingService] 策略不完整，SKU %s 停留在 inventory_only", sku)
		s.syncLog.Success(ctx, model.DirectionCatalogToMarketplace, model.EntityProduct, sku, "inventory item created; policies incomplete")
		metrics.ObserveItem("listing", metrics.OutcomeSkipped)
		return item
	}

	// 2. 报价
	price := cfg.TargetPrice(v.Price)
	if m.LifecycleStatus == model.LifecycleInventoryOnly || m.OfferID == "" {
		offerID, err := s.market.UpsertOffer(ctx, &platform.Offer{
			SKU:      sku,
			Price:    price,
			Currency: cfg.Currency,
			Quantity: quantity,
			Policies: cfg.Policies,
		})
		if err != nil {
			return s.failItem(ctx, item, product.ID, m, err)
		}
		if err := s.mappings.Transition(ctx, m, model.LifecycleDraft, map[string]interface{}{"offer_id": offerID}); err != nil {
			return s.failItem(ctx, item, product.ID, m, err)
		}
	}
	item.OfferID, item.Status = m.OfferID, string(m.LifecycleStatus)

	// 零库存不发布，按缺货下架处理，补货后由库存对账重新上架
	if quantity == 0 {
		if err := s.mappings.Transition(ctx, m, model.LifecycleEnded, map[string]interface{}{
			"end_reason":        model.EndReasonOutOfStock,
			"last_pushed_price": price,
		}); err != nil {
			return s.failItem(ctx, item, product.ID, m, err)
		}
		item.Status = string(m.LifecycleStatus)
		s.syncLog.Success(ctx, model.DirectionCatalogToMarketplace, model.EntityProduct, sku, "offer created; not published at zero stock")
		s.log.Infof(ctx, "[ListingService] SKU %s 库存为 0，报价保留未发布", sku)
		metrics.ObserveItem("listing", metrics.OutcomeSkipped)
		return item
	}

	// 3. 发布
	listingID, err := s.market.PublishOffer(ctx, m.OfferID)
	if err != nil {
		return s.failItem(ctx, item, product.ID, m, err)
	}
	now := time.Now()
	if err := s.mappings.Transition(ctx, m, model.LifecycleActive, map[string]interface{}{
		"listing_id":        listingID,
		"last_pushed_price": price,
		"last_synced_at":    now,
	}); err != nil {
		return s.failItem(ctx, item, product.ID, m, err)
	}

	item.Status, item.ListingID = string(m.LifecycleStatus), m.ListingID
	s.syncLog.Success(ctx, model.DirectionCatalogToMarketplace, model.EntityProduct, sku, "published listing "+listingID)
	metrics.ObserveItem("listing", metrics.OutcomeSuccess)
	return item
}

// failItem 标记映射为 error 并记录失败
func (s *ListingService) failItem(ctx context.Context, item dto.PublishItem, productID string, m *model.ProductMapping, cause error) dto.PublishItem {
	s.log.Errorf(ctx, "[ListingService] 商品 %s SKU %s 刊登失败: %v", productID, item.SKU, cause)
	s.syncLog.Failure(ctx, model.DirectionCatalogToMarketplace, model.EntityProduct, item.SKU, cause)
	metrics.ObserveItem("listing", metrics.OutcomeFailed)

	if m != nil && m.LifecycleStatus != model.LifecycleEnded {
		if err := s.mappings.Transition(ctx, m, model.LifecycleError, map[string]interface{}{"last_error": cause.Error()}); err != nil {
			s.log.Errorf(ctx, "[ListingService] 映射 %d 标记 error 失败: %v", m.ID, err)
		}
	}
	item.Status = string(model.LifecycleError)
	item.Error = cause.Error()
	return item
}

// ==================== 下架 ====================

// End 下架商品的全部在售映射，reason 为 delisted 或 deleted
func (s *ListingService) End(ctx context.Context, productID string, reason model.EndReason) (*dto.PublishResult, error) {
	if reason != model.EndReasonDelisted && reason != model.EndReasonDeleted {
		return nil, platform.Validation("listing.end", "invalid end reason "+string(reason))
	}
	mappings, err := s.mappings.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("查询商品映射失败: %w", err)
	}

	result := &dto.PublishResult{ProductID: productID, Items: []dto.PublishItem{}}
	for i := range mappings {
		m := &mappings[i]
		if m.LifecycleStatus == model.LifecycleEnded && m.EndReason != model.EndReasonOutOfStock {
			continue
		}
		item := dto.PublishItem{SKU: m.MarketplaceItemSKU, VariantID: m.CatalogVariantID, OfferID: m.OfferID}
		if err := s.endOne(ctx, m, reason); err != nil {
			s.log.Errorf(ctx, "[ListingService] SKU %s 下架失败: %v", m.MarketplaceItemSKU, err)
			s.syncLog.Failure(ctx, model.DirectionCatalogToMarketplace, model.EntityProduct, m.MarketplaceItemSKU, err)
			item.Status, item.Error = string(model.LifecycleError), err.Error()
		} else {
			s.syncLog.Success(ctx, model.DirectionCatalogToMarketplace, model.EntityProduct, m.MarketplaceItemSKU, "ended: "+string(reason))
			item.Status = string(model.LifecycleEnded)
		}
		result.Items = append(result.Items, item)
	}
	result.Status = aggregateStatus(result.Items)
	if len(result.Items) == 0 {
		result.Status = string(model.LifecycleEnded)
	}
	return result, nil
}

func (s *ListingService) endOne(ctx context.Context, m *model.ProductMapping, reason model.EndReason) error {
	release, err := s.locker.Acquire(ctx, ListingLockKey(m.CatalogProductID, m.MarketplaceItemSKU))
	if err != nil {
		return err
	}
	defer release()

	if err := s.withdraw(ctx, m); err != nil {
		return err
	}
	return s.mappings.Transition(ctx, m, model.LifecycleEnded, map[string]interface{}{"end_reason": reason})
}

// EndForStock 库存归零时下架在售映射
// 调用方需持有 ListingLockKey 锁，返回是否发生了下架
func (s *ListingService) EndForStock(ctx context.Context, m *model.ProductMapping) (bool, error) {
	if m.LifecycleStatus != model.LifecycleActive {
		return false, nil
	}
	if err := s.withdraw(ctx, m); err != nil {
		return false, err
	}
	if err := s.mappings.Transition(ctx, m, model.LifecycleEnded, map[string]interface{}{"end_reason": model.EndReasonOutOfStock}); err != nil {
		return false, err
	}
	s.log.Infof(ctx, "[ListingService] SKU %s 缺货下架", m.MarketplaceItemSKU)
	return true, nil
}

// Relist 补货后重新发布缺货下架的映射
// 调用方需持有 ListingLockKey 锁
func (s *ListingService) Relist(ctx context.Context, m *model.ProductMapping) error {
	if !m.Restockable() {
		return platform.Consistency("listing.relist", fmt.Sprintf("mapping %d is %s/%s", m.ID, m.LifecycleStatus, m.EndReason))
	}
	if m.OfferID == "" {
		return platform.Consistency("listing.relist", fmt.Sprintf("mapping %d has no offer", m.ID))
	}
	listingID, err := s.market.PublishOffer(ctx, m.OfferID)
	if err != nil {
		return err
	}
	if err := s.mappings.Transition(ctx, m, model.LifecycleActive, map[string]interface{}{
		"listing_id":     listingID,
		"last_synced_at": time.Now(),
	}); err != nil {
		return err
	}
	s.log.Infof(ctx, "[ListingService] SKU %s 补货重新上架 listing=%s", m.MarketplaceItemSKU, listingID)
	s.syncLog.Success(ctx, model.DirectionCatalogToMarketplace, model.EntityProduct, m.MarketplaceItemSKU, "relisted "+listingID)
	return nil
}

// withdraw 撤下已发布的报价，报价不存在视为已撤下
func (s *ListingService) withdraw(ctx context.Context, m *model.ProductMapping) error {
	if m.OfferID == "" || m.LifecycleStatus != model.LifecycleActive {
		return nil
	}
	err := s.market.WithdrawOffer(ctx, m.OfferID)
	if err != nil && !platform.IsNotFound(err) {
		return err
	}
	return nil
}

// ==================== 工具函数 ====================

// catalogQuantity Catalog 可售数量，配置了默认库存地点时按地点取
func (s *ListingService) catalogQuantity(ctx context.Context, cfg RunConfig, v *platform.Variant) (int, error) {
	return catalogQuantity(ctx, s.catalog, cfg, v)
}

func catalogQuantity(ctx context.Context, catalog platform.CatalogClient, cfg RunConfig, v *platform.Variant) (int, error) {
	if cfg.DefaultLocationID == "" || v.InventoryItemID == "" {
		return clampQuantity(v.InventoryQuantity), nil
	}
	level, err := catalog.GetInventoryLevel(ctx, v.InventoryItemID, cfg.DefaultLocationID)
	if platform.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return clampQuantity(level.Available), nil
}

// clampQuantity 超卖导致的负库存按 0 处理
func clampQuantity(q int) int {
	if q < 0 {
		return 0
	}
	return q
}

func buildInventoryItem(cfg RunConfig, p *platform.Product, v *platform.Variant, quantity int) *platform.InventoryItem {
	title := p.Title
	if v.Title != "" && !strings.EqualFold(v.Title, "Default Title") {
		title = p.Title + " - " + v.Title
	}
	aspects := map[string][]string{}
	if p.Vendor != "" {
		aspects["Brand"] = []string{p.Vendor}
	}
	if p.ProductType != "" {
		aspects["Type"] = []string{p.ProductType}
	}
	return &platform.InventoryItem{
		SKU:         strings.TrimSpace(v.SKU),
		Title:       truncate(title, 80),
		Description: p.BodyHTML,
		ImageURLs:   p.Images,
		Condition:   cfg.Condition,
		Quantity:    quantity,
		Aspects:     aspects,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// aggregateStatus 全部一致时取该状态，否则为 partial
func aggregateStatus(items []dto.PublishItem) string {
	if len(items) == 0 {
		return publishSkipped
	}
	first := items[0].Status
	for _, it := range items[1:] {
		if it.Status != first {
			return "partial"
		}
	}
	return first
}

// ==================== 查询 ====================

// ListMappings 商品映射列表
func (s *ListingService) ListMappings(ctx context.Context, filter repository.ProductMappingFilter) ([]model.ProductMapping, int64, error) {
	return s.mappings.List(ctx, filter)
}

// IsMapped 商品是否已有任意映射
func (s *ListingService) IsMapped(ctx context.Context, productID string) (bool, error) {
	list, err := s.mappings.ListByProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return len(list) > 0, nil
}
