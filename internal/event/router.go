package event

import (
	"context"
	"fmt"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/service"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

// ListingHandler 刊登生命周期
type ListingHandler interface {
	IsMapped(ctx context.Context, productID string) (bool, error)
	Publish(ctx context.Context, productID string) (*dto.PublishResult, error)
	End(ctx context.Context, productID string, reason model.EndReason) (*dto.PublishResult, error)
}

// ProductSyncer 单商品对账
type ProductSyncer interface {
	SyncProduct(ctx context.Context, productID string) (*dto.ItemSyncResult, error)
}

// FulfillmentHandler 发货回传
type FulfillmentHandler interface {
	Propagate(ctx context.Context, n platform.FulfillmentNotice) (service.PropagateOutcome, error)
}

// OrderHandler 单订单导入
type OrderHandler interface {
	SyncOrder(ctx context.Context, orderID string) (*dto.OrderSyncResult, error)
}

// VariantResolver 库存项反查变体
type VariantResolver interface {
	GetVariantByInventoryItem(ctx context.Context, inventoryItemID string) (*platform.Variant, error)
}

// SettingsReader 运行配置
type SettingsReader interface {
	Snapshot(ctx context.Context) (service.RunConfig, error)
}

// Router 按事件类型路由到对应的对账函数，即 handleEvent
type Router struct {
	listings    ListingHandler
	inventory   ProductSyncer
	prices      ProductSyncer
	fulfillment FulfillmentHandler
	orders      OrderHandler
	variants    VariantResolver
	settings    SettingsReader
	log         logger.Logger
}

var _ Handler = (*Router)(nil)

// NewRouter 创建事件路由
func NewRouter(
	listings ListingHandler,
	inventory ProductSyncer,
	prices ProductSyncer,
	fulfillment FulfillmentHandler,
	orders OrderHandler,
	variants VariantResolver,
	settings SettingsReader,
	log logger.Logger,
) *Router {
	return &Router{
		listings:    listings,
		inventory:   inventory,
		prices:      prices,
		fulfillment: fulfillment,
		orders:      orders,
		variants:    variants,
		settings:    settings,
		log:         log,
	}
}

// Handle 处理单个事件
func (r *Router) Handle(ctx context.Context, e Event) error {
	switch ev := e.(type) {
	case ProductChanged:
		return r.productChanged(ctx, ev.ProductID)
	case ProductDeleted:
		res, err := r.listings.End(ctx, ev.ProductID, model.EndReasonDeleted)
		if err != nil {
			return err
		}
		r.log.Infof(ctx, "[EventRouter] 商品 %s 已删除，刊登状态 %s", ev.ProductID, res.Status)
		for _, it := range res.Items {
			if it.Error != "" {
				return fmt.Errorf("SKU %s 下架失败: %s", it.SKU, it.Error)
			}
		}
		return nil
	case InventoryChanged:
		v, err := r.variants.GetVariantByInventoryItem(ctx, ev.InventoryItemID)
		if platform.IsNotFound(err) {
			r.log.Debugf(ctx, "[EventRouter] 库存项 %s 无对应变体，忽略", ev.InventoryItemID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("反查库存项 %s 失败: %w", ev.InventoryItemID, err)
		}
		return checkItems(r.inventory.SyncProduct(ctx, v.ProductID))
	case OrderFulfilled:
		outcome, err := r.fulfillment.Propagate(ctx, ev.Notice)
		if err != nil {
			return err
		}
		r.log.Infof(ctx, "[EventRouter] Catalog 订单 %s 发货事件: %s", ev.Notice.CatalogOrderID, outcome)
		return nil
	case MarketplaceOrderCreated:
		res, err := r.orders.SyncOrder(ctx, ev.OrderID)
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			return fmt.Errorf("订单 %s 导入失败: %s", ev.OrderID, firstError(res.Errors))
		}
		return nil
	default:
		return fmt.Errorf("未知事件类型 %T", e)
	}
}

// productChanged 未刊登且开启自动刊登时先刊登，再对账库存与价格
func (r *Router) productChanged(ctx context.Context, productID string) error {
	mapped, err := r.listings.IsMapped(ctx, productID)
	if err != nil {
		return err
	}
	if !mapped {
		cfg, err := r.settings.Snapshot(ctx)
		if err != nil {
			return err
		}
		if !cfg.AutoPublish {
			r.log.Debugf(ctx, "[EventRouter] 商品 %s 未刊登，自动刊登未开启", productID)
			return nil
		}
		res, err := r.listings.Publish(ctx, productID)
		if err != nil {
			return err
		}
		r.log.Infof(ctx, "[EventRouter] 商品 %s 自动刊登: %s", productID, res.Status)
		return nil
	}

	if err := checkItems(r.inventory.SyncProduct(ctx, productID)); err != nil {
		return err
	}
	return checkItems(r.prices.SyncProduct(ctx, productID))
}

func checkItems(res *dto.ItemSyncResult, err error) error {
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d 项同步失败: %s", res.Failed, firstError(res.Errors))
	}
	return nil
}

func firstError(l dto.ErrorList) string {
	if len(l.Items) == 0 {
		return ""
	}
	return l.Items[0].ID + ": " + l.Items[0].Reason
}
