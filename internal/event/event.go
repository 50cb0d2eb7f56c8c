package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

// Catalog webhook topic
const (
	TopicProductCreate   = "products/create"
	TopicProductUpdate   = "products/update"
	TopicProductDelete   = "products/delete"
	TopicInventoryUpdate = "inventory_levels/update"
	TopicOrderFulfilled  = "orders/fulfilled"
	TopicFulfillment     = "fulfillments/create"
	TopicFulfillmentEdit = "fulfillments/update"
)

// Marketplace notification topic
const (
	TopicMarketOrderCreated = "ORDER_CREATED"
	TopicMarketItemSold     = "ITEM_SOLD"
)

// ErrUnsupportedTopic 不处理的 topic，确认接收但不入队
var ErrUnsupportedTopic = errors.New("unsupported event topic")

// Event 已校验并解析的推送事件
type Event interface {
	// Key 同一 key 的事件按到达顺序处理
	Key() string
	Kind() string
	isEvent()
}

// ProductChanged 商品新建或更新
type ProductChanged struct {
	ProductID string
}

// ProductDeleted 商品删除
type ProductDeleted struct {
	ProductID string
}

// InventoryChanged 库存地点数量变化
type InventoryChanged struct {
	InventoryItemID string
	LocationID      string
	Available       int
}

// OrderFulfilled Catalog 订单发货
type OrderFulfilled struct {
	Notice platform.FulfillmentNotice
}

// MarketplaceOrderCreated Marketplace 新订单
type MarketplaceOrderCreated struct {
	OrderID string
}

func (e ProductChanged) Key() string          { return "product:" + e.ProductID }
func (e ProductDeleted) Key() string          { return "product:" + e.ProductID }
func (e InventoryChanged) Key() string        { return "inventory:" + e.InventoryItemID }
func (e OrderFulfilled) Key() string          { return "catalog_order:" + e.Notice.CatalogOrderID }
func (e MarketplaceOrderCreated) Key() string { return "order:" + e.OrderID }

func (ProductChanged) Kind() string          { return "product_changed" }
func (ProductDeleted) Kind() string          { return "product_deleted" }
func (InventoryChanged) Kind() string        { return "inventory_changed" }
func (OrderFulfilled) Kind() string          { return "order_fulfilled" }
func (MarketplaceOrderCreated) Kind() string { return "marketplace_order_created" }

func (ProductChanged) isEvent()          {}
func (ProductDeleted) isEvent()          {}
func (InventoryChanged) isEvent()        {}
func (OrderFulfilled) isEvent()          {}
func (MarketplaceOrderCreated) isEvent() {}

// ==================== 载荷结构 ====================

// flexID 兼容数字与字符串两种 ID
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

type catalogProductPayload struct {
	ID flexID `json:"id"`
}

type catalogInventoryPayload struct {
	InventoryItemID flexID `json:"inventory_item_id"`
	LocationID      flexID `json:"location_id"`
	Available       *int   `json:"available"`
}

type catalogFulfillmentPayload struct {
	OrderID         flexID `json:"order_id"`
	Status          string `json:"status"`
	TrackingCompany string `json:"tracking_company"`
	TrackingNumber  string `json:"tracking_number"`
}

type catalogOrderPayload struct {
	ID           flexID                      `json:"id"`
	Name         string                      `json:"name"`
	Tags         string                      `json:"tags"`
	Fulfillments []catalogFulfillmentPayload `json:"fulfillments"`
}

type marketNotification struct {
	Metadata struct {
		Topic string `json:"topic"`
	} `json:"metadata"`
	Notification struct {
		NotificationID string `json:"notificationId"`
		Data           struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	} `json:"notification"`
}

// ==================== 解析 ====================

// Parse 按来源与 topic 解析推送载荷
func Parse(source, topic string, body []byte) (Event, error) {
	switch source {
	case model.EventSourceCatalog:
		return parseCatalog(topic, body)
	case model.EventSourceMarketplace:
		return parseMarketplace(topic, body)
	default:
		return nil, ErrUnknownSource
	}
}

func parseCatalog(topic string, body []byte) (Event, error) {
	switch topic {
	case TopicProductCreate, TopicProductUpdate, TopicProductDelete:
		var p catalogProductPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("解析商品事件失败: %w", err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("商品事件缺少 id")
		}
		if topic == TopicProductDelete {
			return ProductDeleted{ProductID: string(p.ID)}, nil
		}
		return ProductChanged{ProductID: string(p.ID)}, nil

	case TopicInventoryUpdate:
		var p catalogInventoryPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("解析库存事件失败: %w", err)
		}
		if p.InventoryItemID == "" {
			return nil, fmt.Errorf("库存事件缺少 inventory_item_id")
		}
		e := InventoryChanged{InventoryItemID: string(p.InventoryItemID), LocationID: string(p.LocationID)}
		if p.Available != nil {
			e.Available = *p.Available
		}
		return e, nil

	case TopicOrderFulfilled:
		var p catalogOrderPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("解析订单发货事件失败: %w", err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("订单发货事件缺少 id")
		}
		n := platform.FulfillmentNotice{
			CatalogOrderID: string(p.ID),
			OrderName:      p.Name,
			Tags:           splitTags(p.Tags),
		}
		if f := latestTracked(p.Fulfillments); f != nil {
			n.TrackingNumber, n.TrackingCompany = f.TrackingNumber, f.TrackingCompany
		}
		return OrderFulfilled{Notice: n}, nil

	case TopicFulfillment, TopicFulfillmentEdit:
		var p catalogFulfillmentPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("解析发货事件失败: %w", err)
		}
		if p.OrderID == "" {
			return nil, fmt.Errorf("发货事件缺少 order_id")
		}
		if p.Status == "cancelled" {
			return nil, ErrUnsupportedTopic
		}
		return OrderFulfilled{Notice: platform.FulfillmentNotice{
			CatalogOrderID:  string(p.OrderID),
			TrackingNumber:  p.TrackingNumber,
			TrackingCompany: p.TrackingCompany,
		}}, nil
	}
	return nil, ErrUnsupportedTopic
}

func parseMarketplace(topic string, body []byte) (Event, error) {
	var n marketNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("解析 Marketplace 通知失败: %w", err)
	}
	if topic == "" {
		topic = n.Metadata.Topic
	}
	switch strings.ToUpper(topic) {
	case TopicMarketOrderCreated, TopicMarketItemSold:
		if n.Notification.Data.OrderID == "" {
			return nil, fmt.Errorf("订单通知缺少 orderId")
		}
		return MarketplaceOrderCreated{OrderID: n.Notification.Data.OrderID}, nil
	}
	return nil, ErrUnsupportedTopic
}

// MarketplaceDeliveryID 从通知体取投递 ID
func MarketplaceDeliveryID(body []byte) string {
	var n marketNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return ""
	}
	return n.Notification.NotificationID
}

// MarketplaceTopic 从通知体取 topic
func MarketplaceTopic(body []byte) string {
	var n marketNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return ""
	}
	return n.Metadata.Topic
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func latestTracked(list []catalogFulfillmentPayload) *catalogFulfillmentPayload {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].TrackingNumber != "" && list[i].Status != "cancelled" {
			return &list[i]
		}
	}
	return nil
}
