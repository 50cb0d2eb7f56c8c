package platform

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ==================== Marketplace 库存与报价 ====================

// InventoryItem Marketplace 库存记录（按 SKU）
type InventoryItem struct {
	SKU         string
	Title       string
	Description string
	ImageURLs   []string
	Condition   string
	Quantity    int
	Aspects     map[string][]string
}

// PolicySet 发布报价所需的最小策略集
type PolicySet struct {
	CategoryID          string
	FulfillmentPolicyID string
	PaymentPolicyID     string
	ReturnPolicyID      string
	MerchantLocationKey string
}

// Complete 策略是否齐全
func (p PolicySet) Complete() bool {
	return p.CategoryID != "" && p.FulfillmentPolicyID != "" &&
		p.PaymentPolicyID != "" && p.ReturnPolicyID != ""
}

// Offer Marketplace 报价
type Offer struct {
	OfferID   string
	SKU       string
	Price     decimal.Decimal
	Currency  string
	Quantity  int
	Policies  PolicySet
	Status    string // UNPUBLISHED / PUBLISHED
	ListingID string
}

// ==================== Marketplace 订单 ====================

// PaymentStatus Marketplace 订单支付状态
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentFullyRefunded     PaymentStatus = "FULLY_REFUNDED"
)

// ShipTo 收货信息
type ShipTo struct {
	FullName        string
	Phone           string
	Email           string
	AddressLine1    string
	AddressLine2    string
	City            string
	StateOrProvince string
	PostalCode      string
	CountryCode     string
}

// Buyer 买家
type Buyer struct {
	Username string
	Email    string
}

// OrderLineItem 订单行
type OrderLineItem struct {
	LineItemID string
	SKU        string
	Title      string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// MarketOrder Marketplace 订单
type MarketOrder struct {
	OrderID           string
	CreatedAt         time.Time
	PaymentStatus     PaymentStatus
	FulfillmentStatus string
	Buyer             Buyer
	ShipTo            ShipTo
	LineItems         []OrderLineItem
	DeliveryCost      decimal.Decimal
	Total             decimal.Decimal
	Currency          string
}

// OrderFilter 订单查询条件
type OrderFilter struct {
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// OrderPage 订单分页结果
type OrderPage struct {
	Orders  []MarketOrder
	Total   int
	Offset  int
	HasNext bool
}

// FulfillmentLine 发货行
type FulfillmentLine struct {
	LineItemID string
	Quantity   int
}

// ShippingFulfillment 发货记录
type ShippingFulfillment struct {
	LineItems      []FulfillmentLine
	Carrier        string
	TrackingNumber string
	ShippedAt      time.Time
}

// ==================== Marketplace 客户端 ====================

// MarketplaceClient Marketplace 平台客户端
type MarketplaceClient interface {
	CreateOrReplaceInventoryItem(ctx context.Context, item *InventoryItem) error
	GetInventoryItem(ctx context.Context, sku string) (*InventoryItem, error)
	UpdateQuantity(ctx context.Context, sku string, quantity int) error

	// UpsertOffer 同 SKU 已有报价时更新，返回报价 ID
	UpsertOffer(ctx context.Context, offer *Offer) (string, error)
	GetOffer(ctx context.Context, offerID string) (*Offer, error)
	UpdateOfferPrice(ctx context.Context, offerID string, price decimal.Decimal, currency string) error
	PublishOffer(ctx context.Context, offerID string) (string, error)
	WithdrawOffer(ctx context.Context, offerID string) error

	GetOrders(ctx context.Context, f OrderFilter) (*OrderPage, error)
	GetOrder(ctx context.Context, orderID string) (*MarketOrder, error)
	CreateShippingFulfillment(ctx context.Context, orderID string, f *ShippingFulfillment) (string, error)
}
