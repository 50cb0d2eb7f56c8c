package platform

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ==================== Catalog 商品 ====================

// Product Catalog 商品（含变体与图片）
type Product struct {
	ID          string
	Title       string
	BodyHTML    string
	Vendor      string
	ProductType string
	Status      string // active / draft / archived
	Tags        []string
	Images      []string
	Variants    []Variant
}

// Variant Catalog 商品变体
type Variant struct {
	ID                string
	ProductID         string
	SKU               string
	Title             string
	Barcode           string
	Price             decimal.Decimal
	InventoryQuantity int
	InventoryItemID   string
}

// VariantBySKU 按 SKU 查找变体
func (p *Product) VariantBySKU(sku string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i]
		}
	}
	return nil
}

// VariantByID 按变体 ID 查找
func (p *Product) VariantByID(id string) *Variant {
	if id == "" {
		return nil
	}
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// InventoryLevel 某库存地点的可用数量
type InventoryLevel struct {
	InventoryItemID string
	LocationID      string
	Available       int
}

// ==================== Catalog 订单 ====================

// FinancialStatus Catalog 订单支付状态
type FinancialStatus string

const (
	FinancialPending           FinancialStatus = "pending"
	FinancialPaid              FinancialStatus = "paid"
	FinancialPartiallyRefunded FinancialStatus = "partially_refunded"
	FinancialRefunded          FinancialStatus = "refunded"
	FinancialVoided            FinancialStatus = "voided"
)

// Address Catalog 地址
type Address struct {
	Name        string `json:"name" validate:"required"`
	Address1    string `json:"address1" validate:"required"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city" validate:"required"`
	Province    string `json:"province_code,omitempty"`
	Zip         string `json:"zip,omitempty"`
	CountryCode string `json:"country_code" validate:"required,len=2"`
	Phone       string `json:"phone,omitempty"`
}

// OrderLineInput 创建订单的行项目
// VariantID 为空时为自定义行，不扣减库存
type OrderLineInput struct {
	VariantID string          `json:"variant_id,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	Title     string          `json:"title" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
}

// ShippingLine 运费行
type ShippingLine struct {
	Title string          `json:"title"`
	Code  string          `json:"code,omitempty"`
	Price decimal.Decimal `json:"price"`
}

// NoteAttribute 订单附加属性
type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OrderInput 导入到 Catalog 的订单
type OrderInput struct {
	Email                  string           `validate:"omitempty,email"`
	Currency               string           `validate:"required,len=3"`
	FinancialStatus        FinancialStatus  `validate:"required"`
	LineItems              []OrderLineInput `validate:"required,min=1,dive"`
	ShippingAddress        Address
	ShippingLines          []ShippingLine
	Tags                   []string
	Note                   string
	NoteAttributes         []NoteAttribute
	SourceName             string
	SourceIdentifier       string
	SendReceipt            bool
	SendFulfillmentReceipt bool
	InventoryBehaviour     string
	ProcessedAt            time.Time
}

// OrderRef 创建成功后的订单引用
type OrderRef struct {
	ID   string
	Name string // 如 "#1001"
}

// Fulfillment Catalog 订单发货记录
type Fulfillment struct {
	ID              string
	Status          string
	TrackingCompany string
	TrackingNumber  string
	CreatedAt       time.Time
}

// Order Catalog 订单（去重探测与发货轮询使用）
type Order struct {
	ID                string
	Name              string
	Tags              []string
	Note              string
	NoteAttributes    []NoteAttribute
	SourceIdentifier  string
	FulfillmentStatus string
	Fulfillments      []Fulfillment
	CreatedAt         time.Time
}

// HasTag 是否包含标签（忽略大小写）
func (o *Order) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// MentionsText 订单备注或附加属性中是否以独立词出现指定文本
// 前后紧邻字母、数字或连字符时不算命中，避免 12-3 命中 12-34
func (o *Order) MentionsText(text string) bool {
	if text == "" {
		return false
	}
	if containsToken(o.Note, text) {
		return true
	}
	for _, a := range o.NoteAttributes {
		if containsToken(a.Value, text) {
			return true
		}
	}
	return false
}

func containsToken(s, token string) bool {
	for start := 0; start <= len(s)-len(token); {
		i := strings.Index(s[start:], token)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(token)
		if (i == 0 || !isTokenByte(s[i-1])) && (end == len(s) || !isTokenByte(s[end])) {
			return true
		}
		start = i + 1
	}
	return false
}

func isTokenByte(b byte) bool {
	return b == '-' || b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// LatestTrackedFulfillment 最近一条带运单号的发货记录
func (o *Order) LatestTrackedFulfillment() *Fulfillment {
	var latest *Fulfillment
	for i := range o.Fulfillments {
		f := &o.Fulfillments[i]
		if f.TrackingNumber == "" || f.Status == "cancelled" {
			continue
		}
		if latest == nil || f.CreatedAt.After(latest.CreatedAt) {
			latest = f
		}
	}
	return latest
}

// OrderQuery 订单搜索条件，Tag / SourceIdentifier / 创建时间窗口三者互斥使用
type OrderQuery struct {
	Tag              string
	SourceIdentifier string
	CreatedFrom      time.Time
	CreatedTo        time.Time // 可选，时间窗口上界
	Limit            int       // 单页条数
	MaxPages         int       // 时间窗口查询的翻页上限，0 表示翻到最后一页
}

// FulfillmentNotice Catalog 订单发货通知
type FulfillmentNotice struct {
	CatalogOrderID  string
	OrderName       string
	Tags            []string
	TrackingNumber  string
	TrackingCompany string
}

// ==================== Catalog 客户端 ====================

// CatalogClient Catalog 平台客户端
type CatalogClient interface {
	// GetProducts 批量获取商品，ids 数量不超过平台单次上限
	GetProducts(ctx context.Context, ids []string) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetVariantByInventoryItem(ctx context.Context, inventoryItemID string) (*Variant, error)
	GetInventoryLevel(ctx context.Context, inventoryItemID, locationID string) (*InventoryLevel, error)

	CreateOrder(ctx context.Context, in *OrderInput) (*OrderRef, error)
	SearchOrders(ctx context.Context, q OrderQuery) ([]Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
}
