package ebay

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/net"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

const (
	ProductionBaseURL = "https://api.ebay.com"
	SandboxBaseURL    = "https://api.sandbox.ebay.com"

	inventoryPath   = "/sell/inventory/v1"
	fulfillmentPath = "/sell/fulfillment/v1"
)

// Config eBay 客户端配置
type Config struct {
	BaseURL         string
	MarketplaceID   string // 如 EBAY_US
	ContentLanguage string // 如 en-US
	Tokens          net.TokenSource
	Timeout         time.Duration
	MaxRetries      int
	ProxyURL        string
}

// Client eBay Sell API 客户端
type Client struct {
	http          *resty.Client
	marketplaceID string
}

var _ platform.MarketplaceClient = (*Client)(nil)

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProductionBaseURL
	}
	if cfg.MarketplaceID == "" {
		cfg.MarketplaceID = "EBAY_US"
	}
	if cfg.ContentLanguage == "" {
		cfg.ContentLanguage = "en-US"
	}
	return &Client{
		http: net.NewClient(net.ClientOptions{
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			ProxyURL:   cfg.ProxyURL,
			Tokens:     cfg.Tokens,
			Headers: map[string]string{
				"Content-Language":        cfg.ContentLanguage,
				"X-EBAY-C-MARKETPLACE-ID": cfg.MarketplaceID,
			},
		}),
		marketplaceID: cfg.MarketplaceID,
	}
}

// ==================== Inventory Item ====================

// CreateOrReplaceInventoryItem 按 SKU 创建或整体替换库存记录
func (c *Client) CreateOrReplaceInventoryItem(ctx context.Context, item *platform.InventoryItem) error {
	body := inventoryItemDTO{
		Condition: item.Condition,
		Product: inventoryProduct{
			Title:       item.Title,
			Description: item.Description,
			ImageURLs:   item.ImageURLs,
			Aspects:     item.Aspects,
		},
	}
	body.Availability.ShipToLocationAvailability.Quantity = item.Quantity

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Put(inventoryPath + "/inventory_item/" + url.PathEscape(item.SKU))
	return net.CheckResponse("ebay.CreateOrReplaceInventoryItem", resp, err)
}

// GetInventoryItem 获取库存记录
func (c *Client) GetInventoryItem(ctx context.Context, sku string) (*platform.InventoryItem, error) {
	var out inventoryItemDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(inventoryPath + "/inventory_item/" + url.PathEscape(sku))
	if err := net.CheckResponse("ebay.GetInventoryItem", resp, err); err != nil {
		return nil, err
	}
	return &platform.InventoryItem{
		SKU:         sku,
		Title:       out.Product.Title,
		Description: out.Product.Description,
		ImageURLs:   out.Product.ImageURLs,
		Condition:   out.Condition,
		Quantity:    out.Availability.ShipToLocationAvailability.Quantity,
		Aspects:     out.Product.Aspects,
	}, nil
}

// UpdateQuantity 更新可售数量
func (c *Client) UpdateQuantity(ctx context.Context, sku string, quantity int) error {
	return c.bulkUpdate(ctx, "ebay.UpdateQuantity", priceQuantityDTO{
		SKU:                        sku,
		ShipToLocationAvailability: &quantityDTO{Quantity: quantity},
	})
}

// ==================== Offer ====================

// UpsertOffer 同 SKU 已有报价则更新，否则创建
func (c *Client) UpsertOffer(ctx context.Context, offer *platform.Offer) (string, error) {
	const op = "ebay.UpsertOffer"

	existing, err := c.findOfferBySKU(ctx, offer.SKU)
	if err != nil && !platform.IsNotFound(err) {
		return "", err
	}

	body := offerDTO{
		SKU:                 offer.SKU,
		MarketplaceID:       c.marketplaceID,
		Format:              "FIXED_PRICE",
		AvailableQuantity:   offer.Quantity,
		CategoryID:          offer.Policies.CategoryID,
		MerchantLocationKey: offer.Policies.MerchantLocationKey,
		ListingPolicies: listingPolicy{
			FulfillmentPolicyID: offer.Policies.FulfillmentPolicyID,
			PaymentPolicyID:     offer.Policies.PaymentPolicyID,
			ReturnPolicyID:      offer.Policies.ReturnPolicyID,
		},
	}
	body.PricingSummary.Price = amountDTO{Value: offer.Price, Currency: offer.Currency}

	if existing != nil {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			Put(inventoryPath + "/offer/" + url.PathEscape(existing.OfferID))
		if err := net.CheckResponse(op, resp, err); err != nil {
			return "", err
		}
		return existing.OfferID, nil
	}

	var out createOfferResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(inventoryPath + "/offer")
	if err := net.CheckResponse(op, resp, err); err != nil {
		return "", err
	}
	return out.OfferID, nil
}

// GetOffer 获取报价
func (c *Client) GetOffer(ctx context.Context, offerID string) (*platform.Offer, error) {
	var out offerDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(inventoryPath + "/offer/" + url.PathEscape(offerID))
	if err := net.CheckResponse("ebay.GetOffer", resp, err); err != nil {
		return nil, err
	}
	o := out.toPlatform()
	return &o, nil
}

// UpdateOfferPrice 更新报价价格
func (c *Client) UpdateOfferPrice(ctx context.Context, offerID string, price decimal.Decimal, currency string) error {
	offer, err := c.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	return c.bulkUpdate(ctx, "ebay.UpdateOfferPrice", priceQuantityDTO{
		SKU: offer.SKU,
		Offers: []offerPriceQtyDTO{{
			OfferID: offerID,
			Price:   &amountDTO{Value: price.Round(2), Currency: currency},
		}},
	})
}

// PublishOffer 发布报价，返回 Listing ID
func (c *Client) PublishOffer(ctx context.Context, offerID string) (string, error) {
	var out publishResp
	resp, err := c.http.R().
		SetContext(net.Idempotent(ctx)).
		SetResult(&out).
		Post(inventoryPath + "/offer/" + url.PathEscape(offerID) + "/publish")
	if err := net.CheckResponse("ebay.PublishOffer", resp, err); err != nil {
		return "", err
	}
	return out.ListingID, nil
}

// WithdrawOffer 下架报价（Listing 结束，不可购买）
func (c *Client) WithdrawOffer(ctx context.Context, offerID string) error {
	resp, err := c.http.R().
		SetContext(net.Idempotent(ctx)).
		Post(inventoryPath + "/offer/" + url.PathEscape(offerID) + "/withdraw")
	return net.CheckResponse("ebay.WithdrawOffer", resp, err)
}

func (c *Client) findOfferBySKU(ctx context.Context, sku string) (*platform.Offer, error) {
	const op = "ebay.GetOffers"

	var out offersResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"sku":            sku,
			"marketplace_id": c.marketplaceID,
		}).
		SetResult(&out).
		Get(inventoryPath + "/offer")
	if err := net.CheckResponse(op, resp, err); err != nil {
		return nil, err
	}
	if len(out.Offers) == 0 {
		return nil, platform.NotFound(op, "offer for sku "+sku)
	}
	o := out.Offers[0].toPlatform()
	return &o, nil
}

func (c *Client) bulkUpdate(ctx context.Context, op string, req priceQuantityDTO) error {
	// 价格与数量按绝对值覆盖，重放安全
	var out bulkPriceQuantityResp
	resp, err := c.http.R().
		SetContext(net.Idempotent(ctx)).
		SetBody(bulkPriceQuantityReq{Requests: []priceQuantityDTO{req}}).
		SetResult(&out).
		Post(inventoryPath + "/bulk_update_price_quantity")
	if err := net.CheckResponse(op, resp, err); err != nil {
		return err
	}
	// 批量接口整体 200，单条结果需要单独检查
	for _, r := range out.Responses {
		if r.StatusCode >= 400 {
			detail := fmt.Sprintf("sku %s", r.SKU)
			if len(r.Errors) > 0 {
				detail += ": " + r.Errors[0].Message
			}
			return platform.FromStatus(op, r.StatusCode, detail)
		}
	}
	return nil
}

// ==================== Order ====================

// GetOrders 分页拉取订单
func (c *Client) GetOrders(ctx context.Context, f platform.OrderFilter) (*platform.OrderPage, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	params := map[string]string{
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(f.Offset),
	}
	if filter := creationDateFilter(f.CreatedFrom, f.CreatedTo); filter != "" {
		params["filter"] = filter
	}

	var out ordersResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get(fulfillmentPath + "/order")
	if err := net.CheckResponse("ebay.GetOrders", resp, err); err != nil {
		return nil, err
	}

	page := &platform.OrderPage{
		Total:   out.Total,
		Offset:  out.Offset,
		HasNext: out.Next != "",
	}
	for i := range out.Orders {
		page.Orders = append(page.Orders, out.Orders[i].toPlatform())
	}
	return page, nil
}

// GetOrder 获取单个订单（完整行项目）
func (c *Client) GetOrder(ctx context.Context, orderID string) (*platform.MarketOrder, error) {
	var out orderDTO
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fulfillmentPath + "/order/" + url.PathEscape(orderID))
	if err := net.CheckResponse("ebay.GetOrder", resp, err); err != nil {
		return nil, err
	}
	o := out.toPlatform()
	return &o, nil
}

// CreateShippingFulfillment 创建发货记录，返回 fulfillment ID
// 非幂等，5xx 不在客户端重试，由发货映射状态保证只回传一次
func (c *Client) CreateShippingFulfillment(ctx context.Context, orderID string, f *platform.ShippingFulfillment) (string, error) {
	body := shippingFulfillmentReq{
		ShippedDate:         f.ShippedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		ShippingCarrierCode: f.Carrier,
		TrackingNumber:      f.TrackingNumber,
	}
	for _, li := range f.LineItems {
		body.LineItems = append(body.LineItems, fulfillmentLineDTO{LineItemID: li.LineItemID, Quantity: li.Quantity})
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fulfillmentPath + "/order/" + url.PathEscape(orderID) + "/shipping_fulfillment")
	if err := net.CheckResponse("ebay.CreateShippingFulfillment", resp, err); err != nil {
		return "", err
	}
	// 201 Created，ID 在 Location 头的最后一段
	location := resp.Header().Get("Location")
	if location == "" {
		return "", nil
	}
	return path.Base(location), nil
}

// creationDateFilter 生成 filter=creationdate:[from..to]
func creationDateFilter(from, to *time.Time) string {
	if from == nil && to == nil {
		return ""
	}
	const layout = "2006-01-02T15:04:05.000Z"
	var a, b string
	if from != nil {
		a = from.UTC().Format(layout)
	}
	if to != nil {
		b = to.UTC().Format(layout)
	}
	return fmt.Sprintf("creationdate:[%s..%s]", a, b)
}
