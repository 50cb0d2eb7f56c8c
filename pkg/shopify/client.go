package shopify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/net"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

// MaxIDsPerRequest products.json 单次 ids 上限
const MaxIDsPerRequest = 250

// Config Shopify 客户端配置
type Config struct {
	ShopDomain string // xxx.myshopify.com
	APIVersion string // 如 2024-10
	Tokens     net.TokenSource
	Timeout    time.Duration
	MaxRetries int
	ProxyURL   string
}

// Client Shopify Admin API 客户端
type Client struct {
	http *resty.Client
}

var _ platform.CatalogClient = (*Client)(nil)

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-10"
	}
	base := fmt.Sprintf("https://%s/admin/api/%s", cfg.ShopDomain, cfg.APIVersion)
	if strings.HasPrefix(cfg.ShopDomain, "http://") || strings.HasPrefix(cfg.ShopDomain, "https://") {
		base = fmt.Sprintf("%s/admin/api/%s", strings.TrimRight(cfg.ShopDomain, "/"), cfg.APIVersion)
	}
	return &Client{
		http: net.NewClient(net.ClientOptions{
			BaseURL:    base,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			ProxyURL:   cfg.ProxyURL,
			Tokens:     cfg.Tokens,
			AuthHeader: "X-Shopify-Access-Token",
			AuthScheme: "-",
		}),
	}
}

// ==================== 商品 ====================

// GetProducts 批量获取商品
func (c *Client) GetProducts(ctx context.Context, ids []string) ([]platform.Product, error) {
	const op = "shopify.GetProducts"
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxIDsPerRequest {
		return nil, platform.Validation(op, fmt.Sprintf("ids 超过单次上限 %d", MaxIDsPerRequest))
	}

	var out productsResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":   strings.Join(ids, ","),
			"limit": strconv.Itoa(MaxIDsPerRequest),
		}).
		SetResult(&out).
		Get("/products.json")
	if err := net.CheckResponse(op, resp, err); err != nil {
		return nil, err
	}

	products := make([]platform.Product, 0, len(out.Products))
	for i := range out.Products {
		products = append(products, out.Products[i].toPlatform())
	}
	return products, nil
}

// GetProduct 获取单个商品
func (c *Client) GetProduct(ctx context.Context, id string) (*platform.Product, error) {
	var out productResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/products/" + id + ".json")
	if err := net.CheckResponse("shopify.GetProduct", resp, err); err != nil {
		return nil, err
	}
	p := out.Product.toPlatform()
	return &p, nil
}

// GetVariantByInventoryItem 根据库存项反查变体
func (c *Client) GetVariantByInventoryItem(ctx context.Context, inventoryItemID string) (*platform.Variant, error) {
	const op = "shopify.GetVariantByInventoryItem"
	query := `query($id: ID!) { inventoryItem(id: $id) { variant { id sku title price inventoryQuantity product { id } } } }`

	var out inventoryItemVariantResp
	if err := c.graphQL(ctx, op, query, map[string]interface{}{
		"id": "gid://shopify/InventoryItem/" + inventoryItemID,
	}, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, platform.Validation(op, out.Errors[0].Message)
	}
	if out.Data.InventoryItem == nil || out.Data.InventoryItem.Variant == nil {
		return nil, platform.NotFound(op, "inventory item "+inventoryItemID)
	}
	v := out.Data.InventoryItem.Variant
	return &platform.Variant{
		ID:                gidTail(v.ID),
		ProductID:         gidTail(v.Product.ID),
		SKU:               strings.TrimSpace(v.SKU),
		Title:             v.Title,
		Price:             v.Price,
		InventoryQuantity: v.InventoryQuantity,
		InventoryItemID:   inventoryItemID,
	}, nil
}

// GetInventoryLevel 获取指定地点库存
func (c *Client) GetInventoryLevel(ctx context.Context, inventoryItemID, locationID string) (*platform.InventoryLevel, error) {
	const op = "shopify.GetInventoryLevel"

	var out inventoryLevelsResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inventory_item_ids": inventoryItemID,
			"location_ids":       locationID,
		}).
		SetResult(&out).
		Get("/inventory_levels.json")
	if err := net.CheckResponse(op, resp, err); err != nil {
		return nil, err
	}
	if len(out.InventoryLevels) == 0 {
		return nil, platform.NotFound(op, fmt.Sprintf("item %s @ location %s", inventoryItemID, locationID))
	}

	level := out.InventoryLevels[0]
	available := 0
	if level.Available != nil {
		available = *level.Available
	}
	return &platform.InventoryLevel{
		InventoryItemID: inventoryItemID,
		LocationID:      locationID,
		Available:       available,
	}, nil
}

// ==================== 订单 ====================

// CreateOrder 创建订单
func (c *Client) CreateOrder(ctx context.Context, in *platform.OrderInput) (*platform.OrderRef, error) {
	var out orderResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(orderCreateReq{Order: newOrderCreateDTO(in)}).
		SetResult(&out).
		Post("/orders.json")
	if err := net.CheckResponse("shopify.CreateOrder", resp, err); err != nil {
		return nil, err
	}
	return &platform.OrderRef{
		ID:   strconv.FormatInt(out.Order.ID, 10),
		Name: out.Order.Name,
	}, nil
}

// GetOrder 获取订单（含发货记录）
func (c *Client) GetOrder(ctx context.Context, id string) (*platform.Order, error) {
	var out orderResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/orders/" + id + ".json")
	if err := net.CheckResponse("shopify.GetOrder", resp, err); err != nil {
		return nil, err
	}
	o := out.Order.toPlatform()
	return &o, nil
}

// SearchOrders 搜索订单
// Tag / SourceIdentifier 走 GraphQL 搜索语法，CreatedFrom 走 REST 列表
func (c *Client) SearchOrders(ctx context.Context, q platform.OrderQuery) ([]platform.Order, error) {
	const op = "shopify.SearchOrders"
	limit := q.Limit
	if limit <= 0 || limit > 250 {
		limit = 250
	}

	switch {
	case q.Tag != "":
		return c.searchOrdersGraphQL(ctx, op, fmt.Sprintf("tag:'%s'", q.Tag), limit)
	case q.SourceIdentifier != "":
		return c.searchOrdersGraphQL(ctx, op, fmt.Sprintf("source_identifier:'%s'", q.SourceIdentifier), limit)
	case !q.CreatedFrom.IsZero():
		return c.listOrdersByDate(ctx, op, q, limit)
	default:
		return nil, platform.Validation(op, "empty order query")
	}
}

// listOrdersByDate REST 列表按创建时间窗口查询，沿 Link 头的 page_info 翻页
func (c *Client) listOrdersByDate(ctx context.Context, op string, q platform.OrderQuery, limit int) ([]platform.Order, error) {
	const fields = "id,name,tags,note,note_attributes,source_identifier,created_at"
	params := map[string]string{
		"status":         "any",
		"created_at_min": q.CreatedFrom.UTC().Format(time.RFC3339),
		"limit":          strconv.Itoa(limit),
		"fields":         fields,
	}
	if !q.CreatedTo.IsZero() {
		params["created_at_max"] = q.CreatedTo.UTC().Format(time.RFC3339)
	}

	var orders []platform.Order
	for page := 1; ; page++ {
		var out ordersResp
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&out).
			Get("/orders.json")
		if err := net.CheckResponse(op, resp, err); err != nil {
			return nil, err
		}
		for i := range out.Orders {
			orders = append(orders, out.Orders[i].toPlatform())
		}

		next := nextPageInfo(resp.Header().Get("Link"))
		if next == "" || (q.MaxPages > 0 && page >= q.MaxPages) {
			return orders, nil
		}
		// 带 page_info 时平台只接受 limit 与 fields
		params = map[string]string{
			"limit":     strconv.Itoa(limit),
			"fields":    fields,
			"page_info": next,
		}
	}
}

// nextPageInfo 解析 Link: <...page_info=xxx>; rel="next"
func nextPageInfo(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start, end := strings.Index(part, "<"), strings.Index(part, ">")
		if start < 0 || end <= start {
			return ""
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
	return ""
}

func (c *Client) searchOrdersGraphQL(ctx context.Context, op, search string, limit int) ([]platform.Order, error) {
	query := `query($q: String!, $n: Int!) { orders(first: $n, query: $q) { nodes { id name tags note sourceIdentifier createdAt } } }`

	var out orderSearchResp
	if err := c.graphQL(ctx, op, query, map[string]interface{}{"q": search, "n": limit}, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, platform.Validation(op, out.Errors[0].Message)
	}

	orders := make([]platform.Order, 0, len(out.Data.Orders.Nodes))
	for _, n := range out.Data.Orders.Nodes {
		created, _ := time.Parse(time.RFC3339, n.CreatedAt)
		orders = append(orders, platform.Order{
			ID:               gidTail(n.ID),
			Name:             n.Name,
			Tags:             n.Tags,
			Note:             n.Note,
			SourceIdentifier: n.SourceIdentifier,
			CreatedAt:        created,
		})
	}
	return orders, nil
}

// graphQL 只用于只读查询，可安全重放
func (c *Client) graphQL(ctx context.Context, op, query string, vars map[string]interface{}, out interface{}) error {
	resp, err := c.http.R().
		SetContext(net.Idempotent(ctx)).
		SetBody(graphQLReq{Query: query, Variables: vars}).
		SetResult(out).
		Post("/graphql.json")
	return net.CheckResponse(op, resp, err)
}
