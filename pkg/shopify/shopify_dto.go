package shopify

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

// ==========================================
// DTO: Shopify Admin REST / GraphQL 原始结构
// ==========================================

type productResp struct {
	Product productDTO `json:"product"`
}

type productsResp struct {
	Products []productDTO `json:"products"`
}

type productDTO struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	BodyHTML    string       `json:"body_html"`
	Vendor      string       `json:"vendor"`
	ProductType string       `json:"product_type"`
	Status      string       `json:"status"`
	Tags        string       `json:"tags"` // 逗号分隔
	Images      []imageDTO   `json:"images"`
	Variants    []variantDTO `json:"variants"`
}

type imageDTO struct {
	Src string `json:"src"`
}

type variantDTO struct {
	ID                int64           `json:"id"`
	ProductID         int64           `json:"product_id"`
	SKU               string          `json:"sku"`
	Title             string          `json:"title"`
	Barcode           string          `json:"barcode"`
	Price             decimal.Decimal `json:"price"`
	InventoryQuantity int             `json:"inventory_quantity"`
	InventoryItemID   int64           `json:"inventory_item_id"`
}

type inventoryLevelsResp struct {
	InventoryLevels []struct {
		InventoryItemID int64 `json:"inventory_item_id"`
		LocationID      int64 `json:"location_id"`
		Available       *int  `json:"available"`
	} `json:"inventory_levels"`
}

// ==================== 订单 ====================

type orderCreateReq struct {
	Order orderCreateDTO `json:"order"`
}

type orderCreateDTO struct {
	Email                  string             `json:"email,omitempty"`
	Currency               string             `json:"currency"`
	FinancialStatus        string             `json:"financial_status"`
	LineItems              []lineItemDTO      `json:"line_items"`
	ShippingAddress        addressDTO         `json:"shipping_address"`
	ShippingLines          []shippingLineDTO  `json:"shipping_lines,omitempty"`
	Tags                   string             `json:"tags,omitempty"`
	Note                   string             `json:"note,omitempty"`
	NoteAttributes         []noteAttributeDTO `json:"note_attributes,omitempty"`
	SourceName             string             `json:"source_name,omitempty"`
	SourceIdentifier       string             `json:"source_identifier,omitempty"`
	SendReceipt            bool               `json:"send_receipt"`
	SendFulfillmentReceipt bool               `json:"send_fulfillment_receipt"`
	InventoryBehaviour     string             `json:"inventory_behaviour,omitempty"`
	ProcessedAt            string             `json:"processed_at,omitempty"`
}

type lineItemDTO struct {
	VariantID int64           `json:"variant_id,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type addressDTO struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	Province    string `json:"province_code,omitempty"`
	Zip         string `json:"zip,omitempty"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone,omitempty"`
}

type shippingLineDTO struct {
	Title string          `json:"title"`
	Code  string          `json:"code,omitempty"`
	Price decimal.Decimal `json:"price"`
}

type noteAttributeDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type orderResp struct {
	Order orderDTO `json:"order"`
}

type ordersResp struct {
	Orders []orderDTO `json:"orders"`
}

type orderDTO struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	Tags              string             `json:"tags"`
	Note              string             `json:"note"`
	NoteAttributes    []noteAttributeDTO `json:"note_attributes"`
	SourceIdentifier  string             `json:"source_identifier"`
	FulfillmentStatus string             `json:"fulfillment_status"`
	Fulfillments      []fulfillmentDTO   `json:"fulfillments"`
	CreatedAt         time.Time          `json:"created_at"`
}

type fulfillmentDTO struct {
	ID              int64     `json:"id"`
	Status          string    `json:"status"`
	TrackingCompany string    `json:"tracking_company"`
	TrackingNumber  string    `json:"tracking_number"`
	CreatedAt       time.Time `json:"created_at"`
}

// ==================== GraphQL ====================

type graphQLReq struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLErr struct {
	Message string `json:"message"`
}

type orderSearchResp struct {
	Data struct {
		Orders struct {
			Nodes []struct {
				ID               string   `json:"id"`
				Name             string   `json:"name"`
				Tags             []string `json:"tags"`
				Note             string   `json:"note"`
				SourceIdentifier string   `json:"sourceIdentifier"`
				CreatedAt        string   `json:"createdAt"`
			} `json:"nodes"`
		} `json:"orders"`
	} `json:"data"`
	Errors []graphQLErr `json:"errors"`
}

type inventoryItemVariantResp struct {
	Data struct {
		InventoryItem *struct {
			Variant *struct {
				ID                string          `json:"id"`
				SKU               string          `json:"sku"`
				Title             string          `json:"title"`
				Price             decimal.Decimal `json:"price"`
				InventoryQuantity int             `json:"inventoryQuantity"`
				Product           struct {
					ID string `json:"id"`
				} `json:"product"`
			} `json:"variant"`
		} `json:"inventoryItem"`
	} `json:"data"`
	Errors []graphQLErr `json:"errors"`
}

// ==================== 转换 ====================

func (p *productDTO) toPlatform() platform.Product {
	out := platform.Product{
		ID:          strconv.FormatInt(p.ID, 10),
		Title:       p.Title,
		BodyHTML:    p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Status:      p.Status,
		Tags:        splitTags(p.Tags),
	}
	for _, img := range p.Images {
		out.Images = append(out.Images, img.Src)
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, platform.Variant{
			ID:                strconv.FormatInt(v.ID, 10),
			ProductID:         strconv.FormatInt(v.ProductID, 10),
			SKU:               strings.TrimSpace(v.SKU),
			Title:             v.Title,
			Barcode:           v.Barcode,
			Price:             v.Price,
			InventoryQuantity: v.InventoryQuantity,
			InventoryItemID:   strconv.FormatInt(v.InventoryItemID, 10),
		})
	}
	return out
}

func (o *orderDTO) toPlatform() platform.Order {
	out := platform.Order{
		ID:                strconv.FormatInt(o.ID, 10),
		Name:              o.Name,
		Tags:              splitTags(o.Tags),
		Note:              o.Note,
		SourceIdentifier:  o.SourceIdentifier,
		FulfillmentStatus: o.FulfillmentStatus,
		CreatedAt:         o.CreatedAt,
	}
	for _, a := range o.NoteAttributes {
		out.NoteAttributes = append(out.NoteAttributes, platform.NoteAttribute{Name: a.Name, Value: a.Value})
	}
	for _, f := range o.Fulfillments {
		out.Fulfillments = append(out.Fulfillments, platform.Fulfillment{
			ID:              strconv.FormatInt(f.ID, 10),
			Status:          f.Status,
			TrackingCompany: f.TrackingCompany,
			TrackingNumber:  f.TrackingNumber,
			CreatedAt:       f.CreatedAt,
		})
	}
	return out
}

func newOrderCreateDTO(in *platform.OrderInput) orderCreateDTO {
	first, last := splitName(in.ShippingAddress.Name)
	out := orderCreateDTO{
		Email:           in.Email,
		Currency:        in.Currency,
		FinancialStatus: string(in.FinancialStatus),
		ShippingAddress: addressDTO{
			FirstName:   first,
			LastName:    last,
			Address1:    in.ShippingAddress.Address1,
			Address2:    in.ShippingAddress.Address2,
			City:        in.ShippingAddress.City,
			Province:    in.ShippingAddress.Province,
			Zip:         in.ShippingAddress.Zip,
			CountryCode: in.ShippingAddress.CountryCode,
			Phone:       in.ShippingAddress.Phone,
		},
		Tags:                   strings.Join(in.Tags, ", "),
		Note:                   in.Note,
		SourceName:             in.SourceName,
		SourceIdentifier:       in.SourceIdentifier,
		SendReceipt:            in.SendReceipt,
		SendFulfillmentReceipt: in.SendFulfillmentReceipt,
		InventoryBehaviour:     in.InventoryBehaviour,
	}
	if !in.ProcessedAt.IsZero() {
		out.ProcessedAt = in.ProcessedAt.UTC().Format(time.RFC3339)
	}
	for _, li := range in.LineItems {
		item := lineItemDTO{SKU: li.SKU, Title: li.Title, Quantity: li.Quantity, Price: li.Price}
		if id, err := strconv.ParseInt(li.VariantID, 10, 64); err == nil {
			item.VariantID = id
		}
		out.LineItems = append(out.LineItems, item)
	}
	for _, sl := range in.ShippingLines {
		out.ShippingLines = append(out.ShippingLines, shippingLineDTO{Title: sl.Title, Code: sl.Code, Price: sl.Price})
	}
	for _, a := range in.NoteAttributes {
		out.NoteAttributes = append(out.NoteAttributes, noteAttributeDTO{Name: a.Name, Value: a.Value})
	}
	return out
}

// ==================== 工具函数 ====================

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	idx := strings.LastIndex(full, " ")
	if idx <= 0 {
		return full, ""
	}
	return full[:idx], full[idx+1:]
}

// gidTail 取 GraphQL 全局 ID 的数字部分：gid://shopify/Order/123 -> 123
func gidTail(gid string) string {
	if idx := strings.LastIndex(gid, "/"); idx >= 0 {
		return gid[idx+1:]
	}
	return gid
}
