package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	orderSourceName         = "ebay"
	orderInventoryBehaviour = "decrement_obeying_policy"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func orderValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// MapOptions 订单映射参数
type MapOptions struct {
	Currency  string
	DedupTag  string
	VariantBy map[string]string // SKU -> Catalog 变体 ID，缺失的行按自定义行导入
}

// MapMarketplaceOrder 将 Marketplace 订单转换为 Catalog 订单输入
// 纯函数，不做任何 IO
func MapMarketplaceOrder(o *platform.MarketOrder, opts MapOptions) *platform.OrderInput {
	currency := o.Currency
	if currency == "" {
		currency = opts.Currency
	}
	email := o.Buyer.Email
	if email == "" {
		email = o.ShipTo.Email
	}

	in := &platform.OrderInput{
		Email:           strings.TrimSpace(email),
		Currency:        strings.ToUpper(currency),
		FinancialStatus: financialStatus(o.PaymentStatus),
		ShippingAddress: platform.Address{
			Name:        strings.TrimSpace(o.ShipTo.FullName),
			Address1:    strings.TrimSpace(o.ShipTo.AddressLine1),
			Address2:    strings.TrimSpace(o.ShipTo.AddressLine2),
			City:        strings.TrimSpace(o.ShipTo.City),
			Province:    strings.TrimSpace(o.ShipTo.StateOrProvince),
			Zip:         strings.TrimSpace(o.ShipTo.PostalCode),
			CountryCode: strings.ToUpper(strings.TrimSpace(o.ShipTo.CountryCode)),
			Phone:       strings.TrimSpace(o.ShipTo.Phone),
		},
		Tags:                   []string{orderSourceName, opts.DedupTag},
		Note:                   fmt.Sprintf("Imported from marketplace order %s", o.OrderID),
		SourceName:             orderSourceName,
		SourceIdentifier:       o.OrderID,
		SendReceipt:            false,
		SendFulfillmentReceipt: false,
		InventoryBehaviour:     orderInventoryBehaviour,
		ProcessedAt:            o.CreatedAt,
		NoteAttributes: []platform.NoteAttribute{
			{Name: "marketplace_order_id", Value: o.OrderID},
		},
	}
	if o.Buyer.Username != "" {
		in.NoteAttributes = append(in.NoteAttributes, platform.NoteAttribute{Name: "buyer_username", Value: o.Buyer.Username})
	}

	for _, li := range o.LineItems {
		title := li.Title
		if title == "" {
			title = li.SKU
		}
		in.LineItems = append(in.LineItems, platform.OrderLineInput{
			VariantID: opts.VariantBy[li.SKU],
			SKU:       li.SKU,
			Title:     title,
			Quantity:  li.Quantity,
			Price:     li.UnitPrice,
		})
	}

	if o.DeliveryCost.GreaterThan(decimal.Zero) {
		in.ShippingLines = []platform.ShippingLine{{
			Title: "Marketplace Shipping",
			Code:  orderSourceName,
			Price: o.DeliveryCost,
		}}
	}
	return in
}

// ValidateOrderInput 导入前校验，失败按远端校验错误处理
func ValidateOrderInput(in *platform.OrderInput) error {
	if err := orderValidator().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return platform.Validation("order.map", "invalid order: "+strings.Join(fields, ", "))
		}
		return platform.Validation("order.map", err.Error())
	}
	return nil
}

// financialStatus 支付状态映射
func financialStatus(s platform.PaymentStatus) platform.FinancialStatus {
	switch s {
	case platform.PaymentPaid:
		return platform.FinancialPaid
	case platform.PaymentFailed:
		return platform.FinancialVoided
	case platform.PaymentPartiallyRefunded:
		return platform.FinancialPartiallyRefunded
	case platform.PaymentFullyRefunded:
		return platform.FinancialRefunded
	default:
		return platform.FinancialPending
	}
}
