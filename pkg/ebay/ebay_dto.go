package ebay

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

// ==========================================
// DTO: eBay Sell Inventory / Fulfillment API 原始结构
// ==========================================

type amountDTO struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// ==================== Inventory Item ====================

type inventoryItemDTO struct {
	SKU          string           `json:"sku,omitempty"`
	Condition    string           `json:"condition,omitempty"`
	Availability availabilityDTO  `json:"availability"`
	Product      inventoryProduct `json:"product"`
}

type availabilityDTO struct {
	ShipToLocationAvailability struct {
		Quantity int `json:"quantity"`
	} `json:"shipToLocationAvailability"`
}

type inventoryProduct struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	ImageURLs   []string            `json:"imageUrls,omitempty"`
	Aspects     map[string][]string `json:"aspects,omitempty"`
}

type bulkPriceQuantityReq struct {
	Requests []priceQuantityDTO `json:"requests"`
}

type priceQuantityDTO struct {
	SKU                        string             `json:"sku"`
	ShipToLocationAvailability *quantityDTO       `json:"shipToLocationAvailability,omitempty"`
	Offers                     []offerPriceQtyDTO `json:"offers,omitempty"`
}

type quantityDTO struct {
	Quantity int `json:"quantity"`
}

type offerPriceQtyDTO struct {
	OfferID           string     `json:"offerId"`
	Price             *amountDTO `json:"price,omitempty"`
	AvailableQuantity *int       `json:"availableQuantity,omitempty"`
}

type bulkPriceQuantityResp struct {
	Responses []struct {
		StatusCode int    `json:"statusCode"`
		SKU        string `json:"sku"`
		OfferID    string `json:"offerId"`
		Errors     []struct {
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"responses"`
}

// ==================== Offer ====================

type offerDTO struct {
	OfferID             string        `json:"offerId,omitempty"`
	SKU                 string        `json:"sku"`
	MarketplaceID       string        `json:"marketplaceId"`
	Format              string        `json:"format"`
	AvailableQuantity   int           `json:"availableQuantity"`
	CategoryID          string        `json:"categoryId"`
	MerchantLocationKey string        `json:"merchantLocationKey,omitempty"`
	ListingPolicies     listingPolicy `json:"listingPolicies"`
	PricingSummary      struct {
		Price amountDTO `json:"price"`
	} `json:"pricingSummary"`
	Status  string `json:"status,omitempty"`
	Listing *struct {
		ListingID string `json:"listingId"`
	} `json:"listing,omitempty"`
}

type listingPolicy struct {
	FulfillmentPolicyID string `json:"fulfillmentPolicyId"`
	PaymentPolicyID     string `json:"paymentPolicyId"`
	ReturnPolicyID      string `json:"returnPolicyId"`
}

type offersResp struct {
	Offers []offerDTO `json:"offers"`
	Total  int        `json:"total"`
}

type createOfferResp struct {
	OfferID string `json:"offerId"`
}

type publishResp struct {
	ListingID string `json:"listingId"`
}

// ==================== Order ====================

type ordersResp struct {
	Orders []orderDTO `json:"orders"`
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Limit  int        `json:"limit"`
	Next   string     `json:"next"`
}

type orderDTO struct {
	OrderID                string    `json:"orderId"`
	CreationDate           time.Time `json:"creationDate"`
	OrderFulfillmentStatus string    `json:"orderFulfillmentStatus"`
	OrderPaymentStatus     string    `json:"orderPaymentStatus"`
	Buyer                  struct {
		Username                 string `json:"username"`
		BuyerRegistrationAddress struct {
			Email string `json:"email"`
		} `json:"buyerRegistrationAddress"`
	} `json:"buyer"`
	PricingSummary struct {
		DeliveryCost *amountDTO `json:"deliveryCost"`
		Total        amountDTO  `json:"total"`
	} `json:"pricingSummary"`
	FulfillmentStartInstructions []struct {
		ShippingStep struct {
			ShipTo shipToDTO `json:"shipTo"`
		} `json:"shippingStep"`
	} `json:"fulfillmentStartInstructions"`
	LineItems []lineItemDTO `json:"lineItems"`
}

type shipToDTO struct {
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	ContactAddress struct {
		AddressLine1    string `json:"addressLine1"`
		AddressLine2    string `json:"addressLine2"`
		City            string `json:"city"`
		StateOrProvince string `json:"stateOrProvince"`
		PostalCode      string `json:"postalCode"`
		CountryCode     string `json:"countryCode"`
	} `json:"contactAddress"`
	PrimaryPhone struct {
		PhoneNumber string `json:"phoneNumber"`
	} `json:"primaryPhone"`
}

type lineItemDTO struct {
	LineItemID   string    `json:"lineItemId"`
	SKU          string    `json:"sku"`
	Title        string    `json:"title"`
	Quantity     int       `json:"quantity"`
	LineItemCost amountDTO `json:"lineItemCost"`
}

type shippingFulfillmentReq struct {
	LineItems           []fulfillmentLineDTO `json:"lineItems"`
	ShippedDate         string               `json:"shippedDate"`
	ShippingCarrierCode string               `json:"shippingCarrierCode"`
	TrackingNumber      string               `json:"trackingNumber"`
}

type fulfillmentLineDTO struct {
	LineItemID string `json:"lineItemId"`
	Quantity   int    `json:"quantity"`
}

// ==================== 转换 ====================

func (o *orderDTO) toPlatform() platform.MarketOrder {
	out := platform.MarketOrder{
		OrderID:           o.OrderID,
		CreatedAt:         o.CreationDate,
		PaymentStatus:     platform.PaymentStatus(o.OrderPaymentStatus),
		FulfillmentStatus: o.OrderFulfillmentStatus,
		Buyer: platform.Buyer{
			Username: o.Buyer.Username,
			Email:    o.Buyer.BuyerRegistrationAddress.Email,
		},
		Total:    o.PricingSummary.Total.Value,
		Currency: o.PricingSummary.Total.Currency,
	}
	if o.PricingSummary.DeliveryCost != nil {
		out.DeliveryCost = o.PricingSummary.DeliveryCost.Value
	}
	if len(o.FulfillmentStartInstructions) > 0 {
		st := o.FulfillmentStartInstructions[0].ShippingStep.ShipTo
		out.ShipTo = platform.ShipTo{
			FullName:        st.FullName,
			Phone:           st.PrimaryPhone.PhoneNumber,
			Email:           st.Email,
			AddressLine1:    st.ContactAddress.AddressLine1,
			AddressLine2:    st.ContactAddress.AddressLine2,
			City:            st.ContactAddress.City,
			StateOrProvince: st.ContactAddress.StateOrProvince,
			PostalCode:      st.ContactAddress.PostalCode,
			CountryCode:     st.ContactAddress.CountryCode,
		}
	}
	for _, li := range o.LineItems {
		unit := li.LineItemCost.Value
		if li.Quantity > 1 {
			unit = unit.DivRound(decimal.NewFromInt(int64(li.Quantity)), 2)
		}
		out.LineItems = append(out.LineItems, platform.OrderLineItem{
			LineItemID: li.LineItemID,
			SKU:        li.SKU,
			Title:      li.Title,
			Quantity:   li.Quantity,
			UnitPrice:  unit,
		})
	}
	return out
}

func (o *offerDTO) toPlatform() platform.Offer {
	out := platform.Offer{
		OfferID:  o.OfferID,
		SKU:      o.SKU,
		Price:    o.PricingSummary.Price.Value,
		Currency: o.PricingSummary.Price.Currency,
		Quantity: o.AvailableQuantity,
		Status:   o.Status,
		Policies: platform.PolicySet{
			CategoryID:          o.CategoryID,
			FulfillmentPolicyID: o.ListingPolicies.FulfillmentPolicyID,
			PaymentPolicyID:     o.ListingPolicies.PaymentPolicyID,
			ReturnPolicyID:      o.ListingPolicies.ReturnPolicyID,
			MerchantLocationKey: o.MerchantLocationKey,
		},
	}
	if o.Listing != nil {
		out.ListingID = o.Listing.ListingID
	}
	return out
}
