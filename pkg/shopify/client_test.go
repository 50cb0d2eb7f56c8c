package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/net"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{ShopDomain: srv.URL, APIVersion: "2024-10", Tokens: net.StaticToken("shpat")})
}

func TestGetProducts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/products.json", r.URL.Path)
		assert.Equal(t, "11,12", r.URL.Query().Get("ids"))
		assert.Equal(t, "shpat", r.Header.Get("X-Shopify-Access-Token"))
		writeJSON(w, http.StatusOK, `{"products":[{"id":11,"title":"Lens","tags":"camera, used ","images":[{"src":"https://img/1.jpg"}],
			"variants":[{"id":101,"product_id":11,"sku":" SKU-1 ","price":"499.99","inventory_quantity":3,"inventory_item_id":9001}]}]}`)
	})

	products, err := c.GetProducts(context.Background(), []string{"11", "12"})
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "11", p.ID)
	assert.Equal(t, []string{"camera", "used"}, p.Tags)
	assert.Equal(t, []string{"https://img/1.jpg"}, p.Images)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "SKU-1", p.Variants[0].SKU)
	assert.Equal(t, "9001", p.Variants[0].InventoryItemID)
	assert.True(t, p.Variants[0].Price.Equal(decimal.RequireFromString("499.99")))
}

func TestGetProducts_TooManyIDs(t *testing.T) {
	c := NewClient(Config{ShopDomain: "shop.example"})
	ids := make([]string, MaxIDsPerRequest+1)
	_, err := c.GetProducts(context.Background(), ids)
	assert.True(t, platform.IsValidation(err))
}

func TestCreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body orderCreateReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		assert.Equal(t, "Jane", body.Order.ShippingAddress.FirstName)
		assert.Equal(t, "Doe", body.Order.ShippingAddress.LastName)
		assert.Equal(t, "ebay, ebay-sync-1", body.Order.Tags)
		assert.False(t, body.Order.SendReceipt)
		require.Len(t, body.Order.LineItems, 2)
		assert.EqualValues(t, 101, body.Order.LineItems[0].VariantID)
		assert.Zero(t, body.Order.LineItems[1].VariantID)

		writeJSON(w, http.StatusCreated, `{"order":{"id":555,"name":"#1001"}}`)
	})

	ref, err := c.CreateOrder(context.Background(), &platform.OrderInput{
		Currency:        "USD",
		FinancialStatus: platform.FinancialPaid,
		ShippingAddress: platform.Address{Name: "Jane Doe", Address1: "1 Main", City: "X", CountryCode: "US"},
		LineItems: []platform.OrderLineInput{
			{VariantID: "101", Title: "Lens", Quantity: 1, Price: decimal.NewFromInt(10)},
			{Title: "Custom", Quantity: 1, Price: decimal.NewFromInt(5)},
		},
		Tags: []string{"ebay", "ebay-sync-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "555", ref.ID)
	assert.Equal(t, "#1001", ref.Name)
}

func TestSearchOrders_ByTag(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-10/graphql.json", r.URL.Path)
		var body graphQLReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tag:'ebay-sync-1'", body.Variables["q"])
		writeJSON(w, http.StatusOK, `{"data":{"orders":{"nodes":[{"id":"gid://shopify/Order/77","name":"#1002","tags":["ebay-sync-1"]}]}}}`)
	})

	orders, err := c.SearchOrders(context.Background(), platform.OrderQuery{Tag: "ebay-sync-1"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "77", orders[0].ID)
	assert.True(t, orders[0].HasTag("EBAY-SYNC-1"))
}

func TestSearchOrders_ByDateWindowFollowsPages(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		assert.Equal(t, "/admin/api/2024-10/orders.json", r.URL.Path)
		switch calls {
		case 1:
			assert.Equal(t, "2026-01-01T00:00:00Z", q.Get("created_at_min"))
			assert.Equal(t, "2026-01-09T00:00:00Z", q.Get("created_at_max"))
			assert.Equal(t, "any", q.Get("status"))
			w.Header().Set("Link", `<https://shop/admin/api/2024-10/orders.json?limit=250&page_info=p2>; rel="next"`)
			writeJSON(w, http.StatusOK, `{"orders":[{"id":1,"name":"#1001","note":"walk-in"}]}`)
		case 2:
			assert.Equal(t, "p2", q.Get("page_info"))
			assert.Empty(t, q.Get("created_at_min"), "page_info requests carry no filters")
			w.Header().Set("Link", `<https://shop/admin/api/2024-10/orders.json?page_info=p1>; rel="previous"`)
			writeJSON(w, http.StatusOK, `{"orders":[{"id":2,"name":"#1002","note":"eBay 12-34"}]}`)
		default:
			t.Errorf("unexpected request #%d", calls)
		}
	})

	orders, err := c.SearchOrders(context.Background(), platform.OrderQuery{
		CreatedFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedTo:   time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "2", orders[1].ID)
	assert.Equal(t, 2, calls)
}

func TestSearchOrders_MaxPages(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Link", `<https://shop/orders.json?page_info=more>; rel="next"`)
		writeJSON(w, http.StatusOK, `{"orders":[{"id":1}]}`)
	})

	orders, err := c.SearchOrders(context.Background(), platform.OrderQuery{CreatedFrom: time.Now(), MaxPages: 3})
	require.NoError(t, err)
	assert.Len(t, orders, 3)
	assert.Equal(t, 3, calls)
}

func TestCreateOrder_NotReplayedAfterGatewayError(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusBadGateway, `{"errors":"upstream"}`)
	})
	c.http.SetRetryCount(3).SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(time.Millisecond)

	_, err := c.CreateOrder(context.Background(), &platform.OrderInput{Currency: "USD"})
	assert.True(t, platform.IsRetryable(err))
	assert.Equal(t, 1, calls, "order creation must not be re-sent")
}

func TestNextPageInfo(t *testing.T) {
	link := `<https://s/orders.json?page_info=prev1>; rel="previous", <https://s/orders.json?limit=5&page_info=next2>; rel="next"`
	assert.Equal(t, "next2", nextPageInfo(link))
	assert.Empty(t, nextPageInfo(""))
	assert.Empty(t, nextPageInfo(`<https://s/orders.json?page_info=prev1>; rel="previous"`))
}

func TestGetProduct_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"errors":"Not Found"}`)
	})
	_, err := c.GetProduct(context.Background(), "1")
	assert.True(t, platform.IsNotFound(err))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
