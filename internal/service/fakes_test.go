package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/config"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/lock"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ==================== fakeCatalog ====================

type fakeCatalog struct {
	mu          sync.Mutex
	products    map[string]*platform.Product
	levels      map[string]int // inventoryItemID -> available
	orders      []platform.Order
	inputs      []platform.OrderInput
	createCalls int
	productsErr map[string]error // 包含该商品 ID 的批量读取失败
	seq         int
	textQueries []platform.OrderQuery
}

var _ platform.CatalogClient = (*fakeCatalog)(nil)

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products:    make(map[string]*platform.Product),
		levels:      make(map[string]int),
		productsErr: make(map[string]error),
	}
}

func (c *fakeCatalog) put(p *platform.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *fakeCatalog) setQuantity(productID, sku string, q int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productID].VariantBySKU(sku).InventoryQuantity = q
}

func (c *fakeCatalog) setPrice(productID, sku, price string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productID].VariantBySKU(sku).Price = decimal.RequireFromString(price)
}

func (c *fakeCatalog) GetProducts(_ context.Context, ids []string) ([]platform.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []platform.Product
	for _, id := range ids {
		if err := c.productsErr[id]; err != nil {
			return nil, err
		}
		if p, ok := c.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (*platform.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, platform.NotFound("catalog.get_product", id)
	}
	cp := cloneProduct(p)
	return &cp, nil
}

func (c *fakeCatalog) GetVariantByInventoryItem(_ context.Context, inventoryItemID string) (*platform.Variant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		for _, v := range p.Variants {
			if v.InventoryItemID == inventoryItemID {
				vv := v
				return &vv, nil
			}
		}
	}
	return nil, platform.NotFound("catalog.variant_by_inventory_item", inventoryItemID)
}

func (c *fakeCatalog) GetInventoryLevel(_ context.Context, inventoryItemID, locationID string) (*platform.InventoryLevel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.levels[inventoryItemID]
	if !ok {
		return nil, platform.NotFound("catalog.inventory_level", inventoryItemID)
	}
	return &platform.InventoryLevel{InventoryItemID: inventoryItemID, LocationID: locationID, Available: q}, nil
}

func (c *fakeCatalog) CreateOrder(_ context.Context, in *platform.OrderInput) (*platform.OrderRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createCalls++
	c.seq++
	o := platform.Order{
		ID:               fmt.Sprintf("c-%d", c.seq),
		Name:             fmt.Sprintf("#%d", 1000+c.seq),
		Tags:             append([]string(nil), in.Tags...),
		Note:             in.Note,
		NoteAttributes:   append([]platform.NoteAttribute(nil), in.NoteAttributes...),
		SourceIdentifier: in.SourceIdentifier,
		CreatedAt:        time.Now(),
	}
	c.orders = append(c.orders, o)
	c.inputs = append(c.inputs, *in)
	return &platform.OrderRef{ID: o.ID, Name: o.Name}, nil
}

// seedOrder 模拟 Catalog 中已存在的订单（人工创建或其它渠道）
func (c *fakeCatalog) seedOrder(o platform.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	c.orders = append(c.orders, o)
}

func (c *fakeCatalog) SearchOrders(_ context.Context, q platform.OrderQuery) ([]platform.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []platform.Order
	for _, o := range c.orders {
		switch {
		case q.Tag != "":
			if !o.HasTag(q.Tag) {
				continue
			}
		case q.SourceIdentifier != "":
			if o.SourceIdentifier != q.SourceIdentifier {
				continue
			}
		case !q.CreatedFrom.IsZero():
			c.textQueries = append(c.textQueries, q)
			if o.CreatedAt.Before(q.CreatedFrom) || (!q.CreatedTo.IsZero() && o.CreatedAt.After(q.CreatedTo)) {
				continue
			}
		}
		out = append(out, o)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetOrder(_ context.Context, id string) (*platform.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.orders {
		if c.orders[i].ID == id {
			o := c.orders[i]
			return &o, nil
		}
	}
	return nil, platform.NotFound("catalog.get_order", id)
}

func (c *fakeCatalog) fulfill(id, company, tracking string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.orders {
		if c.orders[i].ID == id {
			c.orders[i].Fulfillments = append(c.orders[i].Fulfillments, platform.Fulfillment{
				ID: "f-" + id, Status: "success", TrackingCompany: company, TrackingNumber: tracking, CreatedAt: time.Now(),
			})
		}
	}
}

func cloneProduct(p *platform.Product) platform.Product {
	cp := *p
	cp.Variants = append([]platform.Variant(nil), p.Variants...)
	return cp
}

// ==================== fakeMarket ====================

type fakeMarket struct {
	mu            sync.Mutex
	items         map[string]*platform.InventoryItem
	offers        map[string]*platform.Offer
	orders        []platform.MarketOrder
	fulfillments  map[string][]platform.ShippingFulfillment
	seq           int
	itemCalls     int
	upsertCalls   int
	publishCalls  int
	withdrawCalls int
	qtyUpdates    int
	priceUpdates  int
	publishErr    error
	getOrdersErr  error
}

var _ platform.MarketplaceClient = (*fakeMarket)(nil)

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		items:        make(map[string]*platform.InventoryItem),
		offers:       make(map[string]*platform.Offer),
		fulfillments: make(map[string][]platform.ShippingFulfillment),
	}
}

func (m *fakeMarket) CreateOrReplaceInventoryItem(_ context.Context, item *platform.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemCalls++
	cp := *item
	m.items[item.SKU] = &cp
	return nil
}

func (m *fakeMarket) GetInventoryItem(_ context.Context, sku string) (*platform.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[sku]
	if !ok {
		return nil, platform.NotFound("marketplace.get_inventory_item", sku)
	}
	cp := *it
	return &cp, nil
}

func (m *fakeMarket) UpdateQuantity(_ context.Context, sku string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[sku]
	if !ok {
		return platform.NotFound("marketplace.update_quantity", sku)
	}
	m.qtyUpdates++
	it.Quantity = quantity
	return nil
}

func (m *fakeMarket) UpsertOffer(_ context.Context, offer *platform.Offer) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	for id, o := range m.offers {
		if o.SKU == offer.SKU {
			cp := *offer
			cp.OfferID, cp.Status, cp.ListingID = id, o.Status, o.ListingID
			m.offers[id] = &cp
			return id, nil
		}
	}
	m.seq++
	id := fmt.Sprintf("offer-%d", m.seq)
	cp := *offer
	cp.OfferID, cp.Status = id, "UNPUBLISHED"
	m.offers[id] = &cp
	return id, nil
}

func (m *fakeMarket) GetOffer(_ context.Context, offerID string) (*platform.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok {
		return nil, platform.NotFound("marketplace.get_offer", offerID)
	}
	cp := *o
	return &cp, nil
}

func (m *fakeMarket) UpdateOfferPrice(_ context.Context, offerID string, price decimal.Decimal, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok {
		return platform.NotFound("marketplace.update_price", offerID)
	}
	m.priceUpdates++
	o.Price, o.Currency = price, currency
	return nil
}

func (m *fakeMarket) PublishOffer(_ context.Context, offerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return "", m.publishErr
	}
	o, ok := m.offers[offerID]
	if !ok {
		return "", platform.NotFound("marketplace.publish", offerID)
	}
	m.publishCalls++
	m.seq++
	o.Status = "PUBLISHED"
	o.ListingID = fmt.Sprintf("listing-%d", m.seq)
	return o.ListingID, nil
}

func (m *fakeMarket) WithdrawOffer(_ context.Context, offerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok {
		return platform.NotFound("marketplace.withdraw", offerID)
	}
	m.withdrawCalls++
	o.Status = "UNPUBLISHED"
	return nil
}

func (m *fakeMarket) GetOrders(_ context.Context, f platform.OrderFilter) (*platform.OrderPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getOrdersErr != nil {
		return nil, m.getOrdersErr
	}
	var matched []platform.MarketOrder
	for _, o := range m.orders {
		if f.CreatedFrom != nil && o.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && o.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		matched = append(matched, o)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	start := f.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return &platform.OrderPage{
		Orders:  append([]platform.MarketOrder(nil), matched[start:end]...),
		Total:   len(matched),
		Offset:  f.Offset,
		HasNext: end < len(matched),
	}, nil
}

func (m *fakeMarket) GetOrder(_ context.Context, orderID string) (*platform.MarketOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].OrderID == orderID {
			o := m.orders[i]
			return &o, nil
		}
	}
	return nil, platform.NotFound("marketplace.get_order", orderID)
}

func (m *fakeMarket) CreateShippingFulfillment(_ context.Context, orderID string, f *platform.ShippingFulfillment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fulfillments[orderID] = append(m.fulfillments[orderID], *f)
	return fmt.Sprintf("ful-%s-%d", orderID, len(m.fulfillments[orderID])), nil
}

func (m *fakeMarket) offerFor(sku string) *platform.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offers {
		if o.SKU == sku {
			cp := *o
			return &cp
		}
	}
	return nil
}

// ==================== 测试环境 ====================

type testEnv struct {
	db          *gorm.DB
	catalog     *fakeCatalog
	market      *fakeMarket
	productRepo repository.ProductMappingRepository
	orderRepo   repository.OrderMappingRepository
	settingRepo repository.SettingRepository
	logRepo     repository.SyncLogRepository

	settings    *SettingsService
	syncLog     *SyncLogService
	listings    *ListingService
	orders      *OrderService
	inventory   *InventoryService
	prices      *PriceService
	fulfillment *FulfillmentService
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		CatalogBatchSize:  250,
		OrderPageSize:     50,
		OrderLookbackDays: 7,
		WriteDelay:        0,
		RunTimeout:        time.Minute,
		MaxErrors:         50,
		Currency:          "USD",
		Condition:         "USED_EXCELLENT",
		DedupTagPrefix:    "ebay-sync-",
	}
}

// newTestEnv 内存库 + 假平台客户端，catalog / market 为 nil 时新建
func newTestEnv(t *testing.T, catalog *fakeCatalog, market *fakeMarket) *testEnv {
	t.Helper()
	if catalog == nil {
		catalog = newFakeCatalog()
	}
	if market == nil {
		market = newFakeMarket()
	}
	db := setupServiceTestDB(t)
	log := logger.NewNop()
	locker := lock.NewLocalLocker()

	env := &testEnv{
		db:          db,
		catalog:     catalog,
		market:      market,
		productRepo: repository.NewProductMappingRepository(db),
		orderRepo:   repository.NewOrderMappingRepository(db),
		settingRepo: repository.NewSettingRepository(db),
		logRepo:     repository.NewSyncLogRepository(db),
	}
	env.settings = NewSettingsService(env.settingRepo, DefaultRunConfig(testSyncConfig()), log)
	env.syncLog = NewSyncLogService(env.logRepo, log)
	env.listings = NewListingService(catalog, market, env.productRepo, env.settings, env.syncLog, locker, log)
	env.orders = NewOrderService(catalog, market, env.orderRepo, env.productRepo, env.settings, env.syncLog, locker, log)
	env.inventory = NewInventoryService(catalog, market, env.productRepo, env.listings, env.settings, env.syncLog, locker, log)
	env.prices = NewPriceService(catalog, market, env.productRepo, env.settings, env.syncLog, locker, log)
	env.fulfillment = NewFulfillmentService(catalog, market, env.orderRepo, env.settings, env.syncLog, locker, log)
	return env
}

// withPolicies 写入完整的策略配置
func (e *testEnv) withPolicies(t *testing.T) *testEnv {
	t.Helper()
	err := e.settingRepo.Upsert(context.Background(), map[string]string{
		model.SettingCategoryID:          "261186",
		model.SettingFulfillmentPolicyID: "fp-1",
		model.SettingPaymentPolicyID:     "pp-1",
		model.SettingReturnPolicyID:      "rp-1",
		model.SettingMerchantLocationKey: "warehouse",
	})
	if err != nil {
		t.Fatalf("写入策略配置失败: %v", err)
	}
	return e
}

func (e *testEnv) setSetting(t *testing.T, key, value string) {
	t.Helper()
	if err := e.settingRepo.Upsert(context.Background(), map[string]string{key: value}); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
}

// ==================== 数据构造 ====================

func newProduct(id string, variants ...platform.Variant) *platform.Product {
	for i := range variants {
		variants[i].ProductID = id
	}
	return &platform.Product{
		ID:       id,
		Title:    "Vintage Camera " + id,
		BodyHTML: "<p>Works great</p>",
		Vendor:   "Canon",
		Status:   "active",
		Images:   []string{"https://cdn.example.com/" + id + ".jpg"},
		Variants: variants,
	}
}

func newVariant(id, sku string, qty int, price string) platform.Variant {
	return platform.Variant{
		ID:                id,
		SKU:               sku,
		Title:             "Default Title",
		Price:             decimal.RequireFromString(price),
		InventoryQuantity: qty,
		InventoryItemID:   "inv-" + id,
	}
}

func newMarketOrder(id, sku string, created time.Time) platform.MarketOrder {
	return platform.MarketOrder{
		OrderID:       id,
		CreatedAt:     created,
		PaymentStatus: platform.PaymentPaid,
		Buyer:         platform.Buyer{Username: "buyer_" + strings.ToLower(id), Email: "buyer@example.com"},
		ShipTo: platform.ShipTo{
			FullName:        "Jane Doe",
			AddressLine1:    "1 Main St",
			City:            "Springfield",
			StateOrProvince: "IL",
			PostalCode:      "62701",
			CountryCode:     "US",
		},
		LineItems: []platform.OrderLineItem{
			{LineItemID: "li-" + id, SKU: sku, Title: "Camera", Quantity: 1, UnitPrice: decimal.RequireFromString("120.00")},
		},
		DeliveryCost: decimal.RequireFromString("9.99"),
		Total:        decimal.RequireFromString("129.99"),
		Currency:     "USD",
	}
}

// failingOrderRepo 第一次写映射失败，模拟远端创建成功后进程崩溃
type failingOrderRepo struct {
	repository.OrderMappingRepository
	mu       sync.Mutex
	failNext bool
}

func (r *failingOrderRepo) Create(ctx context.Context, m *model.OrderMapping) (bool, error) {
	r.mu.Lock()
	fail := r.failNext
	r.failNext = false
	r.mu.Unlock()
	if fail {
		return false, fmt.Errorf("connection reset")
	}
	return r.OrderMappingRepository.Create(ctx, m)
}

func repositoryAllOrders() repository.OrderMappingFilter {
	return repository.OrderMappingFilter{Page: 1, PageSize: 200}
}
