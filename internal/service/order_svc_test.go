package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/lock"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMarketOrders(m *fakeMarket, n int) []string {
	ids := make([]string, 0, n)
	base := time.Now().Add(-2 * time.Hour)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("12-%05d-%05d", i, i)
		m.orders = append(m.orders, newMarketOrder(id, fmt.Sprintf("CAM-%d", i), base.Add(time.Duration(i)*time.Minute)))
		ids = append(ids, id)
	}
	return ids
}

func TestRunOrderSync_ImportsExactlyOnce(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedMarketOrders(env.market, 5)
	ctx := context.Background()

	first, err := env.orders.RunOrderSync(ctx, dto.OrderWindow{}, false)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Imported)
	assert.Equal(t, 0, first.Failed)
	assert.NotEmpty(t, first.RunID)

	second, err := env.orders.RunOrderSync(ctx, dto.OrderWindow{}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 5, second.Skipped)
	assert.Equal(t, 5, env.catalog.createCalls)

	m, err := env.orderRepo.GetByMarketplaceID(ctx, "12-00001-00001")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.DedupLayerCreated, m.DedupLayer)
	assert.Equal(t, model.OrderMappingSynced, m.Status)
}

func TestRunOrderSync_CrashBetweenCreateAndMapping(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedMarketOrders(env.market, 1)
	ctx := context.Background()

	// 远端创建成功后映射写入失败
	failing := &failingOrderRepo{OrderMappingRepository: env.orderRepo, failNext: true}
	svc := NewOrderService(env.catalog, env.market, failing, env.productRepo, env.settings, env.syncLog, lock.NewLocalLocker(), logger.NewNop())

	first, err := svc.RunOrderSync(ctx, dto.OrderWindow{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)
	assert.Equal(t, 1, first.Warnings.Len())

	m, _ := env.orderRepo.GetByMarketplaceID(ctx, "12-00001-00001")
	assert.Nil(t, m, "映射未写入")

	second, err := svc.RunOrderSync(ctx, dto.OrderWindow{}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, env.catalog.createCalls, "不会重复创建")

	m, err = env.orderRepo.GetByMarketplaceID(ctx, "12-00001-00001")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.DedupLayerTag, m.DedupLayer)
	assert.False(t, m.LowConfidence)
}

func TestRunOrderSync_SourceIdentifierLayer(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ids := seedMarketOrders(env.market, 1)
	env.catalog.seedOrder(platform.Order{ID: "c-manual", Name: "#900", SourceIdentifier: ids[0]})

	res, err := env.orders.RunOrderSync(context.Background(), dto.OrderWindow{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, env.catalog.createCalls)

	m, _ := env.orderRepo.GetByMarketplaceID(context.Background(), ids[0])
	require.NotNil(t, m)
	assert.Equal(t, model.DedupLayerSourceIdentifier, m.DedupLayer)
	assert.Equal(t, "c-manual", m.CatalogOrderID)
}

func TestRunOrderSync_TextualFallbackIsLowConfidence(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ids := seedMarketOrders(env.market, 1)
	env.catalog.seedOrder(platform.Order{
		ID:   "c-legacy",
		Name: "#800",
		Note: "eBay order " + ids[0] + " entered by hand",
	})

	res, err := env.orders.RunOrderSync(context.Background(), dto.OrderWindow{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Imported)
	assert.True(t, res.Warnings.Has(ids[0]))
	assert.Equal(t, 0, env.catalog.createCalls)

	m, _ := env.orderRepo.GetByMarketplaceID(context.Background(), ids[0])
	require.NotNil(t, m)
	assert.Equal(t, model.DedupLayerNoteText, m.DedupLayer)
	assert.True(t, m.LowConfidence)

	logs, _, err := env.logRepo.List(context.Background(), repository.SyncLogFilter{EntityType: model.EntityOrder, EntityID: ids[0]})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Detail, "deduplicated via "+model.DedupLayerNoteText)
}

func TestRunOrderSync_TextualFallbackWindowIsBounded(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	created := time.Now().AddDate(0, 0, -40)
	env.market.orders = append(env.market.orders, newMarketOrder("12-00040-00040", "CAM-40", created))
	// 同一编号但远晚于下单时间的订单不在扫描窗口内
	env.catalog.seedOrder(platform.Order{
		ID:        "c-unrelated",
		Note:      "eBay order 12-00040-00040",
		CreatedAt: time.Now(),
	})

	res, err := env.orders.RunOrderSync(context.Background(), dto.OrderWindow{All: true}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported, "dry-run import outside the window")

	require.Len(t, env.catalog.textQueries, 1)
	q := env.catalog.textQueries[0]
	assert.WithinDuration(t, created.Add(-24*time.Hour), q.CreatedFrom, time.Second)
	assert.WithinDuration(t, created.AddDate(0, 0, 7), q.CreatedTo, time.Second)
	assert.Positive(t, q.MaxPages)
}

func TestRunOrderSync_MalformedOrderFailsAlone(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ids := seedMarketOrders(env.market, 10)
	env.market.orders[6].ShipTo = platform.ShipTo{FullName: "No Address"}

	res, err := env.orders.RunOrderSync(context.Background(), dto.OrderWindow{}, false)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Imported)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors.Items, 1)
	assert.Equal(t, ids[6], res.Errors.Items[0].ID)
	assert.Contains(t, res.Errors.Items[0].Reason, "Address1")

	m, _ := env.orderRepo.GetByMarketplaceID(context.Background(), ids[6])
	assert.Nil(t, m, "失败订单不写映射，下次运行重试")
}

func TestRunOrderSync_DryRunWritesNothing(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedMarketOrders(env.market, 3)

	res, err := env.orders.RunOrderSync(context.Background(), dto.OrderWindow{}, true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 0, env.catalog.createCalls)

	_, total, err := env.orderRepo.List(context.Background(), repositoryAllOrders())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRunOrderSync_PaginatesAndRespectsDisabled(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	seedMarketOrders(env.market, 7)
	env.settings = NewSettingsService(env.settingRepo, func() RunConfig {
		c := DefaultRunConfig(testSyncConfig())
		c.OrderPageSize = 3
		return c
	}(), logger.NewNop())
	env.orders = NewOrderService(env.catalog, env.market, env.orderRepo, env.productRepo, env.settings, env.syncLog, lock.NewLocalLocker(), logger.NewNop())

	res, err := env.orders.RunOrderSync(context.Background(), dto.OrderWindow{All: true}, false)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Imported)

	env.setSetting(t, model.SettingOrderSyncEnabled, "false")
	res, err = env.orders.RunOrderSync(context.Background(), dto.OrderWindow{}, false)
	require.NoError(t, err)
	assert.True(t, res.Disabled)
	assert.Equal(t, 0, res.Imported+res.Skipped)
}

func TestRunOrderSync_FirstPageFailureIsError(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.market.getOrdersErr = platform.Transient("marketplace.get_orders", fmt.Errorf("timeout"))

	_, err := env.orders.RunOrderSync(context.Background(), dto.OrderWindow{}, false)
	assert.Error(t, err)
}

func TestRunOrderSync_ColdAndWarmStoresAgree(t *testing.T) {
	catalog := newFakeCatalog()
	market := newFakeMarket()
	ids := seedMarketOrders(market, 4)
	ctx := context.Background()

	warm := newTestEnv(t, catalog, market)
	_, err := warm.orders.RunOrderSync(ctx, dto.OrderWindow{}, false)
	require.NoError(t, err)
	warmResult, err := warm.orders.RunOrderSync(ctx, dto.OrderWindow{}, false)
	require.NoError(t, err)

	// 本地库清空，远端状态不变
	cold := newTestEnv(t, catalog, market)
	coldResult, err := cold.orders.RunOrderSync(ctx, dto.OrderWindow{}, false)
	require.NoError(t, err)

	assert.Equal(t, warmResult.Imported, coldResult.Imported)
	assert.Equal(t, warmResult.Skipped, coldResult.Skipped)
	assert.Equal(t, 4, catalog.createCalls)

	for _, id := range ids {
		w, _ := warm.orderRepo.GetByMarketplaceID(ctx, id)
		c, _ := cold.orderRepo.GetByMarketplaceID(ctx, id)
		require.NotNil(t, w)
		require.NotNil(t, c)
		assert.Equal(t, w.CatalogOrderID, c.CatalogOrderID)
	}
}

func TestMapMarketplaceOrder(t *testing.T) {
	o := newMarketOrder("12-1", "CAM-1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	o.LineItems = append(o.LineItems, platform.OrderLineItem{LineItemID: "li-2", SKU: "UNMAPPED", Title: "Strap", Quantity: 2, UnitPrice: mustDecimal("5.00")})
	o.PaymentStatus = platform.PaymentFullyRefunded

	in := MapMarketplaceOrder(&o, MapOptions{Currency: "USD", DedupTag: "ebay-sync-12-1", VariantBy: map[string]string{"CAM-1": "v1"}})

	assert.Equal(t, platform.FinancialRefunded, in.FinancialStatus)
	require.Len(t, in.LineItems, 2)
	assert.Equal(t, "v1", in.LineItems[0].VariantID)
	assert.Empty(t, in.LineItems[1].VariantID, "未映射 SKU 按自定义行导入")
	assert.Contains(t, in.Tags, "ebay-sync-12-1")
	assert.Equal(t, "12-1", in.SourceIdentifier)
	assert.False(t, in.SendReceipt)
	assert.False(t, in.SendFulfillmentReceipt)
	require.Len(t, in.ShippingLines, 1)
	assert.True(t, in.ShippingLines[0].Price.Equal(mustDecimal("9.99")))
	assert.NoError(t, ValidateOrderInput(in))

	tests := []struct {
		in   platform.PaymentStatus
		want platform.FinancialStatus
	}{
		{platform.PaymentPaid, platform.FinancialPaid},
		{platform.PaymentPending, platform.FinancialPending},
		{platform.PaymentFailed, platform.FinancialVoided},
		{platform.PaymentPartiallyRefunded, platform.FinancialPartiallyRefunded},
		{"UNKNOWN", platform.FinancialPending},
	}
	for _, tt := range tests {
		if got := financialStatus(tt.in); got != tt.want {
			t.Errorf("financialStatus(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRunOrderSync_ResolvesMappedVariants(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	_, _, err := env.productRepo.CreateIfAbsent(ctx, &model.ProductMapping{CatalogProductID: "p1", CatalogVariantID: "v-77", MarketplaceItemSKU: "CAM-1"})
	require.NoError(t, err)
	seedMarketOrders(env.market, 1)

	_, err = env.orders.RunOrderSync(ctx, dto.OrderWindow{}, false)
	require.NoError(t, err)
	require.Len(t, env.catalog.inputs, 1)
	assert.Equal(t, "v-77", env.catalog.inputs[0].LineItems[0].VariantID)
}
