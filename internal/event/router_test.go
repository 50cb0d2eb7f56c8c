package event

import (
	"context"
	"errors"
	"testing"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/service"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubServices struct {
	mapped      map[string]bool
	autoPublish bool
	calls       []string
	itemFail    bool
}

func (s *stubServices) IsMapped(_ context.Context, productID string) (bool, error) {
	return s.mapped[productID], nil
}

func (s *stubServices) Publish(_ context.Context, productID string) (*dto.PublishResult, error) {
	s.calls = append(s.calls, "publish:"+productID)
	return &dto.PublishResult{ProductID: productID, Status: "active"}, nil
}

func (s *stubServices) End(_ context.Context, productID string, reason model.EndReason) (*dto.PublishResult, error) {
	s.calls = append(s.calls, "end:"+productID+":"+string(reason))
	return &dto.PublishResult{ProductID: productID, Status: "ended"}, nil
}

func (s *stubServices) Propagate(_ context.Context, n platform.FulfillmentNotice) (service.PropagateOutcome, error) {
	s.calls = append(s.calls, "fulfill:"+n.CatalogOrderID)
	return service.PropagateFulfilled, nil
}

func (s *stubServices) SyncOrder(_ context.Context, orderID string) (*dto.OrderSyncResult, error) {
	s.calls = append(s.calls, "order:"+orderID)
	return dto.NewOrderSyncResult("r", 10, false), nil
}

func (s *stubServices) GetVariantByInventoryItem(_ context.Context, id string) (*platform.Variant, error) {
	if id == "missing" {
		return nil, platform.NotFound("catalog.variant", id)
	}
	return &platform.Variant{ID: "v1", ProductID: "p-" + id}, nil
}

func (s *stubServices) Snapshot(context.Context) (service.RunConfig, error) {
	return service.RunConfig{AutoPublish: s.autoPublish}, nil
}

type stubSyncer struct {
	name string
	s    *stubServices
}

func (x stubSyncer) SyncProduct(_ context.Context, productID string) (*dto.ItemSyncResult, error) {
	x.s.calls = append(x.s.calls, x.name+":"+productID)
	res := dto.NewItemSyncResult("r", 10, false)
	if x.s.itemFail {
		res.Failed = 1
		res.Errors.Add("CAM-1", errors.New("502"))
	}
	return res, nil
}

func newStubRouter(s *stubServices) *Router {
	return NewRouter(s, stubSyncer{"inventory", s}, stubSyncer{"price", s}, s, s, s, s, logger.NewNop())
}

func TestRouter_Routes(t *testing.T) {
	s := &stubServices{mapped: map[string]bool{"p1": true}}
	r := newStubRouter(s)
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, ProductChanged{ProductID: "p1"}))
	require.NoError(t, r.Handle(ctx, ProductDeleted{ProductID: "p1"}))
	require.NoError(t, r.Handle(ctx, InventoryChanged{InventoryItemID: "55"}))
	require.NoError(t, r.Handle(ctx, InventoryChanged{InventoryItemID: "missing"}))
	require.NoError(t, r.Handle(ctx, OrderFulfilled{Notice: platform.FulfillmentNotice{CatalogOrderID: "c-1"}}))
	require.NoError(t, r.Handle(ctx, MarketplaceOrderCreated{OrderID: "12-1"}))

	assert.Equal(t, []string{
		"inventory:p1", "price:p1",
		"end:p1:deleted",
		"inventory:p-55",
		"fulfill:c-1",
		"order:12-1",
	}, s.calls)
}

func TestRouter_UnmappedProductAutoPublish(t *testing.T) {
	s := &stubServices{mapped: map[string]bool{}}
	r := newStubRouter(s)
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, ProductChanged{ProductID: "p2"}))
	assert.Empty(t, s.calls, "未开启自动刊登时忽略")

	s.autoPublish = true
	require.NoError(t, r.Handle(ctx, ProductChanged{ProductID: "p2"}))
	assert.Equal(t, []string{"publish:p2"}, s.calls)
}

func TestRouter_ItemFailureSurfaces(t *testing.T) {
	s := &stubServices{mapped: map[string]bool{"p1": true}, itemFail: true}
	err := newStubRouter(s).Handle(context.Background(), ProductChanged{ProductID: "p1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAM-1")
}
