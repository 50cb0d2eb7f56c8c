package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupInbox(t *testing.T) repository.WebhookEventRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.WebhookEvent{}))
	return repository.NewWebhookEventRepository(db)
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
}

func (r *recorder) Handle(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e.Key())
	return r.fail[e.Key()]
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestDispatcher_ProcessesInOrderAndMarksInbox(t *testing.T) {
	inbox := setupInbox(t)
	ctx := context.Background()

	var ids []int64
	for _, d := range []string{"d1", "d2", "d3"} {
		row := &model.WebhookEvent{Source: model.EventSourceCatalog, DeliveryID: d, Topic: TopicProductUpdate, Status: model.WebhookStatusQueued}
		_, err := inbox.Record(ctx, row)
		require.NoError(t, err)
		ids = append(ids, row.ID)
	}

	rec := &recorder{fail: map[string]error{"product:2": errors.New("boom")}}
	d := NewDispatcher(rec, inbox, Options{QueueSize: 8}, logger.NewNop())
	for i, id := range ids {
		require.NoError(t, d.Enqueue(ctx, Envelope{
			InboxID: id,
			Source:  model.EventSourceCatalog,
			Event:   ProductChanged{ProductID: string(rune('1' + i))},
		}))
	}

	runCtx, cancel := context.WithCancel(ctx)
	go d.Run(runCtx)
	require.Eventually(t, func() bool { return len(rec.keys()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	d.Wait()

	assert.Equal(t, []string{"product:1", "product:2", "product:3"}, rec.keys())

	rows, err := inbox.ListRecent(ctx, model.EventSourceCatalog, 10)
	require.NoError(t, err)
	status := map[string]string{}
	for _, r := range rows {
		status[r.DeliveryID] = r.Status
	}
	assert.Equal(t, model.WebhookStatusProcessed, status["d1"])
	assert.Equal(t, model.WebhookStatusFailed, status["d2"])
	assert.Equal(t, model.WebhookStatusProcessed, status["d3"])
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(&recorder{}, nil, Options{QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond}, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, d.Enqueue(ctx, Envelope{Event: ProductChanged{ProductID: "1"}}))
	assert.Equal(t, 1, d.Depth())
	assert.ErrorIs(t, d.Enqueue(ctx, Envelope{Event: ProductChanged{ProductID: "2"}}), ErrQueueFull)
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil, Options{QueueSize: 4}, logger.NewNop())
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Enqueue(ctx, Envelope{Event: MarketplaceOrderCreated{OrderID: id}}))
	}

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	d.Run(runCtx)

	assert.Len(t, rec.keys(), 3)
	assert.ErrorIs(t, d.Enqueue(ctx, Envelope{Event: MarketplaceOrderCreated{OrderID: "late"}}), ErrDispatcherClosed)
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	var calls int
	var mu sync.Mutex
	h := HandlerFunc(func(_ context.Context, e Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		if e.Key() == "product:bad" {
			panic("nil map")
		}
		return nil
	})
	d := NewDispatcher(h, nil, Options{QueueSize: 4}, logger.NewNop())
	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, Envelope{Event: ProductChanged{ProductID: "bad"}}))
	require.NoError(t, d.Enqueue(ctx, Envelope{Event: ProductChanged{ProductID: "ok"}}))

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	d.Run(runCtx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}
