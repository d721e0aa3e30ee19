package inventory_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app "github.com/xiebiao/freshmart/internal/application/inventory"
	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/freshmart/internal/testutil/dbtest"
	"github.com/xiebiao/freshmart/pkg/clock"
)

var start = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// mockPublisher records published events
type mockPublisher struct {
	mock.Mock
}

func (p *mockPublisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	return p.Called(ctx, routingKey, message).Error(0)
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) published(routingKey string) []interface{} {
	var out []interface{}
	for _, c := range p.Calls {
		if c.Method == "Publish" && c.Arguments.String(1) == routingKey {
			out = append(out, c.Arguments.Get(2))
		}
	}
	return out
}

type fixture struct {
	svc       domain.Service
	tx        *mysql.TxManager
	cache     *redis.AvailabilityCache
	events    *mockPublisher
	clock     *clock.Fixed
	create    *app.CreateBatchUseCase
	check     *app.CheckAvailabilityUseCase
	deduct    *app.DeductForOrderUseCase
	release   *app.ReleaseForOrderUseCase
	restock   *app.RestockBatchUseCase
	cancel    *app.CancelBatchUseCase
	sweep     *app.SweepExpiredUseCase
	get       *app.GetBatchUseCase
	movements *app.ListMovementsUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFixed(start)
	db := dbtest.Open(t, clk)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := mysql.NewBatchRepository(db)
	movements := mysql.NewMovementRepository(db)
	requests := mysql.NewDeductionRequestRepository(db)

	f := &fixture{
		tx:     mysql.NewTxManager(db),
		cache:  redis.NewAvailabilityCache(client, time.Minute),
		events: &mockPublisher{},
		clock:  clk,
	}
	f.events.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.svc = domain.NewService(repo, movements, f.tx, clk)

	f.create = app.NewCreateBatchUseCase(f.svc, f.tx, f.cache, f.events, clk, nil)
	f.check = app.NewCheckAvailabilityUseCase(f.svc, f.cache, nil)
	f.deduct = app.NewDeductForOrderUseCase(f.svc, requests, movements, f.tx, f.cache, f.events, clk, nil)
	f.release = app.NewReleaseForOrderUseCase(f.svc, requests, movements, f.tx, f.cache, f.events, clk, nil)
	f.restock = app.NewRestockBatchUseCase(f.svc, f.tx, f.cache, f.events, clk, nil)
	f.cancel = app.NewCancelBatchUseCase(f.svc, f.tx, f.cache, f.events, clk, nil)
	f.sweep = app.NewSweepExpiredUseCase(f.svc, f.tx, f.cache, f.events, 0, clk, nil)
	f.get = app.NewGetBatchUseCase(f.svc)
	f.movements = app.NewListMovementsUseCase(f.svc)
	return f
}

func (f *fixture) batch(t *testing.T, product, variant string, qty int64) *app.BatchResponse {
	t.Helper()
	b, err := f.create.Execute(context.Background(), app.CreateBatchRequest{
		StoreID: "store-1", ProductID: product, VariantSKU: variant, InitialQuantity: qty,
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return b
}

func (f *fixture) available(t *testing.T, product, variant string) int64 {
	t.Helper()
	resp, err := f.check.Execute(context.Background(), app.CheckAvailabilityRequest{
		StoreID: "store-1", ProductID: product, VariantSKU: variant, Quantity: 1,
	})
	require.NoError(t, err)
	return resp.AvailableQuantity
}

func item(product, variant string, qty int64) app.StockItem {
	return app.StockItem{StoreID: "store-1", ProductID: product, VariantSKU: variant, Quantity: qty}
}

func TestCreateBatch_PublishesEvent(t *testing.T) {
	f := newFixture(t)
	b := f.batch(t, "apple", "apple-1kg", 10)

	assert.Equal(t, "active", b.Status)
	assert.Equal(t, int64(10), b.AvailableQuantity)

	events := f.events.published(app.EventBatchCreated)
	require.Len(t, events, 1)
	assert.Equal(t, b.BatchID, events[0].(app.BatchEvent).BatchID)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 5)
	ctx := context.Background()

	resp, err := f.check.Execute(ctx, app.CheckAvailabilityRequest{
		StoreID: "store-1", ProductID: "apple", VariantSKU: "apple-1kg", Quantity: 5,
	})
	require.NoError(t, err)
	assert.True(t, resp.Available)
	assert.False(t, resp.Cached)

	resp, err = f.check.Execute(ctx, app.CheckAvailabilityRequest{
		StoreID: "store-1", ProductID: "apple", VariantSKU: "apple-1kg", Quantity: 6,
	})
	require.NoError(t, err)
	assert.False(t, resp.Available)
	assert.Equal(t, int64(5), resp.AvailableQuantity)

	_, err = f.check.Execute(ctx, app.CheckAvailabilityRequest{
		StoreID: "store-1", ProductID: "apple", VariantSKU: "apple-1kg", Quantity: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestCheckAvailability_CachedRead(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 5)
	ctx := context.Background()
	req := app.CheckAvailabilityRequest{
		StoreID: "store-1", ProductID: "apple", VariantSKU: "apple-1kg", Quantity: 1, AllowCached: true,
	}

	first, err := f.check.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.check.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int64(5), second.AvailableQuantity)

	// a deduction drops the cached value
	_, err = f.deduct.Execute(ctx, app.DeductForOrderRequest{Items: []app.StockItem{item("apple", "apple-1kg", 2)}})
	require.NoError(t, err)

	third, err := f.check.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, int64(3), third.AvailableQuantity)
}

func TestDeductForOrder_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	apple := f.batch(t, "apple", "apple-1kg", 10)
	f.batch(t, "milk", "milk-1l", 2)

	_, err := f.deduct.Execute(context.Background(), app.DeductForOrderRequest{
		OrderRef: "ORD-1",
		Items: []app.StockItem{
			item("apple", "apple-1kg", 4),
			item("milk", "milk-1l", 3),
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	b, err := f.get.Execute(context.Background(), apple.BatchID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.AvailableQuantity)
	assert.Empty(t, f.events.published(app.EventStockDeducted))
}

func TestDeductForOrder_MergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 5)

	_, err := f.deduct.Execute(context.Background(), app.DeductForOrderRequest{
		Items: []app.StockItem{item("apple", "apple-1kg", 3), item("apple", "apple-1kg", 3)},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, int64(5), f.available(t, "apple", "apple-1kg"))

	resp, err := f.deduct.Execute(context.Background(), app.DeductForOrderRequest{
		Items: []app.StockItem{item("apple", "apple-1kg", 2), item("apple", "apple-1kg", 3)},
	})
	require.NoError(t, err)
	require.Len(t, resp.Allocations, 1)
	assert.Equal(t, int64(5), resp.Allocations[0].Quantity)
	assert.True(t, resp.Allocations[0].Depleted)
	assert.NotEmpty(t, resp.OrderRef)
}

func TestDeductForOrder_RejectsBadItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.deduct.Execute(ctx, app.DeductForOrderRequest{})
	assert.ErrorIs(t, err, domain.ErrEmptyItems)

	_, err = f.deduct.Execute(ctx, app.DeductForOrderRequest{Items: []app.StockItem{item("apple", "apple-1kg", 0)}})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.deduct.Execute(ctx, app.DeductForOrderRequest{Items: []app.StockItem{{ProductID: "apple", Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrMissingStoreID)
}

func TestDeductForOrder_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 10)
	ctx := context.Background()
	req := app.DeductForOrderRequest{
		OrderRef:       "ORD-7",
		IdempotencyKey: "key-7",
		Items:          []app.StockItem{item("apple", "apple-1kg", 4)},
	}

	first, err := f.deduct.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.deduct.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderRef, second.OrderRef)
	require.Len(t, second.Allocations, 1)
	assert.Equal(t, first.Allocations[0].BatchID, second.Allocations[0].BatchID)
	assert.Equal(t, int64(4), second.Allocations[0].Quantity)

	assert.Equal(t, int64(6), f.available(t, "apple", "apple-1kg"))
	assert.Len(t, f.events.published(app.EventStockDeducted), 1)
}

func TestDeductForOrder_FIFOAcrossBatches(t *testing.T) {
	f := newFixture(t)
	older := f.batch(t, "apple", "apple-1kg", 3)
	newer := f.batch(t, "apple", "apple-1kg", 10)

	resp, err := f.deduct.Execute(context.Background(), app.DeductForOrderRequest{
		Items: []app.StockItem{item("apple", "apple-1kg", 5)},
	})
	require.NoError(t, err)
	require.Len(t, resp.Allocations, 2)
	assert.Equal(t, older.BatchID, resp.Allocations[0].BatchID)
	assert.Equal(t, int64(3), resp.Allocations[0].Quantity)
	assert.True(t, resp.Allocations[0].Depleted)
	assert.Equal(t, newer.BatchID, resp.Allocations[1].BatchID)
	assert.Equal(t, int64(2), resp.Allocations[1].Quantity)

	depleted := f.events.published(app.EventBatchDepleted)
	require.Len(t, depleted, 1)
	assert.Equal(t, older.BatchID, depleted[0].(app.BatchEvent).BatchID)
}

func TestDeductForOrder_JoinsOuterTransaction(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 10)
	rollback := errors.New("order insert failed")

	err := f.tx.Transaction(context.Background(), func(ctx context.Context) error {
		_, err := f.deduct.Execute(ctx, app.DeductForOrderRequest{
			OrderRef: "ORD-9",
			Items:    []app.StockItem{item("apple", "apple-1kg", 4)},
		})
		require.NoError(t, err)
		assert.Empty(t, f.events.published(app.EventStockDeducted), "events wait for the outer commit")
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	assert.Equal(t, int64(10), f.available(t, "apple", "apple-1kg"))
	assert.Empty(t, f.events.published(app.EventStockDeducted))
}

func TestReleaseForOrder(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 3)
	f.batch(t, "apple", "apple-1kg", 10)
	ctx := context.Background()

	_, err := f.deduct.Execute(ctx, app.DeductForOrderRequest{
		OrderRef: "ORD-2",
		Items:    []app.StockItem{item("apple", "apple-1kg", 5)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), f.available(t, "apple", "apple-1kg"))

	resp, err := f.release.Execute(ctx, app.ReleaseForOrderRequest{OrderRef: "ORD-2", Reason: "customer cancelled"})
	require.NoError(t, err)
	assert.False(t, resp.AlreadyReleased)
	require.Len(t, resp.Releases, 2)
	assert.Equal(t, int64(13), f.available(t, "apple", "apple-1kg"))

	again, err := f.release.Execute(ctx, app.ReleaseForOrderRequest{OrderRef: "ORD-2"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyReleased)
	assert.Equal(t, int64(13), f.available(t, "apple", "apple-1kg"))
	assert.Len(t, f.events.published(app.EventStockReleased), 1)
}

func TestReleaseForOrder_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.release.Execute(context.Background(), app.ReleaseForOrderRequest{OrderRef: "ORD-404"})
	assert.ErrorIs(t, err, domain.ErrNoDeductions)

	_, err = f.release.Execute(context.Background(), app.ReleaseForOrderRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeductForOrder_OrderRefDrawsStockOnce(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 10)
	ctx := context.Background()
	req := app.DeductForOrderRequest{OrderRef: "ORD-9", Items: []app.StockItem{item("apple", "apple-1kg", 3)}}

	_, err := f.deduct.Execute(ctx, req)
	require.NoError(t, err)

	_, err = f.deduct.Execute(ctx, req)
	assert.ErrorIs(t, err, domain.ErrOrderRefInUse)
	assert.Equal(t, int64(7), f.available(t, "apple", "apple-1kg"))

	_, err = f.release.Execute(ctx, app.ReleaseForOrderRequest{OrderRef: "ORD-9"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.available(t, "apple", "apple-1kg"))

	// a released reference cannot draw again, so nothing is left unreleasable
	_, err = f.deduct.Execute(ctx, req)
	assert.ErrorIs(t, err, domain.ErrOrderRefInUse)
	assert.Equal(t, int64(10), f.available(t, "apple", "apple-1kg"))
}

func TestDeductForOrder_ClientKeyCannotBlockRelease(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 10)
	ctx := context.Background()

	_, err := f.deduct.Execute(ctx, app.DeductForOrderRequest{
		OrderRef:       "ORD-7",
		IdempotencyKey: "release:ORD-7",
		Items:          []app.StockItem{item("apple", "apple-1kg", 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), f.available(t, "apple", "apple-1kg"))

	resp, err := f.release.Execute(ctx, app.ReleaseForOrderRequest{OrderRef: "ORD-7"})
	require.NoError(t, err)
	assert.False(t, resp.AlreadyReleased)
	require.Len(t, resp.Releases, 1)
	assert.Equal(t, int64(10), f.available(t, "apple", "apple-1kg"))

	// the same client key still replays
	replay, err := f.deduct.Execute(ctx, app.DeductForOrderRequest{
		OrderRef:       "ORD-7",
		IdempotencyKey: "release:ORD-7",
		Items:          []app.StockItem{item("apple", "apple-1kg", 4)},
	})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, int64(10), f.available(t, "apple", "apple-1kg"))
}

func TestDeductForOrder_IdempotencyKeyTooLong(t *testing.T) {
	f := newFixture(t)
	f.batch(t, "apple", "apple-1kg", 10)

	_, err := f.deduct.Execute(context.Background(), app.DeductForOrderRequest{
		IdempotencyKey: strings.Repeat("k", 65),
		Items:          []app.StockItem{item("apple", "apple-1kg", 1)},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int64(10), f.available(t, "apple", "apple-1kg"))
}

func TestRestockBatch_ReactivatesDepleted(t *testing.T) {
	f := newFixture(t)
	b := f.batch(t, "apple", "apple-1kg", 2)
	ctx := context.Background()

	_, err := f.deduct.Execute(ctx, app.DeductForOrderRequest{Items: []app.StockItem{item("apple", "apple-1kg", 2)}})
	require.NoError(t, err)

	got, err := f.get.Execute(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "depleted", got.Status)

	restocked, err := f.restock.Execute(ctx, app.RestockBatchRequest{BatchID: b.BatchID, Quantity: 1, Remark: "returned"})
	require.NoError(t, err)
	assert.Equal(t, "active", restocked.Status)
	assert.Equal(t, int64(1), restocked.AvailableQuantity)

	_, err = f.restock.Execute(ctx, app.RestockBatchRequest{BatchID: b.BatchID, Quantity: 5})
	assert.ErrorIs(t, err, domain.ErrRestockExceedsSold)

	events := f.events.published(app.EventStockRestored)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].(app.BatchEvent).Quantity)
}

func TestCancelBatch(t *testing.T) {
	f := newFixture(t)
	b := f.batch(t, "apple", "apple-1kg", 4)
	ctx := context.Background()

	resp, err := f.cancel.Execute(ctx, b.BatchID, "recall")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", resp.Status)
	assert.Equal(t, int64(0), f.available(t, "apple", "apple-1kg"))

	_, err = f.cancel.Execute(ctx, b.BatchID, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	events := f.events.published(app.EventBatchCanceled)
	require.Len(t, events, 1)
	assert.Equal(t, "recall", events[0].(app.BatchEvent).Reason)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expiry := start.Add(48 * time.Hour)

	perishable, err := f.create.Execute(ctx, app.CreateBatchRequest{
		StoreID: "store-1", ProductID: "fish", VariantSKU: "fish-500g", InitialQuantity: 5, ExpiryDate: &expiry,
	})
	require.NoError(t, err)
	f.batch(t, "rice", "rice-5kg", 5)

	resp, err := f.sweep.Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Expired)

	f.clock.Set(expiry.Add(time.Minute))
	resp, err = f.sweep.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{perishable.BatchID}, resp.Expired)
	assert.Empty(t, resp.Depleted)

	resp, err = f.sweep.Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Expired)

	assert.Len(t, f.events.published(app.EventBatchExpired), 1)
	assert.Equal(t, int64(0), f.available(t, "fish", "fish-500g"))
	assert.Equal(t, int64(5), f.available(t, "rice", "rice-5kg"))
}

func TestListMovements(t *testing.T) {
	f := newFixture(t)
	b := f.batch(t, "apple", "apple-1kg", 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.deduct.Execute(ctx, app.DeductForOrderRequest{Items: []app.StockItem{item("apple", "apple-1kg", 1)}})
		require.NoError(t, err)
	}

	page, err := f.movements.Execute(ctx, b.BatchID, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, int64(4), page.Total)
	require.Len(t, page.Movements, 4)
	assert.Equal(t, "DEDUCT", page.Movements[0].ChangeType)
	assert.Equal(t, "RECEIVE", page.Movements[3].ChangeType)

	_, err = f.movements.Execute(ctx, "missing", 1, 10)
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
}
