package mysql_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/internal/domain/order"
	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/freshmart/internal/testutil/dbtest"
	"github.com/xiebiao/freshmart/pkg/clock"
)

var start = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type store struct {
	db       *gorm.DB
	clock    *clock.Fixed
	tx       *mysql.TxManager
	batches  inventory.Repository
	moves    inventory.MovementRepository
	requests inventory.DeductionRequestRepository
	orders   order.Repository
}

func newStore(t *testing.T) *store {
	t.Helper()
	clk := clock.NewFixed(start)
	return newStoreOn(dbtest.Open(t, clk), clk)
}

func newStoreOn(db *gorm.DB, clk *clock.Fixed) *store {
	return &store{
		db:       db,
		clock:    clk,
		tx:       mysql.NewTxManager(db),
		batches:  mysql.NewBatchRepository(db),
		moves:    mysql.NewMovementRepository(db),
		requests: mysql.NewDeductionRequestRepository(db),
		orders:   mysql.NewOrderRepository(db),
	}
}

func (s *store) batch(t *testing.T, p inventory.CreateBatchParams) *inventory.Batch {
	t.Helper()
	if p.StoreID == "" {
		p.StoreID = "store-1"
	}
	if p.ProductID == "" {
		p.ProductID = "apple"
	}
	if !p.UsesSharedStock && p.VariantSKU == "" {
		p.VariantSKU = "apple-1kg"
	}
	if p.InitialQuantity == 0 {
		p.InitialQuantity = 10
	}
	b, err := inventory.NewBatch(p, s.clock.Now())
	require.NoError(t, err)
	require.NoError(t, s.batches.Create(context.Background(), b))
	s.clock.Advance(time.Second)
	return b
}

func batchIDs(batches []*inventory.Batch) []string {
	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.BatchID
	}
	return ids
}

// =========================================
// TxManager
// =========================================

func TestTxManager_AfterCommitRunsOnCommit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var ran []string
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		assert.True(t, mysql.InTransaction(ctx))
		s.tx.AfterCommit(ctx, func(ctx context.Context) {
			assert.False(t, mysql.InTransaction(ctx))
			ran = append(ran, "outer")
		})
		return s.tx.Transaction(ctx, func(ctx context.Context) error {
			s.tx.AfterCommit(ctx, func(context.Context) { ran = append(ran, "inner") })
			assert.Empty(t, ran)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, ran)
}

func TestTxManager_RollbackDropsWritesAndHooks(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("line 2 failed")

	hookRan := false
	var created *inventory.Batch
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		b, err := inventory.NewBatch(inventory.CreateBatchParams{
			StoreID: "store-1", ProductID: "milk", VariantSKU: "milk-1l", InitialQuantity: 5,
		}, s.clock.Now())
		require.NoError(t, err)
		require.NoError(t, s.batches.Create(ctx, b))
		created = b
		s.tx.AfterCommit(ctx, func(context.Context) { hookRan = true })

		// the inner call joins: its error aborts the outer transaction too
		return s.tx.Transaction(ctx, func(ctx context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, hookRan)

	_, err = s.batches.FindByBatchID(ctx, created.BatchID)
	assert.ErrorIs(t, err, inventory.ErrBatchNotFound)
}

func TestTxManager_AfterCommitWithoutTransaction(t *testing.T) {
	s := newStore(t)

	ran := false
	s.tx.AfterCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
	assert.False(t, mysql.InTransaction(context.Background()))
}

// =========================================
// Batches
// =========================================

func TestBatchRepository_CreateAndFind(t *testing.T) {
	s := newStore(t)
	expiry := start.Add(72 * time.Hour)
	b := s.batch(t, inventory.CreateBatchParams{BatchNumber: "LOT-7", CostPrice: 120, ExpiryDate: &expiry})

	got, err := s.batches.FindByBatchID(context.Background(), b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "LOT-7", got.BatchNumber)
	assert.Equal(t, int64(10), got.AvailableQuantity)
	assert.Equal(t, inventory.StatusActive, got.Status)
	require.NotNil(t, got.ExpiryDate)
	assert.True(t, expiry.Equal(*got.ExpiryDate))

	_, err = s.batches.FindByBatchID(context.Background(), "missing")
	assert.ErrorIs(t, err, inventory.ErrBatchNotFound)
}

func TestBatchRepository_DuplicateBatchNumber(t *testing.T) {
	s := newStore(t)
	s.batch(t, inventory.CreateBatchParams{BatchNumber: "LOT-1"})
	s.batch(t, inventory.CreateBatchParams{})
	s.batch(t, inventory.CreateBatchParams{})

	b, err := inventory.NewBatch(inventory.CreateBatchParams{
		StoreID: "store-1", ProductID: "apple", VariantSKU: "apple-1kg", BatchNumber: "LOT-1", InitialQuantity: 3,
	}, s.clock.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, s.batches.Create(context.Background(), b), inventory.ErrDuplicateBatch)
}

func TestBatchRepository_FindEligible(t *testing.T) {
	s := newStore(t)
	soon := start.Add(4 * time.Second)

	first := s.batch(t, inventory.CreateBatchParams{})
	shared := s.batch(t, inventory.CreateBatchParams{UsesSharedStock: true, BaseUnit: "g", ProductID: "cheese"})
	other := s.batch(t, inventory.CreateBatchParams{VariantSKU: "apple-2kg"})
	expiring := s.batch(t, inventory.CreateBatchParams{ExpiryDate: &soon})
	second := s.batch(t, inventory.CreateBatchParams{})
	ctx := context.Background()

	eligible, err := s.batches.FindEligible(ctx, "store-1", "apple", "apple-1kg", s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{first.BatchID, second.BatchID}, batchIDs(eligible))
	assert.NotContains(t, batchIDs(eligible), expiring.BatchID)

	all, err := s.batches.FindEligible(ctx, "store-1", "apple", "", s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{first.BatchID, other.BatchID, second.BatchID}, batchIDs(all))

	cheese, err := s.batches.FindEligible(ctx, "store-1", "cheese", "cheese-200g", s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{shared.BatchID}, batchIDs(cheese))
}

func TestBatchRepository_DeductIsConditional(t *testing.T) {
	s := newStore(t)
	b := s.batch(t, inventory.CreateBatchParams{InitialQuantity: 5})
	ctx := context.Background()

	after, err := s.batches.Deduct(ctx, b.BatchID, 3, s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.AvailableQuantity)
	assert.Equal(t, int64(3), after.SoldQuantity)
	assert.Equal(t, inventory.StatusActive, after.Status)

	_, err = s.batches.Deduct(ctx, b.BatchID, 3, s.clock.Now())
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, inventory.ReasonQuantityTooLow, insufficient.Reason)
	assert.Equal(t, int64(2), insufficient.Available)

	after, err = s.batches.Deduct(ctx, b.BatchID, 2, s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.AvailableQuantity)
	assert.Equal(t, inventory.StatusDepleted, after.Status)

	_, err = s.batches.Deduct(ctx, b.BatchID, 1, s.clock.Now())
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, inventory.ReasonWrongStatus, insufficient.Reason)

	_, err = s.batches.Deduct(ctx, "missing", 1, s.clock.Now())
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, inventory.ReasonNotFound, insufficient.Reason)
}

// concurrentBackends databases whose connections really run side by side
func concurrentBackends() map[string]func(t *testing.T, clk *clock.Fixed) *gorm.DB {
	return map[string]func(t *testing.T, clk *clock.Fixed) *gorm.DB{
		"sqlite-wal": func(t *testing.T, clk *clock.Fixed) *gorm.DB { return dbtest.OpenConcurrent(t, clk, 8) },
		"mysql":      func(t *testing.T, clk *clock.Fixed) *gorm.DB { return dbtest.OpenMySQL(t, clk) },
	}
}

// Every goroutine hits the repository on its own connection with no
// surrounding transaction, so only the conditional UPDATE stands between the
// buyers and the last units.
func TestBatchRepository_ConcurrentDeductNeverOversells(t *testing.T) {
	for name, open := range concurrentBackends() {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewFixed(start)
			s := newStoreOn(open(t, clk), clk)
			const stock, buyers = 25, 60
			b := s.batch(t, inventory.CreateBatchParams{InitialQuantity: stock})
			now := s.clock.Now()

			var succeeded, rejected int64
			var wg sync.WaitGroup
			ready := make(chan struct{})
			errs := make(chan error, buyers)
			for i := 0; i < buyers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-ready
					_, err := s.batches.Deduct(context.Background(), b.BatchID, 1, now)
					switch {
					case err == nil:
						atomic.AddInt64(&succeeded, 1)
					case errors.Is(err, inventory.ErrInsufficientStock):
						atomic.AddInt64(&rejected, 1)
					default:
						errs <- err
					}
				}()
			}
			close(ready)
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			assert.Equal(t, int64(stock), succeeded)
			assert.Equal(t, int64(buyers-stock), rejected)

			after, err := s.batches.FindByBatchID(context.Background(), b.BatchID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), after.AvailableQuantity)
			assert.Equal(t, succeeded, after.SoldQuantity)
			assert.Equal(t, inventory.StatusDepleted, after.Status)
			assert.NoError(t, after.CheckConservation())
		})
	}
}

func TestBatchRepository_DeductRejectsExpired(t *testing.T) {
	s := newStore(t)
	expiry := start.Add(time.Hour)
	b := s.batch(t, inventory.CreateBatchParams{ExpiryDate: &expiry})

	s.clock.Set(expiry)
	_, err := s.batches.Deduct(context.Background(), b.BatchID, 1, s.clock.Now())
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, inventory.ReasonExpired, insufficient.Reason)
}

func TestBatchRepository_IncrementBoundedBySold(t *testing.T) {
	s := newStore(t)
	b := s.batch(t, inventory.CreateBatchParams{InitialQuantity: 4})
	ctx := context.Background()

	_, err := s.batches.Increment(ctx, b.BatchID, 1, s.clock.Now())
	assert.ErrorIs(t, err, inventory.ErrRestockExceedsSold)

	_, err = s.batches.Deduct(ctx, b.BatchID, 4, s.clock.Now())
	require.NoError(t, err)

	after, err := s.batches.Increment(ctx, b.BatchID, 3, s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), after.AvailableQuantity)
	assert.Equal(t, int64(1), after.SoldQuantity)
	assert.Equal(t, inventory.StatusActive, after.Status)
	assert.NoError(t, after.CheckConservation())

	_, err = s.batches.Increment(ctx, b.BatchID, 2, s.clock.Now())
	assert.ErrorIs(t, err, inventory.ErrRestockExceedsSold)

	_, err = s.batches.Increment(ctx, "missing", 1, s.clock.Now())
	assert.ErrorIs(t, err, inventory.ErrBatchNotFound)
}

func TestBatchRepository_TransitionStatus(t *testing.T) {
	s := newStore(t)
	b := s.batch(t, inventory.CreateBatchParams{})
	ctx := context.Background()

	ok, err := s.batches.TransitionStatus(ctx, b.BatchID, inventory.StatusDepleted, inventory.StatusCancelled, s.clock.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.batches.TransitionStatus(ctx, b.BatchID, inventory.StatusActive, inventory.StatusCancelled, s.clock.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.batches.FindByBatchID(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusCancelled, got.Status)
}

func TestBatchRepository_HasConflictingModel(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := s.batch(t, inventory.CreateBatchParams{})

	conflict, err := s.batches.HasConflictingModel(ctx, "store-1", "apple", true)
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = s.batches.HasConflictingModel(ctx, "store-1", "apple", false)
	require.NoError(t, err)
	assert.False(t, conflict)

	_, err = s.batches.TransitionStatus(ctx, b.BatchID, inventory.StatusActive, inventory.StatusCancelled, s.clock.Now())
	require.NoError(t, err)
	conflict, err = s.batches.HasConflictingModel(ctx, "store-1", "apple", true)
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestBatchRepository_LockProductIsReentrant(t *testing.T) {
	s := newStore(t)

	err := s.tx.Transaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, s.batches.LockProduct(ctx, "store-1", "apple"))
		return s.batches.LockProduct(ctx, "store-1", "apple")
	})
	require.NoError(t, err)

	var guards int64
	require.NoError(t, s.db.Model(&mysql.ProductGuardModel{}).Count(&guards).Error)
	assert.Equal(t, int64(1), guards)
}

// Receipts with opposite stock models race for the same product; the product
// lock lets exactly one of them in.
func TestCreateBatch_ConcurrentStockModelsSerialize(t *testing.T) {
	for name, open := range concurrentBackends() {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewFixed(start)
			s := newStoreOn(open(t, clk), clk)
			svc := inventory.NewService(s.batches, s.moves, s.tx, clk)

			const rounds = 8
			var created, conflicts int64
			var wg sync.WaitGroup
			ready := make(chan struct{})
			errs := make(chan error, 2*rounds)
			for i := 0; i < rounds; i++ {
				for _, shared := range []bool{true, false} {
					p := inventory.CreateBatchParams{StoreID: "store-1", ProductID: "flour", InitialQuantity: 10}
					if shared {
						p.UsesSharedStock, p.BaseUnit = true, "g"
					} else {
						p.VariantSKU = "flour-1kg"
					}
					wg.Add(1)
					go func() {
						defer wg.Done()
						<-ready
						_, err := svc.CreateBatch(context.Background(), p)
						switch {
						case err == nil:
							atomic.AddInt64(&created, 1)
						case errors.Is(err, inventory.ErrStockModelConflict):
							atomic.AddInt64(&conflicts, 1)
						default:
							errs <- err
						}
					}()
				}
			}
			close(ready)
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			assert.Equal(t, int64(rounds), created)
			assert.Equal(t, int64(rounds), conflicts)

			batches, err := s.batches.ListByProduct(context.Background(), "store-1", "flour")
			require.NoError(t, err)
			require.Len(t, batches, rounds)
			for _, b := range batches {
				assert.Equal(t, batches[0].UsesSharedStock, b.UsesSharedStock)
			}
		})
	}
}

func TestBatchRepository_FindStale(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	expiry := start.Add(time.Hour)

	fresh := s.batch(t, inventory.CreateBatchParams{})
	expiring := s.batch(t, inventory.CreateBatchParams{ExpiryDate: &expiry})
	emptied := s.batch(t, inventory.CreateBatchParams{InitialQuantity: 2})
	_, err := s.batches.Deduct(ctx, emptied.BatchID, 2, s.clock.Now())
	require.NoError(t, err)

	stale, err := s.batches.FindStale(ctx, s.clock.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	s.clock.Set(expiry)
	stale, err = s.batches.FindStale(ctx, s.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{expiring.BatchID}, batchIDs(stale))
	assert.NotContains(t, batchIDs(stale), fresh.BatchID)
}

// =========================================
// Movements and idempotency keys
// =========================================

func TestMovementRepository_Pagination(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := s.batch(t, inventory.CreateBatchParams{InitialQuantity: 10})

	for i := 0; i < 5; i++ {
		after, err := s.batches.Deduct(ctx, b.BatchID, 1, s.clock.Now())
		require.NoError(t, err)
		require.NoError(t, s.moves.Create(ctx, inventory.NewDeductMovement(after, 1, "order-"+string(rune('a'+i)))))
	}

	page1, total, err := s.moves.ListByBatchID(ctx, b.BatchID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
	assert.Equal(t, "order-e", page1[0].OrderRef)
	assert.Equal(t, int64(5), page1[0].AfterAvailable)

	page3, _, err := s.moves.ListByBatchID(ctx, b.BatchID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "order-a", page3[0].OrderRef)
	assert.Equal(t, int64(-1), page3[0].Quantity)

	byOrder, err := s.moves.ListByOrderRef(ctx, "order-c")
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
	assert.Equal(t, inventory.ChangeTypeDeduct, byOrder[0].ChangeType)
}

func TestDeductionRequestRepository(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	got, err := s.requests.FindByKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.requests.Create(ctx, &inventory.DeductionRequest{IdempotencyKey: "key-1", OrderRef: "FM1"}))
	err = s.requests.Create(ctx, &inventory.DeductionRequest{IdempotencyKey: "key-1", OrderRef: "FM2"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateRequest)

	got, err = s.requests.FindByKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "FM1", got.OrderRef)
}

// =========================================
// Orders
// =========================================

func newOrder(t *testing.T, s *store, key string) *order.Order {
	t.Helper()
	o, err := order.NewOrder(order.GenerateOrderNo(s.clock.Now()), "store-1", "customer-1", key, []order.OrderItem{
		{ProductID: "apple", VariantSKU: "apple-1kg", Quantity: 2},
		{ProductID: "milk", VariantSKU: "milk-1l", Quantity: 1},
	}, s.clock.Now())
	require.NoError(t, err)
	return o
}

func TestOrderRepository_CreateAndFind(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	o := newOrder(t, s, "key-1")
	require.NoError(t, s.orders.Create(ctx, o))
	assert.NotZero(t, o.ID)

	got, err := s.orders.FindByOrderNo(ctx, o.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusPlaced, got.Status)
	require.Len(t, got.Items, 2)
	assert.Equal(t, int64(3), got.TotalQuantity())

	got, err = s.orders.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, o.OrderNo, got.OrderNo)

	_, err = s.orders.FindByOrderNo(ctx, "FM-missing")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrderRepository_IdempotencyKeyUnique(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.orders.Create(ctx, newOrder(t, s, "key-1")))
	assert.ErrorIs(t, s.orders.Create(ctx, newOrder(t, s, "key-1")), order.ErrDuplicateOrder)

	// orders without a key never collide
	require.NoError(t, s.orders.Create(ctx, newOrder(t, s, "")))
	require.NoError(t, s.orders.Create(ctx, newOrder(t, s, "")))
}

func TestOrderRepository_UpdateStatusIsConditional(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	o := newOrder(t, s, "")
	require.NoError(t, s.orders.Create(ctx, o))

	require.NoError(t, o.Cancel(s.clock.Now()))
	ok, err := s.orders.UpdateStatus(ctx, o, order.OrderStatusPlaced)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.orders.UpdateStatus(ctx, o, order.OrderStatusPlaced)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.orders.FindByOrderNo(ctx, o.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusCancelled, got.Status)
}
