package inventory

import (
	"context"
	"time"
)

// Repository batch store (interface defined by the domain, implemented in infrastructure)
//
// Every method joins the transaction carried by ctx when there is one.
// No method reads a quantity and writes it back: quantity changes are
// conditional updates evaluated by the store.
type Repository interface {
	// Create persists a new batch and fills ID/CreatedAt.
	// Returns ErrDuplicateBatch when the batch number is already taken.
	Create(ctx context.Context, b *Batch) error

	// FindByBatchID returns ErrBatchNotFound when absent
	FindByBatchID(ctx context.Context, batchID string) (*Batch, error)

	// ListByProduct all batches of a product in any status, oldest first
	ListByProduct(ctx context.Context, storeID, productID string) ([]*Batch, error)

	// FindEligible active, unexpired batches with stock, oldest first.
	// With a variant, returns the variant's own batches plus shared ones;
	// with "" returns all of them.
	FindEligible(ctx context.Context, storeID, productID, variantSKU string, now time.Time) ([]*Batch, error)

	// LockProduct serializes batch creation for one store/product until the
	// surrounding transaction ends
	LockProduct(ctx context.Context, storeID, productID string) error

	// LockEligible FindEligible as a locking read: it sees the latest
	// committed quantities and holds the rows until the transaction ends
	LockEligible(ctx context.Context, storeID, productID, variantSKU string, now time.Time) ([]*Batch, error)

	// HasConflictingModel reports whether a non-cancelled batch of the product
	// uses the other stock model
	HasConflictingModel(ctx context.Context, storeID, productID string, usesSharedStock bool) (bool, error)

	// Deduct conditional decrement:
	//   available -= q, sold += q
	//   WHERE batch_id AND status = active AND available >= q AND not expired at now
	// then active → depleted when available reached 0.
	// Zero matched rows returns an *InsufficientStockError classified by a re-read.
	Deduct(ctx context.Context, batchID string, quantity int64, now time.Time) (*Batch, error)

	// Increment conditional increment bounded by sold quantity:
	//   available += q, sold -= q WHERE batch_id AND sold >= q
	// then depleted → active when the batch is not expired. Status is not a
	// condition: stock given back to an expired or cancelled batch is
	// recorded there and stays unsellable.
	Increment(ctx context.Context, batchID string, quantity int64, now time.Time) (*Batch, error)

	// TransitionStatus from → to; false when the batch was no longer in from
	TransitionStatus(ctx context.Context, batchID string, from, to Status, now time.Time) (bool, error)

	// FindStale active batches the lifecycle rule would move (expired, or empty)
	FindStale(ctx context.Context, now time.Time, limit int) ([]*Batch, error)
}

// MovementRepository stock movement log
type MovementRepository interface {
	Create(ctx context.Context, m *Movement) error

	// ListByOrderRef movements of one order, oldest first
	ListByOrderRef(ctx context.Context, orderRef string) ([]*Movement, error)

	// ListByBatchID paginated history of a batch, newest first
	ListByBatchID(ctx context.Context, batchID string, page, pageSize int) ([]*Movement, int64, error)
}

// DeductionRequestRepository idempotency keys of deductForOrder
type DeductionRequestRepository interface {
	// Create returns ErrDuplicateRequest when the key exists
	Create(ctx context.Context, req *DeductionRequest) error

	// FindByKey returns nil, nil when the key is unknown
	FindByKey(ctx context.Context, key string) (*DeductionRequest, error)
}

// Transactor runs fn in one store transaction. Repositories called with the
// ctx handed to fn join it; a call made inside an existing transaction joins
// the outer one.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
