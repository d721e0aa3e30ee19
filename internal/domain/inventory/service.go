package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xiebiao/freshmart/pkg/clock"
)

// Service inventory domain service
//
// Design notes:
//  1. Every mutation runs through s.tx; when ctx already carries a
//     transaction (order creation) the work joins it and commits or rolls
//     back with the caller.
//  2. Quantities only change through Repository.Deduct / Increment, which
//     are conditional updates; the service never writes a quantity it read.
//  3. Eligibility uses the clock at call time, not the stored status.
type Service interface {
	// CreateBatch receives a new lot.
	// Rules: NewBatch validation, and the shared flag must match the
	// product's other non-cancelled batches.
	CreateBatch(ctx context.Context, p CreateBatchParams) (*Batch, error)

	// GetBatch returns the batch with its status evaluated at now
	GetBatch(ctx context.Context, batchID string) (*Batch, error)

	// AvailableQuantity sellable quantity of a variant; read-only
	AvailableQuantity(ctx context.Context, storeID, productID, variantSKU string) (int64, error)

	// Deduct takes quantity from one batch
	Deduct(ctx context.Context, batchID string, quantity int64, orderRef string) (*Batch, error)

	// Allocate takes line.Quantity from the serving batches, oldest first.
	// Nothing is deducted when total supply is short.
	Allocate(ctx context.Context, line StockLine, orderRef string) ([]Allocation, error)

	// Release gives an order's deduction back to its batch
	Release(ctx context.Context, batchID string, quantity int64, orderRef, reason string) (*Batch, error)

	// Restock returns quantity to an existing batch, bounded by what it sold
	Restock(ctx context.Context, batchID string, quantity int64, remark string) (*Batch, error)

	// CancelBatch soft-retires a batch
	CancelBatch(ctx context.Context, batchID, reason string) (*Batch, error)

	// ExpireStale persists the lifecycle rule for up to limit stale batches
	ExpireStale(ctx context.Context, limit int) (*SweepResult, error)

	// Movements paginated history of a batch
	Movements(ctx context.Context, batchID string, page, pageSize int) ([]*Movement, int64, error)
}

// SweepResult batches moved by one ExpireStale run
type SweepResult struct {
	Expired  []*Batch
	Depleted []*Batch
}

// service domain service implementation
type service struct {
	repo      Repository
	movements MovementRepository
	tx        Transactor
	clock     clock.Clock
}

// NewService creates the inventory domain service
func NewService(repo Repository, movements MovementRepository, tx Transactor, clk clock.Clock) Service {
	return &service{
		repo:      repo,
		movements: movements,
		tx:        tx,
		clock:     clk,
	}
}

// CreateBatch receives a new lot
func (s *service) CreateBatch(ctx context.Context, p CreateBatchParams) (*Batch, error) {
	// 1. build and validate the entity
	b, err := NewBatch(p, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		// 2. stock model consistency across the product's batches, checked
		// under the product lock so two receipts cannot both pass
		if err := s.repo.LockProduct(ctx, b.StoreID, b.ProductID); err != nil {
			return err
		}
		conflict, err := s.repo.HasConflictingModel(ctx, b.StoreID, b.ProductID, b.UsesSharedStock)
		if err != nil {
			return err
		}
		if conflict {
			return ErrStockModelConflict
		}

		// 3. persist (uniqueness of batch number enforced by the store)
		if err := s.repo.Create(ctx, b); err != nil {
			return err
		}

		// 4. audit
		return s.movements.Create(ctx, NewReceiveMovement(b))
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBatch returns the batch with its lifecycle status applied in memory
func (s *service) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, ErrBatchNotFound
	}
	b, err := s.repo.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	b.Refresh(s.clock.Now())
	return b, nil
}

// AvailableQuantity sellable quantity at now
func (s *service) AvailableQuantity(ctx context.Context, storeID, productID, variantSKU string) (int64, error) {
	if err := validateTarget(storeID, productID); err != nil {
		return 0, err
	}
	now := s.clock.Now()
	batches, err := s.repo.FindEligible(ctx, storeID, productID, variantSKU, now)
	if err != nil {
		return 0, err
	}
	return SumAvailable(batches, variantSKU, now), nil
}

// Deduct single-batch deduction
func (s *service) Deduct(ctx context.Context, batchID string, quantity int64, orderRef string) (*Batch, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var result *Batch
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		b, err := s.deduct(ctx, batchID, quantity, orderRef)
		if err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// deduct one conditional decrement plus its movement; caller owns the transaction
func (s *service) deduct(ctx context.Context, batchID string, quantity int64, orderRef string) (*Batch, error) {
	b, err := s.repo.Deduct(ctx, batchID, quantity, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.movements.Create(ctx, NewDeductMovement(b, quantity, orderRef)); err != nil {
		return nil, err
	}
	return b, nil
}

// Allocate multi-batch FIFO deduction
//
// Flow:
//  1. load eligible batches and apply the mixed-mode rule
//  2. plan greedily from the oldest batch; short supply fails before any write
//  3. execute each planned deduction conditionally
//  4. a batch drained by a concurrent order between 1 and 3 fails its
//     update; the rest of the line is planned once more from locked rows,
//     and only a second shortfall rolls the line back
func (s *service) Allocate(ctx context.Context, line StockLine, orderRef string) ([]Allocation, error) {
	if line.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := validateTarget(line.StoreID, line.ProductID); err != nil {
		return nil, err
	}

	var plan []Allocation
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		// 1. candidates
		batches, err := s.repo.FindEligible(ctx, line.StoreID, line.ProductID, line.VariantSKU, now)
		if err != nil {
			return err
		}

		// 2-3. plan and execute
		plan, err = s.planAndDeduct(ctx, batches, line, 0, orderRef, now)
		var raced *InsufficientStockError
		if !errors.As(err, &raced) || raced.Reason == ReasonSupplyShort {
			return err
		}

		// 4. re-plan the remainder once
		batches, err = s.repo.LockEligible(ctx, line.StoreID, line.ProductID, line.VariantSKU, now)
		if err != nil {
			return err
		}
		rest, err := s.planAndDeduct(ctx, batches, line, totalQuantity(plan), orderRef, now)
		plan = mergeAllocations(plan, rest)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// planAndDeduct plans line.Quantity - done units from batches and deducts
// them. The allocations that went through are returned even on error.
func (s *service) planAndDeduct(ctx context.Context, batches []*Batch, line StockLine, done int64, orderRef string, now time.Time) ([]Allocation, error) {
	serving := SelectServing(batches, line.VariantSKU, now)

	want := line
	want.Quantity = line.Quantity - done
	plan, shortfall := PlanAllocation(serving, want)
	if shortfall > 0 {
		return nil, &InsufficientStockError{
			StoreID:    line.StoreID,
			ProductID:  line.ProductID,
			VariantSKU: line.VariantSKU,
			Requested:  line.Quantity,
			Available:  line.Quantity - shortfall,
			Reason:     ReasonSupplyShort,
		}
	}

	for i := range plan {
		b, err := s.deduct(ctx, plan[i].BatchID, plan[i].Quantity, orderRef)
		if err != nil {
			return plan[:i], err
		}
		plan[i].Depleted = b.Status == StatusDepleted
	}
	return plan, nil
}

func totalQuantity(allocations []Allocation) int64 {
	var n int64
	for _, a := range allocations {
		n += a.Quantity
	}
	return n
}

// mergeAllocations appends more to plan, folding a batch drawn twice into one entry
func mergeAllocations(plan, more []Allocation) []Allocation {
	for _, a := range more {
		merged := false
		for i := range plan {
			if plan[i].BatchID == a.BatchID {
				plan[i].Quantity += a.Quantity
				plan[i].Depleted = a.Depleted
				merged = true
				break
			}
		}
		if !merged {
			plan = append(plan, a)
		}
	}
	return plan
}

// Release order rollback into the batch it was taken from
func (s *service) Release(ctx context.Context, batchID string, quantity int64, orderRef, reason string) (*Batch, error) {
	return s.increment(ctx, batchID, quantity, func(b *Batch) *Movement {
		return NewReleaseMovement(b, quantity, orderRef, reason)
	})
}

// Restock return to an existing lot; retired lots do not take stock back
func (s *service) Restock(ctx context.Context, batchID string, quantity int64, remark string) (*Batch, error) {
	b, err := s.repo.FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusCancelled || b.Status == StatusExpired || b.IsExpired(s.clock.Now()) {
		return nil, ErrInvalidStatusTransition
	}
	return s.increment(ctx, batchID, quantity, func(b *Batch) *Movement {
		return NewRestockMovement(b, quantity, remark)
	})
}

func (s *service) increment(ctx context.Context, batchID string, quantity int64, movement func(*Batch) *Movement) (*Batch, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var result *Batch
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		b, err := s.repo.Increment(ctx, batchID, quantity, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.movements.Create(ctx, movement(b)); err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cancelAttempts re-reads tolerated when a concurrent deduction moves the batch
// between the read and the conditional status update
const cancelAttempts = 3

// CancelBatch soft retire
func (s *service) CancelBatch(ctx context.Context, batchID, reason string) (*Batch, error) {
	var result *Batch
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		for attempt := 0; attempt < cancelAttempts; attempt++ {
			b, err := s.repo.FindByBatchID(ctx, batchID)
			if err != nil {
				return err
			}

			from := b.Status
			now := s.clock.Now()
			if err := b.Cancel(now); err != nil {
				return err
			}

			ok, err := s.repo.TransitionStatus(ctx, batchID, from, StatusCancelled, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			result = b
			return s.movements.Create(ctx, NewStatusMovement(b, ChangeTypeCancel, reason))
		}
		return ErrInvalidStatusTransition
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireStale lifecycle sweep
//
// Each batch moves in its own transaction so one failing row does not undo
// the rest of the sweep. A batch that changed since it was listed simply
// fails its conditional update and is skipped.
func (s *service) ExpireStale(ctx context.Context, limit int) (*SweepResult, error) {
	now := s.clock.Now()
	stale, err := s.repo.FindStale(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, b := range stale {
		target := b.DeriveStatus(now)
		if target == StatusActive {
			continue
		}

		moved := false
		err := s.tx.Transaction(ctx, func(ctx context.Context) error {
			ok, err := s.repo.TransitionStatus(ctx, b.BatchID, StatusActive, target, now)
			if err != nil || !ok {
				return err
			}
			moved = true
			b.Status = target
			b.UpdatedAt = now
			if target == StatusExpired {
				return s.movements.Create(ctx, NewStatusMovement(b, ChangeTypeExpire, "expiry date reached"))
			}
			return nil
		})
		if err != nil {
			return result, err
		}
		if !moved {
			continue
		}

		switch target {
		case StatusExpired:
			result.Expired = append(result.Expired, b)
		case StatusDepleted:
			result.Depleted = append(result.Depleted, b)
		}
	}
	return result, nil
}

// Movements batch history
func (s *service) Movements(ctx context.Context, batchID string, page, pageSize int) ([]*Movement, int64, error) {
	if _, err := s.repo.FindByBatchID(ctx, batchID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.movements.ListByBatchID(ctx, batchID, page, pageSize)
}

func validateTarget(storeID, productID string) error {
	if strings.TrimSpace(storeID) == "" {
		return ErrMissingStoreID
	}
	if strings.TrimSpace(productID) == "" {
		return ErrMissingProductID
	}
	return nil
}
