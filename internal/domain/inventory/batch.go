package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status batch status
//
// The stored value is a cache of what quantity and expiry already say.
// Anything that decides whether stock can be sold re-checks quantity and
// expiry itself (see IsEligible) instead of trusting it.
type Status string

const (
	StatusActive    Status = "active"    // sellable while quantity > 0 and not expired
	StatusDepleted  Status = "depleted"  // available quantity reached 0
	StatusExpired   Status = "expired"   // expiry date passed while active
	StatusCancelled Status = "cancelled" // soft-retired, terminal
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDepleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s Status) IsTerminal() bool {
	return s == StatusCancelled
}

// transitions legal status changes
//
// depleted → active is only taken by an explicit restock or order release,
// never by the lifecycle rules in DeriveStatus.
var transitions = map[Status][]Status{
	StatusActive:    {StatusDepleted, StatusExpired, StatusCancelled},
	StatusDepleted:  {StatusActive, StatusCancelled},
	StatusExpired:   {StatusCancelled},
	StatusCancelled: {},
}

// CanTransitionTo checks the status state machine
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Batch one procurement lot of one product at one store
//
// Invariants:
//  1. 0 <= AvailableQuantity <= InitialQuantity
//  2. SoldQuantity + AvailableQuantity == InitialQuantity
//  3. UsesSharedStock == true  ⇒ VariantSKU == "" and BaseUnit != ""
//     UsesSharedStock == false ⇒ VariantSKU != ""
//
// Quantities are counted in the smallest unit of the lot (pieces, grams);
// CostPrice is in cents.
type Batch struct {
	ID                uint
	BatchID           string // public identifier (UUID)
	StoreID           string
	ProductID         string
	VariantSKU        string // "" for shared-stock batches
	BatchNumber       string // supplier lot number, "" when absent
	InitialQuantity   int64  // immutable after creation
	AvailableQuantity int64
	SoldQuantity      int64
	CostPrice         int64 // per unit, reporting only
	UsesSharedStock   bool
	BaseUnit          string
	ExpiryDate        *time.Time
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateBatchParams input of NewBatch
type CreateBatchParams struct {
	StoreID         string
	ProductID       string
	VariantSKU      string
	BatchNumber     string
	InitialQuantity int64
	CostPrice       int64
	UsesSharedStock bool
	BaseUnit        string
	ExpiryDate      *time.Time
}

// NewBatch creates a batch at procurement time (factory)
//
// Business rules:
//   - store and product are required
//   - initial quantity must be > 0, cost price >= 0
//   - shared batches carry a base unit and no variant
//   - variant-specific batches carry a variant
//   - a lot that is already expired cannot be received
func NewBatch(p CreateBatchParams, now time.Time) (*Batch, error) {
	p.StoreID = strings.TrimSpace(p.StoreID)
	p.ProductID = strings.TrimSpace(p.ProductID)
	p.VariantSKU = strings.TrimSpace(p.VariantSKU)
	p.BatchNumber = strings.TrimSpace(p.BatchNumber)
	p.BaseUnit = strings.TrimSpace(p.BaseUnit)

	if p.StoreID == "" {
		return nil, ErrMissingStoreID
	}
	if p.ProductID == "" {
		return nil, ErrMissingProductID
	}
	if p.InitialQuantity <= 0 {
		return nil, ErrInvalidInitialQuantity
	}
	if p.CostPrice < 0 {
		return nil, ErrNegativeCostPrice
	}

	if p.UsesSharedStock {
		if p.VariantSKU != "" {
			return nil, ErrSharedBatchWithVariant
		}
		if p.BaseUnit == "" {
			return nil, ErrBaseUnitRequired
		}
	} else if p.VariantSKU == "" {
		return nil, ErrVariantRequired
	}

	var expiry *time.Time
	if p.ExpiryDate != nil {
		e := p.ExpiryDate.UTC().Truncate(time.Second)
		if !e.After(now) {
			return nil, ErrAlreadyExpired
		}
		expiry = &e
	}

	return &Batch{
		BatchID:           uuid.NewString(),
		StoreID:           p.StoreID,
		ProductID:         p.ProductID,
		VariantSKU:        p.VariantSKU,
		BatchNumber:       p.BatchNumber,
		InitialQuantity:   p.InitialQuantity,
		AvailableQuantity: p.InitialQuantity,
		SoldQuantity:      0,
		CostPrice:         p.CostPrice,
		UsesSharedStock:   p.UsesSharedStock,
		BaseUnit:          p.BaseUnit,
		ExpiryDate:        expiry,
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsExpired reports whether the expiry date is at or before now
func (b *Batch) IsExpired(now time.Time) bool {
	return b.ExpiryDate != nil && !b.ExpiryDate.After(now)
}

// IsEligible reports whether the batch can serve demand right now:
// active, not expired at now, and holding stock.
func (b *Batch) IsEligible(now time.Time) bool {
	return b.Status == StatusActive && !b.IsExpired(now) && b.AvailableQuantity > 0
}

// Serves reports whether the batch can be drawn for the variant.
// Shared batches serve every variant of their product.
func (b *Batch) Serves(variantSKU string) bool {
	return b.UsesSharedStock || b.VariantSKU == variantSKU
}

// DeriveStatus lifecycle rule: the status the batch should have at now.
//
// Only active batches move: to depleted when empty, otherwise to expired
// once the expiry date passes. depleted, expired and cancelled stay put.
func (b *Batch) DeriveStatus(now time.Time) Status {
	if b.Status != StatusActive {
		return b.Status
	}
	if b.AvailableQuantity == 0 {
		return StatusDepleted
	}
	if b.IsExpired(now) {
		return StatusExpired
	}
	return StatusActive
}

// Refresh applies DeriveStatus and reports whether the status changed
func (b *Batch) Refresh(now time.Time) bool {
	next := b.DeriveStatus(now)
	if next == b.Status {
		return false
	}
	b.Status = next
	b.UpdatedAt = now
	return true
}

// Cancel soft-retires the batch (domain behaviour)
func (b *Batch) Cancel(now time.Time) error {
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	b.Status = StatusCancelled
	b.UpdatedAt = now
	return nil
}

// CheckConservation verifies the quantity invariants
func (b *Batch) CheckConservation() error {
	if b.AvailableQuantity < 0 || b.SoldQuantity < 0 {
		return ErrConservationViolated
	}
	if b.AvailableQuantity > b.InitialQuantity {
		return ErrConservationViolated
	}
	if b.AvailableQuantity+b.SoldQuantity != b.InitialQuantity {
		return ErrConservationViolated
	}
	return nil
}
