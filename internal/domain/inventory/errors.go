package inventory

import (
	"fmt"
	"time"

	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// Inventory domain errors
var (
	// ErrValidation malformed batch data; every specific validation error below wraps it
	ErrValidation = apperrors.New(apperrors.ErrCodeInvalidParams, "invalid batch data")

	ErrMissingStoreID         = ErrValidation.WithMessage("store_id is required")
	ErrMissingProductID       = ErrValidation.WithMessage("product_id is required")
	ErrMissingVariantSKU      = ErrValidation.WithMessage("variant_sku is required")
	ErrInvalidInitialQuantity = ErrValidation.WithMessage("initial quantity must be greater than 0")
	ErrNegativeCostPrice      = ErrValidation.WithMessage("cost price cannot be negative")
	ErrSharedBatchWithVariant = ErrValidation.WithMessage("a shared-stock batch must not carry a variant_sku")
	ErrVariantRequired        = ErrValidation.WithMessage("variant_sku is required for variant-specific batches")
	ErrBaseUnitRequired       = ErrValidation.WithMessage("base_unit is required for shared-stock batches")
	ErrAlreadyExpired         = ErrValidation.WithMessage("expiry date must be in the future")
	ErrRestockExceedsSold     = ErrValidation.WithMessage("restock quantity exceeds the quantity sold from this batch")
	ErrEmptyItems             = ErrValidation.WithMessage("at least one item is required")
	ErrIdempotencyKeyTooLong  = ErrValidation.WithMessage("idempotency key must be at most 64 characters")

	// ErrStockModelConflict the batch's shared flag contradicts the product's existing batches
	ErrStockModelConflict = apperrors.New(apperrors.ErrCodeStockModelConflict,
		"all batches of a product must use the same stock model (shared or per-variant)")

	// ErrDuplicateBatch batch number already used for this store/product/variant
	ErrDuplicateBatch = apperrors.New(apperrors.ErrCodeDuplicateEntry, "batch number already registered for this product variant")

	// ErrBatchNotFound batch does not exist
	ErrBatchNotFound = apperrors.New(apperrors.ErrCodeBatchNotFound, "batch not found")

	// ErrInvalidQuantity requested quantity <= 0
	ErrInvalidQuantity = apperrors.New(apperrors.ErrCodeInvalidQuantity, "quantity must be greater than 0")

	// ErrInsufficientStock business condition, see InsufficientStockError for details
	ErrInsufficientStock = apperrors.New(apperrors.ErrCodeInsufficientStock, "insufficient stock")

	// ErrInvalidStatusTransition illegal batch status change
	ErrInvalidStatusTransition = apperrors.New(apperrors.ErrCodeInvalidBatchStatus, "batch status does not allow this operation")

	// ErrDuplicateRequest a deduction with the same idempotency key is in flight or committed
	ErrDuplicateRequest = apperrors.New(apperrors.ErrCodeDuplicateRequest, "deduction request already processed")

	// ErrOrderRefInUse the order reference already drew stock once
	ErrOrderRefInUse = apperrors.New(apperrors.ErrCodeOrderRefInUse, "order_ref already used by another deduction")

	// ErrNoDeductions release asked for an order that never drew stock
	ErrNoDeductions = apperrors.New(apperrors.ErrCodeNotFound, "no stock deductions recorded for this order")

	// ErrConservationViolated quantities no longer add up; never expected outside a bug
	ErrConservationViolated = apperrors.New(apperrors.ErrCodeInternal, "batch quantities violate conservation")
)

// FailureReason why a deduction matched no batch
//
// Diagnostic only: it shapes the message, it never decides a retry.
type FailureReason string

const (
	ReasonNotFound       FailureReason = "not_found"
	ReasonWrongStatus    FailureReason = "wrong_status"
	ReasonExpired        FailureReason = "expired"
	ReasonQuantityTooLow FailureReason = "quantity_too_low"
	ReasonSupplyShort    FailureReason = "supply_short"
)

// InsufficientStockError structured InsufficientStock failure
//
// errors.Is(err, ErrInsufficientStock) holds for every value of this type.
type InsufficientStockError struct {
	StoreID    string        `json:"store_id,omitempty"`
	ProductID  string        `json:"product_id,omitempty"`
	VariantSKU string        `json:"variant_sku,omitempty"`
	BatchID    string        `json:"batch_id,omitempty"`
	Requested  int64         `json:"requested"`
	Available  int64         `json:"available"`
	Reason     FailureReason `json:"reason"`
	Status     Status        `json:"status,omitempty"`
}

func (e *InsufficientStockError) Error() string {
	target := e.BatchID
	if target == "" {
		target = fmt.Sprintf("%s/%s/%s", e.StoreID, e.ProductID, e.VariantSKU)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d (%s)",
		target, e.Requested, e.Available, e.Reason)
}

// Unwrap makes the error match ErrInsufficientStock
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Detail is rendered into the response data
func (e *InsufficientStockError) Detail() interface{} {
	return e
}

// ClassifyDeductFailure explains why a conditional deduction matched nothing.
// b is the batch as re-read after the failed update, nil when it does not exist.
func ClassifyDeductFailure(b *Batch, batchID string, quantity int64, now time.Time) *InsufficientStockError {
	e := &InsufficientStockError{BatchID: batchID, Requested: quantity}
	if b == nil {
		e.Reason = ReasonNotFound
		return e
	}

	e.StoreID = b.StoreID
	e.ProductID = b.ProductID
	e.VariantSKU = b.VariantSKU
	e.Available = b.AvailableQuantity
	e.Status = b.Status

	switch {
	case b.Status != StatusActive:
		e.Reason = ReasonWrongStatus
	case b.IsExpired(now):
		e.Reason = ReasonExpired
	default:
		e.Reason = ReasonQuantityTooLow
	}
	return e
}
