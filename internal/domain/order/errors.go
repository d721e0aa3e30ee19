package order

import (
	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// Order domain errors
var (
	// ErrOrderNotFound order does not exist
	ErrOrderNotFound = apperrors.New(apperrors.ErrCodeOrderNotFound, "order not found")

	// ErrInvalidStatusTransition illegal order status change
	ErrInvalidStatusTransition = apperrors.New(apperrors.ErrCodeInvalidOrderStatus, "order status does not allow this operation")

	// ErrInvalidOrderItems order lines missing or malformed
	ErrInvalidOrderItems = apperrors.New(apperrors.ErrCodeInvalidParams, "order must contain at least one valid item")

	// ErrInvalidQuantity line quantity <= 0
	ErrInvalidQuantity = apperrors.New(apperrors.ErrCodeInvalidQuantity, "quantity must be greater than 0")

	// ErrMissingStoreID order without a store
	ErrMissingStoreID = apperrors.New(apperrors.ErrCodeInvalidParams, "store_id is required")

	// ErrDuplicateOrder an order with the same idempotency key exists
	ErrDuplicateOrder = apperrors.New(apperrors.ErrCodeDuplicateRequest, "order already placed for this idempotency key")

	// ErrNotOrderOwner the caller did not place the order
	ErrNotOrderOwner = apperrors.New(apperrors.ErrCodeForbidden, "no permission to operate this order")
)
