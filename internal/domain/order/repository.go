package order

import (
	"context"
)

// Repository order repository (interface defined by the domain)
//
// Create and Update join the transaction carried by ctx, so an order and the
// stock it deducts commit together.
type Repository interface {
	// Create saves the order with its items.
	// Returns ErrDuplicateOrder when the idempotency key is taken.
	Create(ctx context.Context, order *Order) error

	// FindByOrderNo loads the order with its items
	FindByOrderNo(ctx context.Context, orderNo string) (*Order, error)

	// FindByIdempotencyKey returns ErrOrderNotFound when unknown
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)

	// UpdateStatus conditional status change; false when the order was no longer in from
	UpdateStatus(ctx context.Context, o *Order, from OrderStatus) (bool, error)
}
