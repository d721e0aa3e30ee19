package order

import (
	"strings"
	"time"
)

// OrderStatus order status
//
// The ledger only needs to know whether an order still holds stock:
// placed orders do, cancelled orders gave it back.
type OrderStatus int

const (
	OrderStatusPlaced    OrderStatus = 1 // stock deducted
	OrderStatusCancelled OrderStatus = 2 // stock released, terminal
)

// String implements fmt.Stringer (log output)
func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPlaced:
		return "placed"
	case OrderStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order order aggregate root
//
// OrderNo is also the order reference written on every stock movement the
// order causes, which is how a cancellation finds what to give back.
type Order struct {
	ID             uint
	OrderNo        string
	StoreID        string
	CustomerRef    string // subject of the token that placed the order
	IdempotencyKey string // "" when the caller sent none
	Status         OrderStatus
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem order line
type OrderItem struct {
	ID         uint
	OrderID    uint
	ProductID  string
	VariantSKU string
	Quantity   int64
}

// NewOrder creates a placed order (factory)
func NewOrder(orderNo, storeID, customerRef, idempotencyKey string, items []OrderItem, now time.Time) (*Order, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, ErrMissingStoreID
	}
	if len(items) == 0 {
		return nil, ErrInvalidOrderItems
	}
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, ErrInvalidOrderItems
		}
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	return &Order{
		OrderNo:        orderNo,
		StoreID:        strings.TrimSpace(storeID),
		CustomerRef:    customerRef,
		IdempotencyKey: idempotencyKey,
		Status:         OrderStatusPlaced,
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanTransitionTo order state machine
func (o *Order) CanTransitionTo(target OrderStatus) bool {
	transitions := map[OrderStatus][]OrderStatus{
		OrderStatusPlaced:    {OrderStatusCancelled},
		OrderStatusCancelled: {},
	}

	for _, allowed := range transitions[o.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// TransitionTo changes status after checking the state machine
func (o *Order) TransitionTo(target OrderStatus, now time.Time) error {
	if !o.CanTransitionTo(target) {
		return ErrInvalidStatusTransition
	}
	o.Status = target
	o.UpdatedAt = now
	return nil
}

// Cancel cancels the order (domain behaviour)
func (o *Order) Cancel(now time.Time) error {
	return o.TransitionTo(OrderStatusCancelled, now)
}

// TotalQuantity sum of all line quantities
func (o *Order) TotalQuantity() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// IsOwnedBy reports whether the order was placed by customerRef
func (o *Order) IsOwnedBy(customerRef string) bool {
	return o.CustomerRef == customerRef
}
