package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/internal/domain/order"
)

const tracerName = "freshmart/order"

// Routing keys of order events
const (
	EventOrderPlaced    = "order.placed"
	EventOrderCancelled = "order.cancelled"
)

// OrderItem order line as sent and returned
type OrderItem struct {
	ProductID  string `json:"product_id"`
	VariantSKU string `json:"variant_sku,omitempty"`
	Quantity   int64  `json:"quantity"`
}

// OrderResponse placed or cancelled order
type OrderResponse struct {
	OrderNo     string                 `json:"order_no"`
	StoreID     string                 `json:"store_id"`
	Status      string                 `json:"status"`
	Items       []OrderItem            `json:"items"`
	Allocations []inventory.Allocation `json:"allocations,omitempty"`
	Replayed    bool                   `json:"replayed,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func toOrderResponse(o *order.Order, allocations []inventory.Allocation) *OrderResponse {
	return &OrderResponse{
		OrderNo:     o.OrderNo,
		StoreID:     o.StoreID,
		Status:      o.Status.String(),
		Items:       toItems(o.Items),
		Allocations: allocations,
		CreatedAt:   o.CreatedAt,
	}
}

func toItems(items []order.OrderItem) []OrderItem {
	out := make([]OrderItem, len(items))
	for i, it := range items {
		out[i] = OrderItem{ProductID: it.ProductID, VariantSKU: it.VariantSKU, Quantity: it.Quantity}
	}
	return out
}

// OrderEvent order.placed / order.cancelled payload
type OrderEvent struct {
	EventID     string      `json:"event_id"`
	OrderNo     string      `json:"order_no"`
	StoreID     string      `json:"store_id"`
	CustomerRef string      `json:"customer_ref"`
	Items       []OrderItem `json:"items"`
	Reason      string      `json:"reason,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

func newOrderEvent(o *order.Order, reason string, now time.Time) OrderEvent {
	return OrderEvent{
		EventID:     uuid.NewString(),
		OrderNo:     o.OrderNo,
		StoreID:     o.StoreID,
		CustomerRef: o.CustomerRef,
		Items:       toItems(o.Items),
		Reason:      reason,
		OccurredAt:  now,
	}
}
