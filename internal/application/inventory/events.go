package inventory

import (
	"time"

	"github.com/google/uuid"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
)

// Routing keys of inventory events
const (
	EventBatchCreated  = "inventory.batch.created"
	EventStockDeducted = "inventory.stock.deducted"
	EventStockReleased = "inventory.stock.released"
	EventStockRestored = "inventory.stock.restocked"
	EventBatchDepleted = "inventory.batch.depleted"
	EventBatchExpired  = "inventory.batch.expired"
	EventBatchCanceled = "inventory.batch.cancelled"
)

// BatchEvent state change of one batch
type BatchEvent struct {
	EventID           string    `json:"event_id"`
	BatchID           string    `json:"batch_id"`
	StoreID           string    `json:"store_id"`
	ProductID         string    `json:"product_id"`
	VariantSKU        string    `json:"variant_sku,omitempty"`
	Status            string    `json:"status"`
	AvailableQuantity int64     `json:"available_quantity"`
	Quantity          int64     `json:"quantity,omitempty"` // restocked amount
	Reason            string    `json:"reason,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func newBatchEvent(b *domain.Batch, reason string, now time.Time) BatchEvent {
	return BatchEvent{
		EventID:           uuid.NewString(),
		BatchID:           b.BatchID,
		StoreID:           b.StoreID,
		ProductID:         b.ProductID,
		VariantSKU:        b.VariantSKU,
		Status:            string(b.Status),
		AvailableQuantity: b.AvailableQuantity,
		Reason:            reason,
		OccurredAt:        now,
	}
}

// StockEvent stock drawn from or returned to batches for one order
type StockEvent struct {
	EventID     string              `json:"event_id"`
	OrderRef    string              `json:"order_ref"`
	Allocations []domain.Allocation `json:"allocations"`
	Reason      string              `json:"reason,omitempty"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

func newStockEvent(orderRef string, allocations []domain.Allocation, reason string, now time.Time) StockEvent {
	return StockEvent{
		EventID:     uuid.NewString(),
		OrderRef:    orderRef,
		Allocations: allocations,
		Reason:      reason,
		OccurredAt:  now,
	}
}
