package inventory

import (
	"time"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
)

// BatchResponse batch as returned by the use cases
type BatchResponse struct {
	BatchID           string     `json:"batch_id"`
	StoreID           string     `json:"store_id"`
	ProductID         string     `json:"product_id"`
	VariantSKU        string     `json:"variant_sku"`
	BatchNumber       string     `json:"batch_number,omitempty"`
	InitialQuantity   int64      `json:"initial_quantity"`
	AvailableQuantity int64      `json:"available_quantity"`
	SoldQuantity      int64      `json:"sold_quantity"`
	CostPrice         int64      `json:"cost_price"` // cents
	UsesSharedStock   bool       `json:"uses_shared_stock"`
	BaseUnit          string     `json:"base_unit,omitempty"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toBatchResponse(b *domain.Batch) *BatchResponse {
	return &BatchResponse{
		BatchID:           b.BatchID,
		StoreID:           b.StoreID,
		ProductID:         b.ProductID,
		VariantSKU:        b.VariantSKU,
		BatchNumber:       b.BatchNumber,
		InitialQuantity:   b.InitialQuantity,
		AvailableQuantity: b.AvailableQuantity,
		SoldQuantity:      b.SoldQuantity,
		CostPrice:         b.CostPrice,
		UsesSharedStock:   b.UsesSharedStock,
		BaseUnit:          b.BaseUnit,
		ExpiryDate:        b.ExpiryDate,
		Status:            string(b.Status),
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

// MovementResponse one stock movement
type MovementResponse struct {
	ChangeType      string    `json:"change_type"`
	Quantity        int64     `json:"quantity"`
	BeforeAvailable int64     `json:"before_available"`
	AfterAvailable  int64     `json:"after_available"`
	OrderRef        string    `json:"order_ref,omitempty"`
	Remark          string    `json:"remark,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toMovementResponses(movements []*domain.Movement) []*MovementResponse {
	out := make([]*MovementResponse, len(movements))
	for i, m := range movements {
		out[i] = &MovementResponse{
			ChangeType:      string(m.ChangeType),
			Quantity:        m.Quantity,
			BeforeAvailable: m.BeforeAvailable,
			AfterAvailable:  m.AfterAvailable,
			OrderRef:        m.OrderRef,
			Remark:          m.Remark,
			CreatedAt:       m.CreatedAt,
		}
	}
	return out
}
