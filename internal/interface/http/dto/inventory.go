package dto

import "time"

// CreateBatchRequest receive a new lot
// binding tags are checked by gin's validator before the use case runs;
// the domain re-validates the shared-stock rules.
type CreateBatchRequest struct {
	StoreID         string     `json:"store_id" binding:"required,max=64" example:"store-1"`
	ProductID       string     `json:"product_id" binding:"required,max=64" example:"apple"`
	VariantSKU      string     `json:"variant_sku" binding:"max=64" example:"apple-1kg"`
	BatchNumber     string     `json:"batch_number" binding:"max=64" example:"LOT-2026-03-01"`
	InitialQuantity int64      `json:"initial_quantity" binding:"required,min=1" example:"120"`
	CostPrice       int64      `json:"cost_price" binding:"min=0" example:"350"` // cents
	UsesSharedStock bool       `json:"uses_shared_stock" example:"false"`
	BaseUnit        string     `json:"base_unit" binding:"max=16" example:"g"`
	ExpiryDate      *time.Time `json:"expiry_date" example:"2026-03-08T00:00:00Z"`
}

// RestockRequest return stock to an existing batch
type RestockRequest struct {
	Quantity int64  `json:"quantity" binding:"required,min=1" example:"3"`
	Remark   string `json:"remark" binding:"max=255" example:"customer return"`
}

// CancelBatchRequest soft retire
type CancelBatchRequest struct {
	Reason string `json:"reason" binding:"max=255" example:"supplier recall"`
}

// AvailabilityQuery GET /inventory/availability
type AvailabilityQuery struct {
	StoreID    string `form:"store_id" binding:"required"`
	ProductID  string `form:"product_id" binding:"required"`
	VariantSKU string `form:"variant_sku"`
	Quantity   int64  `form:"quantity" binding:"required,min=1"`
	Cached     bool   `form:"cached"`
}

// StockItem one line of a deduction
type StockItem struct {
	StoreID    string `json:"store_id" binding:"required" example:"store-1"`
	ProductID  string `json:"product_id" binding:"required" example:"apple"`
	VariantSKU string `json:"variant_sku" example:"apple-1kg"`
	Quantity   int64  `json:"quantity" binding:"required,min=1" example:"2"`
}

// DeductRequest deductForOrder; the idempotency key travels in the
// Idempotency-Key header
type DeductRequest struct {
	OrderRef string      `json:"order_ref" binding:"max=64" example:"FM1767254400123456"`
	Items    []StockItem `json:"items" binding:"required,min=1,max=100,dive"`
}

// ReleaseRequest give an order's stock back
type ReleaseRequest struct {
	OrderRef string `json:"order_ref" binding:"required,max=64" example:"FM1767254400123456"`
	Reason   string `json:"reason" binding:"max=255" example:"payment timeout"`
}

// MovementsQuery pagination of a batch history
type MovementsQuery struct {
	Page     int `form:"page,default=1" binding:"min=1"`
	PageSize int `form:"page_size,default=20" binding:"min=1,max=100"`
}
