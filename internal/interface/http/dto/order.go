package dto

// OrderItem one order line
type OrderItem struct {
	ProductID  string `json:"product_id" binding:"required" example:"apple"`
	VariantSKU string `json:"variant_sku" example:"apple-1kg"`
	Quantity   int64  `json:"quantity" binding:"required,min=1,max=999" example:"2"`
}

// PlaceOrderRequest place an order in one store
type PlaceOrderRequest struct {
	StoreID string      `json:"store_id" binding:"required" example:"store-1"`
	Items   []OrderItem `json:"items" binding:"required,min=1,max=100,dive"`
}

// CancelOrderRequest cancel a placed order
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=255" example:"changed my mind"`
}
