package handler

import (
	"github.com/gin-gonic/gin"

	apporder "github.com/xiebiao/freshmart/internal/application/order"
	"github.com/xiebiao/freshmart/internal/interface/http/dto"
	"github.com/xiebiao/freshmart/internal/interface/http/middleware"
	"github.com/xiebiao/freshmart/pkg/response"
)

// OrderHandler order collaborator endpoints
type OrderHandler struct {
	placeOrder  *apporder.PlaceOrderUseCase
	cancelOrder *apporder.CancelOrderUseCase
}

// NewOrderHandler creates the handler
func NewOrderHandler(placeOrder *apporder.PlaceOrderUseCase, cancelOrder *apporder.CancelOrderUseCase) *OrderHandler {
	return &OrderHandler{
		placeOrder:  placeOrder,
		cancelOrder: cancelOrder,
	}
}

// PlaceOrder create an order and deduct its stock in one transaction
// @Summary      Place order
// @Description  The order is stored only when every line could be deducted
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key header string                false "idempotency key"
// @Param        request         body   dto.PlaceOrderRequest true "order"
// @Success      200 {object} response.Response{data=apporder.OrderResponse}
// @Failure      200 {object} response.Response{data=inventory.InsufficientStockError} "40001 insufficient stock"
// @Router       /orders [post]
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	items := make([]apporder.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = apporder.OrderItem{ProductID: it.ProductID, VariantSKU: it.VariantSKU, Quantity: it.Quantity}
	}

	result, err := h.placeOrder.Execute(c.Request.Context(), apporder.PlaceOrderRequest{
		StoreID:        req.StoreID,
		CustomerRef:    middleware.GetOperatorID(c),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		Items:          items,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// CancelOrder cancel and release stock
// @Summary      Cancel order
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        order_no path string                 true  "order number"
// @Param        request  body dto.CancelOrderRequest false "reason"
// @Success      200 {object} response.Response{data=apporder.OrderResponse}
// @Failure      200 {object} response.Response "40403 order not found, 40104 not your order, 40002 already cancelled"
// @Router       /orders/{order_no}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var req dto.CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	result, err := h.cancelOrder.Execute(c.Request.Context(), apporder.CancelOrderRequest{
		OrderNo:     c.Param("order_no"),
		CustomerRef: middleware.GetOperatorID(c),
		Privileged:  middleware.IsPrivileged(c),
		Reason:      req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
