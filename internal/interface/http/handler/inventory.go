package handler

import (
	"github.com/gin-gonic/gin"

	appinventory "github.com/xiebiao/freshmart/internal/application/inventory"
	"github.com/xiebiao/freshmart/internal/interface/http/dto"
	apperrors "github.com/xiebiao/freshmart/pkg/errors"
	"github.com/xiebiao/freshmart/pkg/response"
)

// InventoryHandler inventory ledger endpoints
type InventoryHandler struct {
	createBatch   *appinventory.CreateBatchUseCase
	getBatch      *appinventory.GetBatchUseCase
	listMovements *appinventory.ListMovementsUseCase
	restock       *appinventory.RestockBatchUseCase
	cancelBatch   *appinventory.CancelBatchUseCase
	check         *appinventory.CheckAvailabilityUseCase
	deduct        *appinventory.DeductForOrderUseCase
	release       *appinventory.ReleaseForOrderUseCase
	sweep         *appinventory.SweepExpiredUseCase
}

// NewInventoryHandler creates the handler
func NewInventoryHandler(
	createBatch *appinventory.CreateBatchUseCase,
	getBatch *appinventory.GetBatchUseCase,
	listMovements *appinventory.ListMovementsUseCase,
	restock *appinventory.RestockBatchUseCase,
	cancelBatch *appinventory.CancelBatchUseCase,
	check *appinventory.CheckAvailabilityUseCase,
	deduct *appinventory.DeductForOrderUseCase,
	release *appinventory.ReleaseForOrderUseCase,
	sweep *appinventory.SweepExpiredUseCase,
) *InventoryHandler {
	return &InventoryHandler{
		createBatch:   createBatch,
		getBatch:      getBatch,
		listMovements: listMovements,
		restock:       restock,
		cancelBatch:   cancelBatch,
		check:         check,
		deduct:        deduct,
		release:       release,
		sweep:         sweep,
	}
}

func bindError(c *gin.Context, err error) {
	response.Error(c, apperrors.ErrInvalidParams.WithMessage("invalid parameters: "+err.Error()))
}

// CreateBatch receive a new lot
// @Summary      Create batch
// @Description  Registers a newly received lot (restock with new batch data)
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.CreateBatchRequest true "batch data"
// @Success      200 {object} response.Response{data=appinventory.BatchResponse}
// @Failure      200 {object} response.Response "40900 invalid batch data, 40004 stock model conflict, 40009 duplicate batch number"
// @Router       /inventory/batches [post]
func (h *InventoryHandler) CreateBatch(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.createBatch.Execute(c.Request.Context(), appinventory.CreateBatchRequest{
		StoreID:         req.StoreID,
		ProductID:       req.ProductID,
		VariantSKU:      req.VariantSKU,
		BatchNumber:     req.BatchNumber,
		InitialQuantity: req.InitialQuantity,
		CostPrice:       req.CostPrice,
		UsesSharedStock: req.UsesSharedStock,
		BaseUnit:        req.BaseUnit,
		ExpiryDate:      req.ExpiryDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GetBatch batch detail
// @Summary      Get batch
// @Tags         inventory
// @Produce      json
// @Param        batch_id path string true "batch id"
// @Success      200 {object} response.Response{data=appinventory.BatchResponse}
// @Failure      200 {object} response.Response "40401 batch not found"
// @Router       /inventory/batches/{batch_id} [get]
func (h *InventoryHandler) GetBatch(c *gin.Context) {
	result, err := h.getBatch.Execute(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ListMovements stock history of a batch, newest first
// @Summary      List batch movements
// @Tags         inventory
// @Produce      json
// @Param        batch_id  path  string true  "batch id"
// @Param        page      query int    false "page"      default(1)
// @Param        page_size query int    false "page size" default(20)
// @Success      200 {object} response.Response{data=response.PageData}
// @Router       /inventory/batches/{batch_id}/movements [get]
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	var q dto.MovementsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.listMovements.Execute(c.Request.Context(), c.Param("batch_id"), q.Page, q.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPage(c, result.Movements, result.Total, result.Page, result.PageSize)
}

// Restock return stock to an existing batch
// @Summary      Restock batch
// @Description  Conditional increment bounded by the quantity the batch sold
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        batch_id path string             true "batch id"
// @Param        request  body dto.RestockRequest true "quantity"
// @Success      200 {object} response.Response{data=appinventory.BatchResponse}
// @Router       /inventory/batches/{batch_id}/restock [post]
func (h *InventoryHandler) Restock(c *gin.Context) {
	var req dto.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.restock.Execute(c.Request.Context(), appinventory.RestockBatchRequest{
		BatchID:  c.Param("batch_id"),
		Quantity: req.Quantity,
		Remark:   req.Remark,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// CancelBatch soft retire a batch
// @Summary      Cancel batch
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        batch_id path string                 true  "batch id"
// @Param        request  body dto.CancelBatchRequest false "reason"
// @Success      200 {object} response.Response{data=appinventory.BatchResponse}
// @Router       /inventory/batches/{batch_id}/cancel [post]
func (h *InventoryHandler) CancelBatch(c *gin.Context) {
	var req dto.CancelBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	result, err := h.cancelBatch.Execute(c.Request.Context(), c.Param("batch_id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// CheckAvailability checkAvailability(store, product, variant, quantity)
// @Summary      Check availability
// @Description  cached=true allows a display read from the availability cache
// @Tags         inventory
// @Produce      json
// @Param        store_id    query string true  "store"
// @Param        product_id  query string true  "product"
// @Param        variant_sku query string false "variant"
// @Param        quantity    query int    true  "quantity"
// @Param        cached      query bool   false "allow a cached answer"
// @Success      200 {object} response.Response{data=appinventory.CheckAvailabilityResponse}
// @Router       /inventory/availability [get]
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
	var q dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.check.Execute(c.Request.Context(), appinventory.CheckAvailabilityRequest{
		StoreID:     q.StoreID,
		ProductID:   q.ProductID,
		VariantSKU:  q.VariantSKU,
		Quantity:    q.Quantity,
		AllowCached: q.Cached,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Deduct deductForOrder, all or nothing
// @Summary      Deduct stock for an order
// @Description  Every line is deducted or none is. A repeated Idempotency-Key returns the first result.
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key header string            false "idempotency key"
// @Param        request         body   dto.DeductRequest true  "lines"
// @Success      200 {object} response.Response{data=appinventory.DeductForOrderResponse}
// @Failure      200 {object} response.Response{data=inventory.InsufficientStockError} "40001 insufficient stock"
// @Router       /inventory/deductions [post]
func (h *InventoryHandler) Deduct(c *gin.Context) {
	var req dto.DeductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	items := make([]appinventory.StockItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = appinventory.StockItem{
			StoreID:    it.StoreID,
			ProductID:  it.ProductID,
			VariantSKU: it.VariantSKU,
			Quantity:   it.Quantity,
		}
	}

	result, err := h.deduct.Execute(c.Request.Context(), appinventory.DeductForOrderRequest{
		OrderRef:       req.OrderRef,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		Items:          items,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Release give an order's deductions back
// @Summary      Release order stock
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.ReleaseRequest true "order"
// @Success      200 {object} response.Response{data=appinventory.ReleaseForOrderResponse}
// @Router       /inventory/releases [post]
func (h *InventoryHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.release.Execute(c.Request.Context(), appinventory.ReleaseForOrderRequest{
		OrderRef: req.OrderRef,
		Reason:   req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Sweep runs the lifecycle sweep now
// @Summary      Run expiry sweep
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.Response{data=appinventory.SweepResponse}
// @Router       /inventory/sweeps [post]
func (h *InventoryHandler) Sweep(c *gin.Context) {
	result, err := h.sweep.Execute(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
