package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/freshmart/internal/domain/order"
	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// orderRepository order repository (MySQL)
//
// Design notes:
//  1. Order and OrderItem are saved together (one aggregate)
//  2. reads Preload the items to avoid N+1 queries
//  3. the transaction travels in the context
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates the order repository
func NewOrderRepository(db *gorm.DB) order.Repository {
	return &orderRepository{db: db}
}

// Create saves the order and its items; GORM inserts the Items association
func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	model := toOrderModel(o)

	if err := dbFromContext(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return order.ErrDuplicateOrder
		}
		return apperrors.Wrap(err, "failed to create order")
	}

	o.ID = model.ID
	for i := range o.Items {
		o.Items[i].ID = model.Items[i].ID
		o.Items[i].OrderID = model.ID
	}
	return nil
}

// FindByOrderNo loads an order with its items
func (r *orderRepository) FindByOrderNo(ctx context.Context, orderNo string) (*order.Order, error) {
	return r.findOne(ctx, "order_no = ?", orderNo)
}

// FindByIdempotencyKey loads the order placed with key
func (r *orderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return r.findOne(ctx, "idempotency_key = ?", key)
}

func (r *orderRepository) findOne(ctx context.Context, query string, arg interface{}) (*order.Order, error) {
	var model OrderModel
	err := dbFromContext(ctx, r.db).Preload("Items").Where(query, arg).First(&model).Error
	if err != nil {
		if isNotFound(err) {
			return nil, order.ErrOrderNotFound
		}
		return nil, apperrors.Wrap(err, "failed to query order")
	}
	return toOrderEntity(&model), nil
}

// UpdateStatus conditional status update; items are never rewritten
func (r *orderRepository) UpdateStatus(ctx context.Context, o *order.Order, from order.OrderStatus) (bool, error) {
	result := dbFromContext(ctx, r.db).Model(&OrderModel{}).
		Where("id = ? AND status = ?", o.ID, int(from)).
		UpdateColumns(map[string]interface{}{
			"status":     int(o.Status),
			"updated_at": o.UpdatedAt,
		})
	if result.Error != nil {
		return false, apperrors.Wrap(result.Error, "failed to update order")
	}
	return result.RowsAffected == 1, nil
}

// =========================================
// Model conversion
// =========================================

func toOrderModel(o *order.Order) *OrderModel {
	items := make([]OrderItemModel, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemModel{
			ID:         item.ID,
			OrderID:    item.OrderID,
			ProductID:  item.ProductID,
			VariantSKU: item.VariantSKU,
			Quantity:   item.Quantity,
		}
	}

	var key *string
	if o.IdempotencyKey != "" {
		k := o.IdempotencyKey
		key = &k
	}

	return &OrderModel{
		ID:             o.ID,
		OrderNo:        o.OrderNo,
		StoreID:        o.StoreID,
		CustomerRef:    o.CustomerRef,
		IdempotencyKey: key,
		Status:         int(o.Status),
		Items:          items,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func toOrderEntity(model *OrderModel) *order.Order {
	items := make([]order.OrderItem, len(model.Items))
	for i, item := range model.Items {
		items[i] = order.OrderItem{
			ID:         item.ID,
			OrderID:    item.OrderID,
			ProductID:  item.ProductID,
			VariantSKU: item.VariantSKU,
			Quantity:   item.Quantity,
		}
	}

	o := &order.Order{
		ID:          model.ID,
		OrderNo:     model.OrderNo,
		StoreID:     model.StoreID,
		CustomerRef: model.CustomerRef,
		Status:      order.OrderStatus(model.Status),
		Items:       items,
		CreatedAt:   model.CreatedAt.UTC(),
		UpdatedAt:   model.UpdatedAt.UTC(),
	}
	if model.IdempotencyKey != nil {
		o.IdempotencyKey = *model.IdempotencyKey
	}
	return o
}
