package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	appinventory "github.com/xiebiao/freshmart/internal/application/inventory"
	"github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/internal/domain/order"
	"github.com/xiebiao/freshmart/pkg/clock"
	"github.com/xiebiao/freshmart/pkg/metrics"
	"github.com/xiebiao/freshmart/pkg/mq"
	"github.com/xiebiao/freshmart/pkg/saga"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// DefaultSagaTimeout deadline of one order placement
const DefaultSagaTimeout = 10 * time.Second

// PlaceOrderUseCase order creation collaborator
//
// Flow (saga):
//  1. persist-order-and-deduct: one transaction inserts the order and runs
//     deductForOrder with the same ctx, so the order exists iff its stock
//     was taken
//  2. publish-order-placed: announce the order; when it fails step 1 is
//     compensated by cancelling the order and releasing its stock
//
// A repeated idempotency key returns the order placed the first time.
type PlaceOrderUseCase struct {
	orders      order.Repository
	deduct      *appinventory.DeductForOrderUseCase
	canceller   *CancelOrderUseCase
	tx          appinventory.Transactor
	events      mq.EventPublisher
	sagaTimeout time.Duration
	clock       clock.Clock
	log         *zap.Logger
}

// NewPlaceOrderUseCase creates the use case
func NewPlaceOrderUseCase(
	orders order.Repository,
	deduct *appinventory.DeductForOrderUseCase,
	canceller *CancelOrderUseCase,
	tx appinventory.Transactor,
	events mq.EventPublisher,
	sagaTimeout time.Duration,
	clk clock.Clock,
	log *zap.Logger,
) *PlaceOrderUseCase {
	if events == nil {
		events = mq.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if sagaTimeout <= 0 {
		sagaTimeout = DefaultSagaTimeout
	}
	return &PlaceOrderUseCase{
		orders:      orders,
		deduct:      deduct,
		canceller:   canceller,
		tx:          tx,
		events:      events,
		sagaTimeout: sagaTimeout,
		clock:       clk,
		log:         log,
	}
}

// PlaceOrderRequest order placement
type PlaceOrderRequest struct {
	StoreID        string
	CustomerRef    string // from the JWT subject
	IdempotencyKey string
	Items          []OrderItem
}

// Execute places the order
func (uc *PlaceOrderUseCase) Execute(ctx context.Context, req PlaceOrderRequest) (resp *OrderResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "PlaceOrder")
	defer func() {
		tracing.EndSpan(span, err)
		if resp == nil || !resp.Replayed {
			metrics.RecordOrder(metrics.ResultOf(err))
		}
	}()
	span.SetAttributes(attribute.String("store_id", req.StoreID))

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		if existing, err := uc.placed(ctx, key); err != nil || existing != nil {
			return existing, err
		}
	}

	items := make([]order.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.OrderItem{ProductID: it.ProductID, VariantSKU: it.VariantSKU, Quantity: it.Quantity}
	}
	o, err := order.NewOrder(order.GenerateOrderNo(uc.clock.Now()), req.StoreID, req.CustomerRef, key, items, uc.clock.Now())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order_no", o.OrderNo))

	var allocations []inventory.Allocation
	s := saga.NewSaga(uc.sagaTimeout, uc.log)
	s.AddStep("persist-order-and-deduct",
		func(ctx context.Context) error {
			return uc.tx.Transaction(ctx, func(ctx context.Context) error {
				if err := uc.orders.Create(ctx, o); err != nil {
					return err
				}
				deducted, err := uc.deduct.Execute(ctx, appinventory.DeductForOrderRequest{
					OrderRef: o.OrderNo,
					Items:    toStockItems(o),
				})
				if err != nil {
					return err
				}
				allocations = deducted.Allocations
				return nil
			})
		},
		func(ctx context.Context) error {
			return uc.tx.Transaction(ctx, func(ctx context.Context) error {
				return uc.canceller.cancel(ctx, o, "order placement failed")
			})
		},
	)
	s.AddStep("publish-order-placed",
		func(ctx context.Context) error {
			return uc.events.Publish(ctx, EventOrderPlaced, newOrderEvent(o, "", uc.clock.Now()))
		},
		nil,
	)

	if err := s.Execute(ctx); err != nil {
		// the same key won a concurrent race
		if key != "" && errors.Is(err, order.ErrDuplicateOrder) {
			if existing, ferr := uc.placed(ctx, key); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		uc.log.Info("order placement failed",
			append(tracing.LogFields(ctx),
				zap.String("order_no", o.OrderNo),
				zap.String("store_id", o.StoreID),
				zap.Error(err))...)
		return nil, err
	}

	uc.log.Info("order placed",
		append(tracing.LogFields(ctx),
			zap.String("order_no", o.OrderNo),
			zap.String("store_id", o.StoreID),
			zap.Int64("units", o.TotalQuantity()))...)
	return toOrderResponse(o, allocations), nil
}

// placed returns the order already placed with key, nil when there is none
func (uc *PlaceOrderUseCase) placed(ctx context.Context, key string) (*OrderResponse, error) {
	o, err := uc.orders.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, order.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	resp := toOrderResponse(o, nil)
	resp.Replayed = true
	return resp, nil
}

func toStockItems(o *order.Order) []appinventory.StockItem {
	items := make([]appinventory.StockItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = appinventory.StockItem{
			StoreID:    o.StoreID,
			ProductID:  it.ProductID,
			VariantSKU: it.VariantSKU,
			Quantity:   it.Quantity,
		}
	}
	return items
}
