package order

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	appinventory "github.com/xiebiao/freshmart/internal/application/inventory"
	"github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/internal/domain/order"
	"github.com/xiebiao/freshmart/pkg/clock"
	"github.com/xiebiao/freshmart/pkg/mq"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// CancelOrderUseCase cancels a placed order and gives its stock back
type CancelOrderUseCase struct {
	orders  order.Repository
	release *appinventory.ReleaseForOrderUseCase
	tx      appinventory.Transactor
	events  mq.EventPublisher
	clock   clock.Clock
	log     *zap.Logger
}

// NewCancelOrderUseCase creates the use case
func NewCancelOrderUseCase(
	orders order.Repository,
	release *appinventory.ReleaseForOrderUseCase,
	tx appinventory.Transactor,
	events mq.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *CancelOrderUseCase {
	if events == nil {
		events = mq.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CancelOrderUseCase{orders: orders, release: release, tx: tx, events: events, clock: clk, log: log}
}

// CancelOrderRequest cancellation; Privileged callers (store staff) may
// cancel orders they did not place
type CancelOrderRequest struct {
	OrderNo     string
	CustomerRef string
	Privileged  bool
	Reason      string
}

// Execute cancels the order and releases its deductions in one transaction
func (uc *CancelOrderUseCase) Execute(ctx context.Context, req CancelOrderRequest) (_ *OrderResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "CancelOrder")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("order_no", req.OrderNo))

	var o *order.Order
	err = uc.tx.Transaction(ctx, func(ctx context.Context) error {
		found, err := uc.orders.FindByOrderNo(ctx, req.OrderNo)
		if err != nil {
			return err
		}
		o = found
		if !req.Privileged && !o.IsOwnedBy(req.CustomerRef) {
			return order.ErrNotOrderOwner
		}
		return uc.cancel(ctx, o, req.Reason)
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info("order cancelled",
		append(tracing.LogFields(ctx),
			zap.String("order_no", o.OrderNo),
			zap.String("store_id", o.StoreID),
			zap.String("reason", req.Reason))...)
	return toOrderResponse(o, nil), nil
}

// cancel flips the order to cancelled and releases its stock; caller owns
// the transaction. order.cancelled is published once it commits.
func (uc *CancelOrderUseCase) cancel(ctx context.Context, o *order.Order, reason string) error {
	from := o.Status
	if err := o.Cancel(uc.clock.Now()); err != nil {
		return err
	}
	ok, err := uc.orders.UpdateStatus(ctx, o, from)
	if err != nil {
		return err
	}
	if !ok {
		return order.ErrInvalidStatusTransition
	}

	_, err = uc.release.Execute(ctx, appinventory.ReleaseForOrderRequest{OrderRef: o.OrderNo, Reason: reason})
	if err != nil && !errors.Is(err, inventory.ErrNoDeductions) {
		return err
	}

	event := newOrderEvent(o, reason, uc.clock.Now())
	uc.tx.AfterCommit(ctx, func(ctx context.Context) {
		if err := uc.events.Publish(ctx, EventOrderCancelled, event); err != nil {
			uc.log.Warn("event publish failed",
				zap.String("routing_key", EventOrderCancelled),
				zap.String("order_no", event.OrderNo),
				zap.Error(err))
		}
	})
	return nil
}
