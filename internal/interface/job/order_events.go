package job

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	appinventory "github.com/xiebiao/freshmart/internal/application/inventory"
	apporder "github.com/xiebiao/freshmart/internal/application/order"
	"github.com/xiebiao/freshmart/internal/domain/inventory"
)

// OrderEventsQueue durable queue of order events consumed by the ledger
const OrderEventsQueue = "freshmart.inventory.order-events"

// Releaser gives an order's deductions back (appinventory.ReleaseForOrderUseCase)
type Releaser interface {
	Execute(ctx context.Context, req appinventory.ReleaseForOrderRequest) (*appinventory.ReleaseForOrderResponse, error)
}

// OrderEventHandler releases stock of orders cancelled by other order
// systems sharing the exchange. Orders cancelled in-process are already
// released; the repeated release is a no-op.
type OrderEventHandler struct {
	release Releaser
	log     *zap.Logger
}

func NewOrderEventHandler(release Releaser, log *zap.Logger) *OrderEventHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderEventHandler{release: release, log: log}
}

// RoutingKeys bindings of OrderEventsQueue
func (h *OrderEventHandler) RoutingKeys() []string {
	return []string{apporder.EventOrderCancelled}
}

// Handle processes one delivery. A nil return acks it; an error requeues it.
func (h *OrderEventHandler) Handle(ctx context.Context, routingKey string, body []byte) error {
	if routingKey != apporder.EventOrderCancelled {
		return nil
	}

	var evt apporder.OrderEvent
	if err := json.Unmarshal(body, &evt); err != nil || evt.OrderNo == "" {
		// unparseable messages would loop forever
		h.log.Error("dropping malformed order event",
			zap.String("routing_key", routingKey),
			zap.ByteString("body", body),
			zap.Error(err))
		return nil
	}

	reason := evt.Reason
	if reason == "" {
		reason = "order cancelled"
	}
	resp, err := h.release.Execute(ctx, appinventory.ReleaseForOrderRequest{
		OrderRef: evt.OrderNo,
		Reason:   reason,
	})
	switch {
	case errors.Is(err, inventory.ErrNoDeductions):
		h.log.Debug("cancelled order had no deductions", zap.String("order_no", evt.OrderNo))
		return nil
	case err != nil:
		return err
	}

	h.log.Info("order stock released from event",
		zap.String("order_no", evt.OrderNo),
		zap.Bool("already_released", resp.AlreadyReleased),
		zap.Int("batches", len(resp.Releases)))
	return nil
}
