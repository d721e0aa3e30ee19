package inventory

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/pkg/clock"
	"github.com/xiebiao/freshmart/pkg/mq"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// RestockBatchUseCase returns stock to an existing lot (customer return,
// recount); bounded by what the lot sold
type RestockBatchUseCase struct {
	service  domain.Service
	notifier *notifier
	clock    clock.Clock
	log      *zap.Logger
}

// NewRestockBatchUseCase creates the use case
func NewRestockBatchUseCase(
	service domain.Service,
	tx Transactor,
	cache AvailabilityCache,
	events mq.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *RestockBatchUseCase {
	n := newNotifier(tx, cache, events, log)
	return &RestockBatchUseCase{service: service, notifier: n, clock: clk, log: n.log}
}

// RestockBatchRequest restock request
type RestockBatchRequest struct {
	BatchID  string
	Quantity int64
	Remark   string
}

// Execute increments the batch and reactivates it when it was depleted
func (uc *RestockBatchUseCase) Execute(ctx context.Context, req RestockBatchRequest) (_ *BatchResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "RestockBatch")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("batch_id", req.BatchID),
		attribute.Int64("quantity", req.Quantity),
	)

	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	b, err := uc.service.Restock(ctx, req.BatchID, req.Quantity, req.Remark)
	if err != nil {
		return nil, err
	}

	uc.log.Info("batch restocked",
		zap.String("batch_id", b.BatchID),
		zap.Int64("quantity", req.Quantity),
		zap.Int64("available", b.AvailableQuantity),
		zap.String("status", string(b.Status)))

	event := newBatchEvent(b, req.Remark, uc.clock.Now())
	event.Quantity = req.Quantity
	uc.notifier.afterCommit(ctx, []productRef{{b.StoreID, b.ProductID}}, outgoing{EventStockRestored, event})
	return toBatchResponse(b), nil
}
