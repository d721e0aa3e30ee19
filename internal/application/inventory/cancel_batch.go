package inventory

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/pkg/clock"
	"github.com/xiebiao/freshmart/pkg/metrics"
	"github.com/xiebiao/freshmart/pkg/mq"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// CancelBatchUseCase soft-retires a batch (recall, damage). Movements and
// quantities are kept; the batch just stops serving.
type CancelBatchUseCase struct {
	service  domain.Service
	notifier *notifier
	clock    clock.Clock
	log      *zap.Logger
}

// NewCancelBatchUseCase creates the use case
func NewCancelBatchUseCase(
	service domain.Service,
	tx Transactor,
	cache AvailabilityCache,
	events mq.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *CancelBatchUseCase {
	n := newNotifier(tx, cache, events, log)
	return &CancelBatchUseCase{service: service, notifier: n, clock: clk, log: n.log}
}

// Execute cancels the batch
func (uc *CancelBatchUseCase) Execute(ctx context.Context, batchID, reason string) (_ *BatchResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "CancelBatch")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(attribute.String("batch_id", batchID))

	b, err := uc.service.CancelBatch(ctx, batchID, reason)
	if err != nil {
		return nil, err
	}

	uc.log.Info("batch cancelled",
		zap.String("batch_id", b.BatchID),
		zap.String("reason", reason),
		zap.Int64("available", b.AvailableQuantity))

	uc.notifier.afterCommit(ctx,
		[]productRef{{b.StoreID, b.ProductID}},
		outgoing{EventBatchCanceled, newBatchEvent(b, reason, uc.clock.Now())},
	)
	metrics.RecordTransition(string(domain.StatusCancelled), 1)
	return toBatchResponse(b), nil
}
