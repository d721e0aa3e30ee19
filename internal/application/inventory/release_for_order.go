package inventory

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/pkg/clock"
	"github.com/xiebiao/freshmart/pkg/mq"
	"github.com/xiebiao/freshmart/pkg/tracing"
)


// ReleaseForOrderUseCase gives back everything an order drew and has not
// given back yet (order cancellation, failed order placement)
type ReleaseForOrderUseCase struct {
	service   domain.Service
	requests  domain.DeductionRequestRepository
	movements domain.MovementRepository
	tx        Transactor
	notifier  *notifier
	clock     clock.Clock
	log       *zap.Logger
}

// NewReleaseForOrderUseCase creates the use case
func NewReleaseForOrderUseCase(
	service domain.Service,
	requests domain.DeductionRequestRepository,
	movements domain.MovementRepository,
	tx Transactor,
	cache AvailabilityCache,
	events mq.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *ReleaseForOrderUseCase {
	n := newNotifier(tx, cache, events, log)
	return &ReleaseForOrderUseCase{
		service:   service,
		requests:  requests,
		movements: movements,
		tx:        tx,
		notifier:  n,
		clock:     clk,
		log:       n.log,
	}
}

// ReleaseForOrderRequest release request
type ReleaseForOrderRequest struct {
	OrderRef string
	Reason   string
}

// ReleaseForOrderResponse stock returned per batch
type ReleaseForOrderResponse struct {
	OrderRef        string              `json:"order_ref"`
	Releases        []domain.Allocation `json:"releases"`
	AlreadyReleased bool                `json:"already_released"`
}

// Execute releases the order's outstanding deductions; a second call is a no-op
func (uc *ReleaseForOrderUseCase) Execute(ctx context.Context, req ReleaseForOrderRequest) (resp *ReleaseForOrderResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "ReleaseForOrder")
	defer func() { tracing.EndSpan(span, err) }()

	orderRef := strings.TrimSpace(req.OrderRef)
	if orderRef == "" {
		return nil, domain.ErrValidation.WithMessage("order_ref is required")
	}
	span.SetAttributes(attribute.String("order_ref", orderRef))

	err = uc.tx.Transaction(ctx, func(ctx context.Context) error {
		movements, err := uc.movements.ListByOrderRef(ctx, orderRef)
		if err != nil {
			return err
		}
		outstanding, batches := outstandingByBatch(movements)
		if len(batches) == 0 {
			return domain.ErrNoDeductions
		}

		if err := uc.requests.Create(ctx, &domain.DeductionRequest{
			IdempotencyKey: releaseKey(orderRef),
			OrderRef:       orderRef,
			CreatedAt:      uc.clock.Now(),
		}); err != nil {
			return err
		}

		resp = &ReleaseForOrderResponse{OrderRef: orderRef}
		for _, m := range batches {
			q := outstanding[m.BatchID]
			if q <= 0 {
				continue
			}
			b, err := uc.service.Release(ctx, m.BatchID, q, orderRef, req.Reason)
			if err != nil {
				return err
			}
			resp.Releases = append(resp.Releases, domain.Allocation{
				BatchID:    b.BatchID,
				StoreID:    b.StoreID,
				ProductID:  b.ProductID,
				VariantSKU: b.VariantSKU,
				Quantity:   q,
			})
		}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateRequest) {
		uc.log.Info("order stock already released", zap.String("order_ref", orderRef))
		return &ReleaseForOrderResponse{OrderRef: orderRef, AlreadyReleased: true}, nil
	}
	if err != nil {
		return nil, err
	}

	uc.log.Info("order stock released",
		append(tracing.LogFields(ctx),
			zap.String("order_ref", orderRef),
			zap.Int("batches", len(resp.Releases)),
			zap.String("reason", req.Reason))...)

	products := make([]productRef, 0, len(resp.Releases))
	for _, a := range resp.Releases {
		products = append(products, productRef{a.StoreID, a.ProductID})
	}
	uc.notifier.afterCommit(ctx, products,
		outgoing{EventStockReleased, newStockEvent(orderRef, resp.Releases, req.Reason, uc.clock.Now())})
	return resp, nil
}

// outstandingByBatch deducted minus released quantity per batch, plus the
// first DEDUCT movement of each batch in log order
func outstandingByBatch(movements []*domain.Movement) (map[string]int64, []*domain.Movement) {
	outstanding := make(map[string]int64)
	var batches []*domain.Movement
	for _, m := range movements {
		switch m.ChangeType {
		case domain.ChangeTypeDeduct:
			if _, seen := outstanding[m.BatchID]; !seen {
				batches = append(batches, m)
			}
			outstanding[m.BatchID] += -m.Quantity
		case domain.ChangeTypeRelease:
			outstanding[m.BatchID] -= m.Quantity
		}
	}
	return outstanding, batches
}
