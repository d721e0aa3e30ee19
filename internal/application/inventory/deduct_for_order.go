package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/pkg/clock"
	apperrors "github.com/xiebiao/freshmart/pkg/errors"
	"github.com/xiebiao/freshmart/pkg/metrics"
	"github.com/xiebiao/freshmart/pkg/mq"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// Keys of the deduction_requests table. Each kind has its own prefix so a
// client key can never collide with a guard row.
const (
	// deduct:{client key} replays a committed deduction
	deductKeyPrefix = "deduct:"
	// order:{order_ref} lets an order reference draw stock once
	orderKeyPrefix = "order:"
	// release:{order_ref} lets an order's stock be given back once
	releaseKeyPrefix = "release:"

	maxIdempotencyKeyLen = 64
)

func deductKey(key string) string { return deductKeyPrefix + key }

func orderKey(orderRef string) string { return orderKeyPrefix + orderRef }

func releaseKey(orderRef string) string { return releaseKeyPrefix + orderRef }

// DeductForOrderUseCase deductForOrder(items, orderRef, idempotencyKey)
//
// Design notes:
//  1. all-or-nothing: every line is allocated in one transaction, the first
//     failing line rolls back the lines before it
//  2. lines naming the same store/product/variant are merged first, so an
//     order never races itself for the last unit
//  3. a repeated idempotency key replays the recorded allocations without
//     touching stock
//  4. an order reference draws stock at most once; a reused reference is
//     rejected so its later release cannot be shadowed by an earlier one
//  5. called with a ctx that carries a transaction (order placement) the
//     work joins it; cache and events wait for that outer commit
type DeductForOrderUseCase struct {
	service   domain.Service
	requests  domain.DeductionRequestRepository
	movements domain.MovementRepository
	tx        Transactor
	notifier  *notifier
	clock     clock.Clock
	log       *zap.Logger
}

// NewDeductForOrderUseCase creates the use case
func NewDeductForOrderUseCase(
	service domain.Service,
	requests domain.DeductionRequestRepository,
	movements domain.MovementRepository,
	tx Transactor,
	cache AvailabilityCache,
	events mq.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *DeductForOrderUseCase {
	n := newNotifier(tx, cache, events, log)
	return &DeductForOrderUseCase{
		service:   service,
		requests:  requests,
		movements: movements,
		tx:        tx,
		notifier:  n,
		clock:     clk,
		log:       n.log,
	}
}

// StockItem one requested line
type StockItem struct {
	StoreID    string
	ProductID  string
	VariantSKU string
	Quantity   int64
}

// DeductForOrderRequest deduction request; OrderRef is generated when empty
type DeductForOrderRequest struct {
	OrderRef       string
	IdempotencyKey string
	Items          []StockItem
}

// DeductForOrderResponse allocations drawn for the order
type DeductForOrderResponse struct {
	OrderRef    string              `json:"order_ref"`
	Allocations []domain.Allocation `json:"allocations"`
	Replayed    bool                `json:"replayed"`
}

// Units total quantity drawn
func (r *DeductForOrderResponse) Units() int64 {
	var n int64
	for _, a := range r.Allocations {
		n += a.Quantity
	}
	return n
}

// Execute deducts every line or nothing
func (uc *DeductForOrderUseCase) Execute(ctx context.Context, req DeductForOrderRequest) (resp *DeductForOrderResponse, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "DeductForOrder")
	defer func() {
		tracing.EndSpan(span, err)
		var units int64
		if resp != nil && !resp.Replayed {
			units = resp.Units()
		}
		metrics.RecordDeduction(deductionResult(err), units, time.Since(start))
	}()

	lines, err := validateItems(req.Items)
	if err != nil {
		return nil, err
	}

	orderRef := strings.TrimSpace(req.OrderRef)
	if orderRef == "" {
		orderRef = "DED-" + uuid.NewString()
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return nil, domain.ErrIdempotencyKeyTooLong
	}
	span.SetAttributes(
		attribute.String("order_ref", orderRef),
		attribute.Int("lines", len(lines)),
		attribute.Bool("idempotent", key != ""),
	)

	err = uc.tx.Transaction(ctx, func(ctx context.Context) error {
		if key != "" {
			existing, err := uc.requests.FindByKey(ctx, deductKey(key))
			if err != nil {
				return err
			}
			if existing != nil {
				resp, err = uc.replay(ctx, existing)
				return err
			}
			if err := uc.requests.Create(ctx, &domain.DeductionRequest{
				IdempotencyKey: deductKey(key),
				OrderRef:       orderRef,
				CreatedAt:      uc.clock.Now(),
			}); err != nil {
				return err
			}
		}
		if err := uc.claimOrderRef(ctx, orderRef); err != nil {
			return err
		}

		var allocations []domain.Allocation
		for _, line := range lines {
			a, err := uc.service.Allocate(ctx, line, orderRef)
			if err != nil {
				return err
			}
			allocations = append(allocations, a...)
		}
		resp = &DeductForOrderResponse{OrderRef: orderRef, Allocations: allocations}
		return nil
	})

	// a concurrent request with the same key committed between our lookup
	// and insert
	if key != "" && errors.Is(err, domain.ErrDuplicateRequest) {
		existing, ferr := uc.requests.FindByKey(ctx, deductKey(key))
		if ferr != nil {
			return nil, ferr
		}
		if existing != nil {
			resp, err = uc.replay(ctx, existing)
		}
	}
	if err != nil {
		resp = nil
		uc.logFailure(ctx, orderRef, err)
		return nil, err
	}

	if resp.Replayed {
		uc.log.Info("deduction replayed",
			append(tracing.LogFields(ctx),
				zap.String("order_ref", resp.OrderRef),
				zap.String("idempotency_key", key))...)
		return resp, nil
	}

	uc.log.Info("stock deducted",
		append(tracing.LogFields(ctx),
			zap.String("order_ref", orderRef),
			zap.Int("allocations", len(resp.Allocations)),
			zap.Int64("units", resp.Units()))...)

	uc.publish(ctx, resp)
	return resp, nil
}

func (uc *DeductForOrderUseCase) publish(ctx context.Context, resp *DeductForOrderResponse) {
	now := uc.clock.Now()
	products := make([]productRef, 0, len(resp.Allocations))
	events := []outgoing{{EventStockDeducted, newStockEvent(resp.OrderRef, resp.Allocations, "", now)}}

	depleted := 0
	for _, a := range resp.Allocations {
		products = append(products, productRef{a.StoreID, a.ProductID})
		if !a.Depleted {
			continue
		}
		depleted++
		events = append(events, outgoing{EventBatchDepleted, BatchEvent{
			EventID:    uuid.NewString(),
			BatchID:    a.BatchID,
			StoreID:    a.StoreID,
			ProductID:  a.ProductID,
			VariantSKU: a.VariantSKU,
			Status:     string(domain.StatusDepleted),
			OccurredAt: now,
		}})
	}

	uc.notifier.afterCommit(ctx, products, events...)
	uc.tx.AfterCommit(ctx, func(context.Context) {
		metrics.RecordTransition(string(domain.StatusDepleted), depleted)
	})
}

// claimOrderRef records the order reference, failing when it already drew or
// released stock
func (uc *DeductForOrderUseCase) claimOrderRef(ctx context.Context, orderRef string) error {
	for _, k := range []string{releaseKey(orderRef), orderKey(orderRef)} {
		existing, err := uc.requests.FindByKey(ctx, k)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrOrderRefInUse
		}
	}
	err := uc.requests.Create(ctx, &domain.DeductionRequest{
		IdempotencyKey: orderKey(orderRef),
		OrderRef:       orderRef,
		CreatedAt:      uc.clock.Now(),
	})
	if errors.Is(err, domain.ErrDuplicateRequest) {
		return domain.ErrOrderRefInUse
	}
	return err
}

// replay rebuilds the response of an already committed deduction from its
// DEDUCT movements
func (uc *DeductForOrderUseCase) replay(ctx context.Context, req *domain.DeductionRequest) (*DeductForOrderResponse, error) {
	movements, err := uc.movements.ListByOrderRef(ctx, req.OrderRef)
	if err != nil {
		return nil, err
	}

	resp := &DeductForOrderResponse{OrderRef: req.OrderRef, Replayed: true}
	for _, m := range movements {
		if m.ChangeType != domain.ChangeTypeDeduct {
			continue
		}
		resp.Allocations = append(resp.Allocations, domain.Allocation{
			BatchID:    m.BatchID,
			StoreID:    m.StoreID,
			ProductID:  m.ProductID,
			VariantSKU: m.VariantSKU,
			Quantity:   -m.Quantity,
			Depleted:   m.AfterAvailable == 0,
		})
	}
	return resp, nil
}

func (uc *DeductForOrderUseCase) logFailure(ctx context.Context, orderRef string, err error) {
	fields := append(tracing.LogFields(ctx), zap.String("order_ref", orderRef), zap.Error(err))

	var insufficient *domain.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		uc.log.Info("deduction rejected: insufficient stock",
			append(fields,
				zap.String("product_id", insufficient.ProductID),
				zap.String("variant_sku", insufficient.VariantSKU),
				zap.Int64("requested", insufficient.Requested),
				zap.Int64("available", insufficient.Available),
				zap.String("reason", string(insufficient.Reason)))...)
	case apperrors.IsClientError(apperrors.GetAppError(err).Code):
		uc.log.Info("deduction rejected", fields...)
	default:
		uc.log.Error("deduction failed", fields...)
	}
}

// validateItems rejects empty requests and non-positive quantities before
// any stock is touched, then merges duplicate lines
func validateItems(items []StockItem) ([]domain.StockLine, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	lines := make([]domain.StockLine, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.StoreID) == "" {
			return nil, domain.ErrMissingStoreID
		}
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, domain.ErrMissingProductID
		}
		if it.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		lines = append(lines, domain.StockLine{
			StoreID:    it.StoreID,
			ProductID:  it.ProductID,
			VariantSKU: it.VariantSKU,
			Quantity:   it.Quantity,
		})
	}
	return domain.MergeLines(lines), nil
}

func deductionResult(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	if r := metrics.ResultOf(err); r == metrics.ResultInsufficient {
		return r
	}
	if apperrors.IsClientError(apperrors.GetAppError(err).Code) {
		return metrics.ResultRejected
	}
	return metrics.ResultError
}
