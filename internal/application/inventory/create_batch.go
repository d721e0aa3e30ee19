package inventory

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/pkg/clock"
	"github.com/xiebiao/freshmart/pkg/mq"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// CreateBatchUseCase receives a new lot (restock with new batch data)
type CreateBatchUseCase struct {
	service  domain.Service
	notifier *notifier
	clock    clock.Clock
	log      *zap.Logger
}

// NewCreateBatchUseCase creates the use case
func NewCreateBatchUseCase(
	service domain.Service,
	tx Transactor,
	cache AvailabilityCache,
	events mq.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *CreateBatchUseCase {
	n := newNotifier(tx, cache, events, log)
	return &CreateBatchUseCase{service: service, notifier: n, clock: clk, log: n.log}
}

// CreateBatchRequest new lot data
type CreateBatchRequest struct {
	StoreID         string
	ProductID       string
	VariantSKU      string
	BatchNumber     string
	InitialQuantity int64
	CostPrice       int64
	UsesSharedStock bool
	BaseUnit        string
	ExpiryDate      *time.Time
}

// Execute creates the batch, then drops cached availability of the product
func (uc *CreateBatchUseCase) Execute(ctx context.Context, req CreateBatchRequest) (_ *BatchResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "CreateBatch")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("store_id", req.StoreID),
		attribute.String("product_id", req.ProductID),
	)

	b, err := uc.service.CreateBatch(ctx, domain.CreateBatchParams{
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
		return nil, err
	}

	uc.log.Info("batch created",
		zap.String("batch_id", b.BatchID),
		zap.String("store_id", b.StoreID),
		zap.String("product_id", b.ProductID),
		zap.String("variant_sku", b.VariantSKU),
		zap.Int64("quantity", b.InitialQuantity))

	uc.notifier.afterCommit(ctx,
		[]productRef{{b.StoreID, b.ProductID}},
		outgoing{EventBatchCreated, newBatchEvent(b, "", uc.clock.Now())},
	)
	return toBatchResponse(b), nil
}
