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

// DefaultSweepBatchSize batches examined per sweep when none is configured
const DefaultSweepBatchSize = 500

// SweepExpiredUseCase persists the lifecycle rule: active batches past their
// expiry become expired, empty ones depleted.
//
// Selling never waits for it; eligibility is evaluated against the clock on
// every read. The sweep only brings stored status and events in line.
type SweepExpiredUseCase struct {
	service   domain.Service
	notifier  *notifier
	batchSize int
	clock     clock.Clock
	log       *zap.Logger
}

// NewSweepExpiredUseCase creates the use case
func NewSweepExpiredUseCase(
	service domain.Service,
	tx Transactor,
	cache AvailabilityCache,
	events mq.EventPublisher,
	batchSize int,
	clk clock.Clock,
	log *zap.Logger,
) *SweepExpiredUseCase {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	n := newNotifier(tx, cache, events, log)
	return &SweepExpiredUseCase{service: service, notifier: n, batchSize: batchSize, clock: clk, log: n.log}
}

// SweepResponse outcome of one run
type SweepResponse struct {
	Expired  []string `json:"expired"`
	Depleted []string `json:"depleted"`
}

// Execute runs one sweep. Batches moved before a failure are still reported
// and announced.
func (uc *SweepExpiredUseCase) Execute(ctx context.Context) (_ *SweepResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "SweepExpired")
	defer func() {
		tracing.EndSpan(span, err)
		metrics.RecordSweep(metrics.ResultOf(err))
	}()

	result, err := uc.service.ExpireStale(ctx, uc.batchSize)
	if result == nil {
		return nil, err
	}

	resp := &SweepResponse{
		Expired:  batchIDs(result.Expired),
		Depleted: batchIDs(result.Depleted),
	}
	span.SetAttributes(
		attribute.Int("expired", len(resp.Expired)),
		attribute.Int("depleted", len(resp.Depleted)),
	)

	uc.announce(ctx, result)
	metrics.RecordTransition(string(domain.StatusExpired), len(result.Expired))
	metrics.RecordTransition(string(domain.StatusDepleted), len(result.Depleted))

	if len(resp.Expired)+len(resp.Depleted) > 0 {
		uc.log.Info("lifecycle sweep moved batches",
			zap.Int("expired", len(resp.Expired)),
			zap.Int("depleted", len(resp.Depleted)))
	}
	if err != nil {
		uc.log.Error("lifecycle sweep stopped early", zap.Error(err))
		return resp, err
	}
	return resp, nil
}

func (uc *SweepExpiredUseCase) announce(ctx context.Context, result *domain.SweepResult) {
	now := uc.clock.Now()
	var products []productRef
	var events []outgoing
	for _, b := range result.Expired {
		products = append(products, productRef{b.StoreID, b.ProductID})
		events = append(events, outgoing{EventBatchExpired, newBatchEvent(b, "expiry date reached", now)})
	}
	for _, b := range result.Depleted {
		products = append(products, productRef{b.StoreID, b.ProductID})
		events = append(events, outgoing{EventBatchDepleted, newBatchEvent(b, "", now)})
	}
	if len(products) == 0 {
		return
	}
	uc.notifier.afterCommit(ctx, products, events...)
}

func batchIDs(batches []*domain.Batch) []string {
	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.BatchID)
	}
	return ids
}
