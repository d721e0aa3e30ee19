package inventory

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// CheckAvailabilityUseCase checkAvailability(store, product, variant, quantity)
//
// Design notes:
//  1. read only, repeatable: two calls with no mutation in between agree
//  2. AllowCached serves display reads from Redis for a few seconds; a
//     feasibility check before ordering leaves it false and reads the store
//  3. a cache failure falls back to the store, never to an error
type CheckAvailabilityUseCase struct {
	service domain.Service
	cache   AvailabilityCache
	log     *zap.Logger
}

// NewCheckAvailabilityUseCase creates the use case
func NewCheckAvailabilityUseCase(service domain.Service, cache AvailabilityCache, log *zap.Logger) *CheckAvailabilityUseCase {
	if cache == nil {
		cache = NoCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckAvailabilityUseCase{service: service, cache: cache, log: log}
}

// CheckAvailabilityRequest query
type CheckAvailabilityRequest struct {
	StoreID     string
	ProductID   string
	VariantSKU  string
	Quantity    int64
	AllowCached bool
}

// CheckAvailabilityResponse answer
type CheckAvailabilityResponse struct {
	Available         bool  `json:"available"`
	Requested         int64 `json:"requested"`
	AvailableQuantity int64 `json:"available_quantity"`
	Cached            bool  `json:"cached"`
}

// Execute answers whether quantity can be sold now
func (uc *CheckAvailabilityUseCase) Execute(ctx context.Context, req CheckAvailabilityRequest) (_ *CheckAvailabilityResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "CheckAvailability")
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(
		attribute.String("store_id", req.StoreID),
		attribute.String("product_id", req.ProductID),
		attribute.String("variant_sku", req.VariantSKU),
		attribute.Bool("allow_cached", req.AllowCached),
	)

	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	quantity, cached, err := uc.availableQuantity(ctx, req)
	if err != nil {
		return nil, err
	}

	return &CheckAvailabilityResponse{
		Available:         quantity >= req.Quantity,
		Requested:         req.Quantity,
		AvailableQuantity: quantity,
		Cached:            cached,
	}, nil
}

func (uc *CheckAvailabilityUseCase) availableQuantity(ctx context.Context, req CheckAvailabilityRequest) (int64, bool, error) {
	if req.AllowCached {
		quantity, ok, err := uc.cache.Get(ctx, req.StoreID, req.ProductID, req.VariantSKU)
		if err != nil {
			uc.log.Debug("availability cache read failed, using store", zap.Error(err))
		} else if ok {
			return quantity, true, nil
		}
	}

	quantity, err := uc.service.AvailableQuantity(ctx, req.StoreID, req.ProductID, req.VariantSKU)
	if err != nil {
		return 0, false, err
	}

	if req.AllowCached {
		if err := uc.cache.Set(ctx, req.StoreID, req.ProductID, req.VariantSKU, quantity); err != nil {
			uc.log.Debug("availability cache write failed", zap.Error(err))
		}
	}
	return quantity, false, nil
}
