package inventory

import (
	"context"

	domain "github.com/xiebiao/freshmart/internal/domain/inventory"
	"github.com/xiebiao/freshmart/pkg/tracing"
)

// GetBatchUseCase reads one batch; the status reflects the clock even before
// the sweeper persisted it
type GetBatchUseCase struct {
	service domain.Service
}

// NewGetBatchUseCase creates the use case
func NewGetBatchUseCase(service domain.Service) *GetBatchUseCase {
	return &GetBatchUseCase{service: service}
}

// Execute returns the batch
func (uc *GetBatchUseCase) Execute(ctx context.Context, batchID string) (_ *BatchResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "GetBatch")
	defer func() { tracing.EndSpan(span, err) }()

	b, err := uc.service.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return toBatchResponse(b), nil
}

// ListMovementsUseCase paginated stock history of a batch
type ListMovementsUseCase struct {
	service domain.Service
}

// NewListMovementsUseCase creates the use case
func NewListMovementsUseCase(service domain.Service) *ListMovementsUseCase {
	return &ListMovementsUseCase{service: service}
}

// ListMovementsResponse one page, newest first
type ListMovementsResponse struct {
	Movements []*MovementResponse
	Total     int64
	Page      int
	PageSize  int
}

// Execute lists movements; page and pageSize are normalized by the service
func (uc *ListMovementsUseCase) Execute(ctx context.Context, batchID string, page, pageSize int) (_ *ListMovementsResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "ListMovements")
	defer func() { tracing.EndSpan(span, err) }()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	movements, total, err := uc.service.Movements(ctx, batchID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &ListMovementsResponse{
		Movements: toMovementResponses(movements),
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}
