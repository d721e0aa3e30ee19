package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/freshmart/internal/domain/inventory"
	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// deductionRequestRepository idempotency keys
//
// The key row is inserted in the same transaction as the deductions: a
// rolled-back attempt leaves no key behind, and a concurrent attempt with
// the same key blocks on the unique index until the first one finishes,
// then fails with ErrDuplicateRequest.
type deductionRequestRepository struct {
	db *gorm.DB
}

// NewDeductionRequestRepository creates the idempotency repository
func NewDeductionRequestRepository(db *gorm.DB) inventory.DeductionRequestRepository {
	return &deductionRequestRepository{db: db}
}

// Create claims the key
func (r *deductionRequestRepository) Create(ctx context.Context, req *inventory.DeductionRequest) error {
	model := &DeductionRequestModel{
		IdempotencyKey: req.IdempotencyKey,
		OrderRef:       req.OrderRef,
	}
	if err := dbFromContext(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return inventory.ErrDuplicateRequest
		}
		return apperrors.Wrap(err, "failed to record deduction request")
	}
	req.ID = model.ID
	req.CreatedAt = model.CreatedAt.UTC()
	return nil
}

// FindByKey returns nil, nil when the key is unknown
func (r *deductionRequestRepository) FindByKey(ctx context.Context, key string) (*inventory.DeductionRequest, error) {
	var model DeductionRequestModel
	err := dbFromContext(ctx, r.db).Where("idempotency_key = ?", key).First(&model).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to query deduction request")
	}
	return &inventory.DeductionRequest{
		ID:             model.ID,
		IdempotencyKey: model.IdempotencyKey,
		OrderRef:       model.OrderRef,
		CreatedAt:      model.CreatedAt.UTC(),
	}, nil
}
