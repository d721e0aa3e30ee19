package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/freshmart/internal/domain/inventory"
	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// movementRepository stock movement log (append-only)
type movementRepository struct {
	db *gorm.DB
}

// NewMovementRepository creates the movement repository
func NewMovementRepository(db *gorm.DB) inventory.MovementRepository {
	return &movementRepository{db: db}
}

// Create appends a movement
func (r *movementRepository) Create(ctx context.Context, m *inventory.Movement) error {
	model := &MovementModel{
		BatchID:         m.BatchID,
		StoreID:         m.StoreID,
		ProductID:       m.ProductID,
		VariantSKU:      m.VariantSKU,
		ChangeType:      string(m.ChangeType),
		Quantity:        m.Quantity,
		BeforeAvailable: m.BeforeAvailable,
		AfterAvailable:  m.AfterAvailable,
		OrderRef:        m.OrderRef,
		Remark:          m.Remark,
	}
	if err := dbFromContext(ctx, r.db).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "failed to write stock movement")
	}
	m.ID = model.ID
	m.CreatedAt = model.CreatedAt.UTC()
	return nil
}

// ListByOrderRef movements of one order, oldest first
func (r *movementRepository) ListByOrderRef(ctx context.Context, orderRef string) ([]*inventory.Movement, error) {
	var models []MovementModel
	err := dbFromContext(ctx, r.db).
		Where("order_ref = ?", orderRef).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query order movements")
	}
	return toMovementEntities(models), nil
}

// ListByBatchID paginated history of a batch, newest first
func (r *movementRepository) ListByBatchID(ctx context.Context, batchID string, page, pageSize int) ([]*inventory.Movement, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	db := dbFromContext(ctx, r.db)

	var total int64
	if err := db.Model(&MovementModel{}).Where("batch_id = ?", batchID).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to count batch movements")
	}

	var models []MovementModel
	err := db.Where("batch_id = ?", batchID).
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "failed to query batch movements")
	}
	return toMovementEntities(models), total, nil
}

func toMovementEntities(models []MovementModel) []*inventory.Movement {
	movements := make([]*inventory.Movement, len(models))
	for i, m := range models {
		movements[i] = &inventory.Movement{
			ID:              m.ID,
			BatchID:         m.BatchID,
			StoreID:         m.StoreID,
			ProductID:       m.ProductID,
			VariantSKU:      m.VariantSKU,
			ChangeType:      inventory.ChangeType(m.ChangeType),
			Quantity:        m.Quantity,
			BeforeAvailable: m.BeforeAvailable,
			AfterAvailable:  m.AfterAvailable,
			OrderRef:        m.OrderRef,
			Remark:          m.Remark,
			CreatedAt:       m.CreatedAt.UTC(),
		}
	}
	return movements
}
