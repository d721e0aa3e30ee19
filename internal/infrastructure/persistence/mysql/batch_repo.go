package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/freshmart/internal/domain/inventory"
	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// batchRepository batch store (MySQL)
//
// Design notes:
//  1. implements inventory.Repository
//  2. converts between domain entities and GORM models
//  3. quantity changes are single conditional UPDATEs; the WHERE clause is the
//     concurrency control. Locking reads serve only the product guard and
//     the allocation re-plan
//  4. UpdateColumns skips hooks, so updated_at is set explicitly
type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates the batch repository
func NewBatchRepository(db *gorm.DB) inventory.Repository {
	return &batchRepository{db: db}
}

// Create inserts a batch
func (r *batchRepository) Create(ctx context.Context, b *inventory.Batch) error {
	model := toBatchModel(b)

	if err := dbFromContext(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return inventory.ErrDuplicateBatch
		}
		return apperrors.Wrap(err, "failed to create batch")
	}

	b.ID = model.ID
	b.Status = inventory.Status(model.Status)
	b.CreatedAt = model.CreatedAt.UTC()
	b.UpdatedAt = model.UpdatedAt.UTC()
	return nil
}

// FindByBatchID loads one batch
func (r *batchRepository) FindByBatchID(ctx context.Context, batchID string) (*inventory.Batch, error) {
	model, err := r.find(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, inventory.ErrBatchNotFound
	}
	return toBatchEntity(model), nil
}

// find returns nil, nil when the batch does not exist
func (r *batchRepository) find(ctx context.Context, batchID string) (*BatchModel, error) {
	var model BatchModel
	err := dbFromContext(ctx, r.db).Where("batch_id = ?", batchID).First(&model).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to query batch")
	}
	return &model, nil
}

// ListByProduct all batches of a product, oldest first
func (r *batchRepository) ListByProduct(ctx context.Context, storeID, productID string) ([]*inventory.Batch, error) {
	var models []BatchModel
	err := dbFromContext(ctx, r.db).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list batches")
	}
	return toBatchEntities(models), nil
}

// FindEligible active, unexpired batches with stock, oldest first
//
//	SELECT * FROM inventory_batches
//	WHERE store_id = ? AND product_id = ?
//	  AND status = 'active' AND available_quantity > 0
//	  AND (expiry_date IS NULL OR expiry_date > ?)
//	  [AND (variant_sku = ? OR uses_shared_stock = true)]
//	ORDER BY created_at ASC, id ASC
func (r *batchRepository) FindEligible(ctx context.Context, storeID, productID, variantSKU string, now time.Time) ([]*inventory.Batch, error) {
	return r.findEligible(dbFromContext(ctx, r.db), storeID, productID, variantSKU, now)
}

// LockEligible FindEligible ... FOR UPDATE
func (r *batchRepository) LockEligible(ctx context.Context, storeID, productID, variantSKU string, now time.Time) ([]*inventory.Batch, error) {
	db := dbFromContext(ctx, r.db).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	return r.findEligible(db, storeID, productID, variantSKU, now)
}

func (r *batchRepository) findEligible(db *gorm.DB, storeID, productID, variantSKU string, now time.Time) ([]*inventory.Batch, error) {
	query := db.
		Where("store_id = ? AND product_id = ?", storeID, productID).
		Where("status = ? AND available_quantity > 0", string(inventory.StatusActive)).
		Where("(expiry_date IS NULL OR expiry_date > ?)", now)
	if variantSKU != "" {
		query = query.Where("(variant_sku = ? OR uses_shared_stock = ?)", variantSKU, true)
	}

	var models []BatchModel
	if err := query.Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to query eligible batches")
	}
	return toBatchEntities(models), nil
}

// LockProduct creates the product's guard row when missing and locks it
//
//	INSERT INTO inventory_product_guards ... ON DUPLICATE KEY UPDATE id = id
//	SELECT ... FROM inventory_product_guards WHERE ... FOR UPDATE
//
// A second transaction locking the same product waits here until the first
// one commits or rolls back.
func (r *batchRepository) LockProduct(ctx context.Context, storeID, productID string) error {
	db := dbFromContext(ctx, r.db)

	guard := ProductGuardModel{StoreID: storeID, ProductID: productID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&guard).Error; err != nil {
		return apperrors.Wrap(err, "failed to create product guard")
	}

	var locked ProductGuardModel
	err := db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		First(&locked).Error
	if err != nil {
		return apperrors.Wrap(err, "failed to lock product guard")
	}
	return nil
}

// HasConflictingModel checks the other stock model among non-cancelled batches
//
// A locking read, so under REPEATABLE READ it sees batches committed after
// the transaction's snapshot was taken.
func (r *batchRepository) HasConflictingModel(ctx context.Context, storeID, productID string, usesSharedStock bool) (bool, error) {
	var count int64
	err := dbFromContext(ctx, r.db).Model(&BatchModel{}).
		Clauses(clause.Locking{Strength: clause.LockingStrengthShare}).
		Where("store_id = ? AND product_id = ?", storeID, productID).
		Where("status <> ?", string(inventory.StatusCancelled)).
		Where("uses_shared_stock = ?", !usesSharedStock).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check stock model")
	}
	return count > 0, nil
}

// Deduct conditional decrement
//
//	UPDATE inventory_batches
//	SET available_quantity = available_quantity - ?, sold_quantity = sold_quantity + ?, updated_at = ?
//	WHERE batch_id = ? AND status = 'active' AND available_quantity >= ?
//	  AND (expiry_date IS NULL OR expiry_date > ?)
//
// The row lock taken by the UPDATE serializes concurrent deductions of the
// same batch; the loser re-evaluates the WHERE clause against the committed
// quantity and matches nothing when stock ran out.
func (r *batchRepository) Deduct(ctx context.Context, batchID string, quantity int64, now time.Time) (*inventory.Batch, error) {
	db := dbFromContext(ctx, r.db)

	// 1. conditional decrement
	result := db.Model(&BatchModel{}).
		Where("batch_id = ?", batchID).
		Where("status = ?", string(inventory.StatusActive)).
		Where("available_quantity >= ?", quantity).
		Where("(expiry_date IS NULL OR expiry_date > ?)", now).
		UpdateColumns(map[string]interface{}{
			"available_quantity": gorm.Expr("available_quantity - ?", quantity),
			"sold_quantity":      gorm.Expr("sold_quantity + ?", quantity),
			"updated_at":         now,
		})
	if result.Error != nil {
		return nil, apperrors.Wrap(result.Error, "failed to deduct batch")
	}

	// 2. nothing matched: read once more to say why
	if result.RowsAffected == 0 {
		model, err := r.find(ctx, batchID)
		if err != nil {
			return nil, err
		}
		var current *inventory.Batch
		if model != nil {
			current = toBatchEntity(model)
		}
		return nil, inventory.ClassifyDeductFailure(current, batchID, quantity, now)
	}

	// 3. active → depleted when the decrement emptied the batch
	err := db.Model(&BatchModel{}).
		Where("batch_id = ? AND status = ? AND available_quantity = 0", batchID, string(inventory.StatusActive)).
		UpdateColumns(map[string]interface{}{
			"status":     string(inventory.StatusDepleted),
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to mark batch depleted")
	}

	return r.FindByBatchID(ctx, batchID)
}

// Increment conditional increment bounded by sold quantity
//
//	UPDATE inventory_batches
//	SET available_quantity = available_quantity + ?, sold_quantity = sold_quantity - ?, updated_at = ?
//	WHERE batch_id = ? AND sold_quantity >= ?
//
// then depleted → active when the batch is not expired. Expired and
// cancelled batches keep their status.
func (r *batchRepository) Increment(ctx context.Context, batchID string, quantity int64, now time.Time) (*inventory.Batch, error) {
	db := dbFromContext(ctx, r.db)

	result := db.Model(&BatchModel{}).
		Where("batch_id = ? AND sold_quantity >= ?", batchID, quantity).
		UpdateColumns(map[string]interface{}{
			"available_quantity": gorm.Expr("available_quantity + ?", quantity),
			"sold_quantity":      gorm.Expr("sold_quantity - ?", quantity),
			"updated_at":         now,
		})
	if result.Error != nil {
		return nil, apperrors.Wrap(result.Error, "failed to increment batch")
	}

	if result.RowsAffected == 0 {
		model, err := r.find(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if model == nil {
			return nil, inventory.ErrBatchNotFound
		}
		return nil, inventory.ErrRestockExceedsSold
	}

	err := db.Model(&BatchModel{}).
		Where("batch_id = ? AND status = ? AND available_quantity > 0", batchID, string(inventory.StatusDepleted)).
		Where("(expiry_date IS NULL OR expiry_date > ?)", now).
		UpdateColumns(map[string]interface{}{
			"status":     string(inventory.StatusActive),
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to reactivate batch")
	}

	return r.FindByBatchID(ctx, batchID)
}

// TransitionStatus conditional status change
func (r *batchRepository) TransitionStatus(ctx context.Context, batchID string, from, to inventory.Status, now time.Time) (bool, error) {
	result := dbFromContext(ctx, r.db).Model(&BatchModel{}).
		Where("batch_id = ? AND status = ?", batchID, string(from)).
		UpdateColumns(map[string]interface{}{
			"status":     string(to),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, apperrors.Wrap(result.Error, "failed to update batch status")
	}
	return result.RowsAffected == 1, nil
}

// FindStale active batches that are expired or empty at now
func (r *batchRepository) FindStale(ctx context.Context, now time.Time, limit int) ([]*inventory.Batch, error) {
	if limit <= 0 {
		limit = 500
	}

	var models []BatchModel
	err := dbFromContext(ctx, r.db).
		Where("status = ?", string(inventory.StatusActive)).
		Where("((expiry_date IS NOT NULL AND expiry_date <= ?) OR available_quantity = 0)", now).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query stale batches")
	}
	return toBatchEntities(models), nil
}

func toBatchEntities(models []BatchModel) []*inventory.Batch {
	batches := make([]*inventory.Batch, len(models))
	for i := range models {
		batches[i] = toBatchEntity(&models[i])
	}
	return batches
}
