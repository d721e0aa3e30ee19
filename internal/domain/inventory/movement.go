package inventory

import "time"

// Movement stock change record (append-only)
//
// Every quantity or status change of a batch writes one movement in the same
// transaction, so the log and the batch row never disagree. Quantity is
// signed: negative when stock leaves the batch.
type Movement struct {
	ID              uint
	BatchID         string
	StoreID         string
	ProductID       string
	VariantSKU      string
	ChangeType      ChangeType
	Quantity        int64
	BeforeAvailable int64
	AfterAvailable  int64
	OrderRef        string
	Remark          string
	CreatedAt       time.Time
}

// ChangeType kind of stock change
type ChangeType string

const (
	ChangeTypeReceive ChangeType = "RECEIVE" // new lot received
	ChangeTypeDeduct  ChangeType = "DEDUCT"  // sold to an order
	ChangeTypeRelease ChangeType = "RELEASE" // order rolled back
	ChangeTypeRestock ChangeType = "RESTOCK" // returned to an existing lot
	ChangeTypeExpire  ChangeType = "EXPIRE"
	ChangeTypeCancel  ChangeType = "CANCEL"
)

func newMovement(b *Batch, ct ChangeType, quantity, before int64, orderRef, remark string) *Movement {
	return &Movement{
		BatchID:         b.BatchID,
		StoreID:         b.StoreID,
		ProductID:       b.ProductID,
		VariantSKU:      b.VariantSKU,
		ChangeType:      ct,
		Quantity:        quantity,
		BeforeAvailable: before,
		AfterAvailable:  b.AvailableQuantity,
		OrderRef:        orderRef,
		Remark:          remark,
	}
}

// NewReceiveMovement records the initial quantity of a new lot
func NewReceiveMovement(b *Batch) *Movement {
	return newMovement(b, ChangeTypeReceive, b.InitialQuantity, 0, "", "")
}

// NewDeductMovement b is the batch after the deduction
func NewDeductMovement(b *Batch, quantity int64, orderRef string) *Movement {
	return newMovement(b, ChangeTypeDeduct, -quantity, b.AvailableQuantity+quantity, orderRef, "")
}

// NewReleaseMovement b is the batch after the release
func NewReleaseMovement(b *Batch, quantity int64, orderRef, reason string) *Movement {
	return newMovement(b, ChangeTypeRelease, quantity, b.AvailableQuantity-quantity, orderRef, reason)
}

// NewRestockMovement b is the batch after the restock
func NewRestockMovement(b *Batch, quantity int64, remark string) *Movement {
	return newMovement(b, ChangeTypeRestock, quantity, b.AvailableQuantity-quantity, "", remark)
}

// NewStatusMovement records a status-only change (expire, cancel)
func NewStatusMovement(b *Batch, ct ChangeType, remark string) *Movement {
	return newMovement(b, ct, 0, b.AvailableQuantity, "", remark)
}

// DeductionRequest idempotency record of one deductForOrder call
type DeductionRequest struct {
	ID             uint
	IdempotencyKey string
	OrderRef       string
	CreatedAt      time.Time
}
