package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func batch(id uint, variant string, shared bool, available int64, created time.Time) *Batch {
	return &Batch{
		ID:                id,
		BatchID:           variant + "-" + string(rune('a'+id)),
		StoreID:           "store-1",
		ProductID:         "p",
		VariantSKU:        variant,
		UsesSharedStock:   shared,
		InitialQuantity:   available,
		AvailableQuantity: available,
		Status:            StatusActive,
		CreatedAt:         created,
	}
}

func TestSumAvailable_NonShared(t *testing.T) {
	// two 1kg-variant batches with 3 and 2 → 5; the 500g variant has none
	batches := []*Batch{
		batch(1, "apple-1kg", false, 3, now),
		batch(2, "apple-1kg", false, 2, now.Add(time.Hour)),
	}
	assert.Equal(t, int64(5), SumAvailable(batches, "apple-1kg", now))
	assert.Equal(t, int64(0), SumAvailable(batches, "apple-500g", now))
}

func TestSumAvailable_Shared(t *testing.T) {
	// one shared batch of 10 serves every variant
	batches := []*Batch{batch(1, "", true, 10, now)}
	assert.Equal(t, int64(10), SumAvailable(batches, "apple-1kg", now))
	assert.Equal(t, int64(10), SumAvailable(batches, "apple-500g", now))
}

func TestSumAvailable_MixedModeIgnoresVariantBatches(t *testing.T) {
	batches := []*Batch{
		batch(1, "apple-1kg", false, 7, now),
		batch(2, "", true, 4, now),
	}
	assert.Equal(t, int64(4), SumAvailable(batches, "apple-1kg", now))
}

func TestSumAvailable_ExcludesIneligible(t *testing.T) {
	expired := batch(1, "milk", false, 10, now)
	expired.ExpiryDate = ptrTime(now.Add(-time.Second))

	cancelled := batch(2, "milk", false, 5, now)
	cancelled.Status = StatusCancelled

	depleted := batch(3, "milk", false, 0, now)
	depleted.Status = StatusDepleted

	live := batch(4, "milk", false, 2, now)

	batches := []*Batch{expired, cancelled, depleted, live}
	assert.Equal(t, int64(2), SumAvailable(batches, "milk", now))

	// an expired shared batch does not switch the product into shared mode
	sharedExpired := batch(5, "", true, 100, now)
	sharedExpired.ExpiryDate = ptrTime(now)
	assert.Equal(t, int64(2), SumAvailable(append(batches, sharedExpired), "milk", now))
}

func TestSelectServing_FIFO(t *testing.T) {
	newer := batch(2, "v", false, 5, now.Add(time.Hour))
	older := batch(1, "v", false, 2, now)
	sameTimeLaterID := batch(3, "v", false, 1, now)

	got := SelectServing([]*Batch{newer, sameTimeLaterID, older}, "v", now)
	assert.Equal(t, []*Batch{older, sameTimeLaterID, newer}, got)
}

func TestPlanAllocation(t *testing.T) {
	a := batch(1, "v", false, 2, now)
	b := batch(2, "v", false, 5, now.Add(time.Hour))
	line := StockLine{StoreID: "store-1", ProductID: "p", VariantSKU: "v", Quantity: 3}

	// FIFO: A (2) is drained before B
	plan, short := PlanAllocation([]*Batch{a, b}, line)
	assert.Equal(t, int64(0), short)
	if assert.Len(t, plan, 2) {
		assert.Equal(t, a.BatchID, plan[0].BatchID)
		assert.Equal(t, int64(2), plan[0].Quantity)
		assert.Equal(t, b.BatchID, plan[1].BatchID)
		assert.Equal(t, int64(1), plan[1].Quantity)
	}

	// 5 + 2 < 8
	line.Quantity = 8
	_, short = PlanAllocation([]*Batch{a, b}, line)
	assert.Equal(t, int64(1), short)
}

func TestMergeLines(t *testing.T) {
	merged := MergeLines([]StockLine{
		{StoreID: "s", ProductID: "p", VariantSKU: "v", Quantity: 2},
		{StoreID: "s", ProductID: "q", VariantSKU: "v", Quantity: 1},
		{StoreID: "s", ProductID: "p", VariantSKU: "v", Quantity: 3},
	})
	assert.Equal(t, []StockLine{
		{StoreID: "s", ProductID: "p", VariantSKU: "v", Quantity: 5},
		{StoreID: "s", ProductID: "q", VariantSKU: "v", Quantity: 1},
	}, merged)
}
