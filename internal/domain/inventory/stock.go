package inventory

import (
	"sort"
	"time"
)

// StockLine one requested (store, product, variant, quantity) line
type StockLine struct {
	StoreID    string
	ProductID  string
	VariantSKU string
	Quantity   int64
}

// Allocation quantity drawn from one batch
type Allocation struct {
	BatchID    string `json:"batch_id"`
	StoreID    string `json:"store_id"`
	ProductID  string `json:"product_id"`
	VariantSKU string `json:"variant_sku"`
	Quantity   int64  `json:"quantity"`
	Depleted   bool   `json:"depleted"` // the batch reached 0 with this allocation
}

// SortFIFO orders batches oldest first (created_at, then id)
func SortFIFO(batches []*Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if batches[i].CreatedAt.Equal(batches[j].CreatedAt) {
			return batches[i].ID < batches[j].ID
		}
		return batches[i].CreatedAt.Before(batches[j].CreatedAt)
	})
}

// SelectServing picks the eligible batches that serve variantSKU, oldest first.
//
// Mixed-mode rule: once any eligible batch of the product uses shared stock,
// only shared batches count and variant-specific ones are ignored.
// Otherwise only batches of exactly variantSKU count.
// batches must all belong to the same (store, product).
func SelectServing(batches []*Batch, variantSKU string, now time.Time) []*Batch {
	shared := false
	for _, b := range batches {
		if b.UsesSharedStock && b.IsEligible(now) {
			shared = true
			break
		}
	}

	selected := make([]*Batch, 0, len(batches))
	for _, b := range batches {
		if !b.IsEligible(now) {
			continue
		}
		if shared {
			if b.UsesSharedStock {
				selected = append(selected, b)
			}
			continue
		}
		if b.VariantSKU == variantSKU {
			selected = append(selected, b)
		}
	}
	SortFIFO(selected)
	return selected
}

// SumAvailable total sellable quantity for the variant at now
func SumAvailable(batches []*Batch, variantSKU string, now time.Time) int64 {
	var total int64
	for _, b := range SelectServing(batches, variantSKU, now) {
		total += b.AvailableQuantity
	}
	return total
}

// PlanAllocation draws quantity from candidates in order (greedy, oldest first).
// It returns the plan and the shortfall; a positive shortfall means the
// plan must not be executed.
func PlanAllocation(candidates []*Batch, line StockLine) ([]Allocation, int64) {
	remaining := line.Quantity
	plan := make([]Allocation, 0, 2)
	for _, b := range candidates {
		if remaining == 0 {
			break
		}
		take := b.AvailableQuantity
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		plan = append(plan, Allocation{
			BatchID:    b.BatchID,
			StoreID:    line.StoreID,
			ProductID:  line.ProductID,
			VariantSKU: line.VariantSKU,
			Quantity:   take,
		})
		remaining -= take
	}
	return plan, remaining
}

// MergeLines sums duplicate lines for the same (store, product, variant),
// keeping first-seen order.
func MergeLines(lines []StockLine) []StockLine {
	type key struct{ store, product, variant string }
	index := make(map[key]int, len(lines))
	merged := make([]StockLine, 0, len(lines))
	for _, l := range lines {
		k := key{l.StoreID, l.ProductID, l.VariantSKU}
		if i, ok := index[k]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[k] = len(merged)
		merged = append(merged, l)
	}
	return merged
}
