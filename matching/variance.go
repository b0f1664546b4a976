package matching

import (
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

// maxRecruitedOrders caps the Layer 3 subset search. PO line counts are
// small in practice; past three supplements a human should look anyway.
const maxRecruitedOrders = 3

// VarianceResolution is a successful Layer 3 outcome: the extra orders
// whose quantities, combined with the primary order, bring the group
// within tolerance of the shipment quantity.
type VarianceResolution struct {
	Recruited []models.Order
	Total     decimal.Decimal
	Residual  float64
}

// ResolveVariance searches the unmatched active orders of the shipment's
// PO for the smallest supplement set that reaches tolerance. Preference
// order: fewest recruited orders, then smallest residual variance, then
// earliest order date of the recruited set.
func ResolveVariance(shipment *models.Shipment, primary *models.Order, pool []models.Order, tolerance float64) *VarianceResolution {
	var best *VarianceResolution
	var bestDate time.Time

	for size := 1; size <= maxRecruitedOrders && size <= len(pool); size++ {
		forEachCombination(len(pool), size, func(idx []int) {
			total := primary.Quantity
			earliest := pool[idx[0]].OrderDate
			recruited := make([]models.Order, 0, size)
			for _, i := range idx {
				total = total.Add(pool[i].Quantity)
				recruited = append(recruited, pool[i])
				if pool[i].OrderDate.Before(earliest) {
					earliest = pool[i].OrderDate
				}
			}
			residual := QuantityVariance(shipment.Quantity, total)
			if residual > tolerance {
				return
			}
			if best == nil ||
				residual < best.Residual ||
				(residual == best.Residual && earliest.Before(bestDate)) {
				best = &VarianceResolution{Recruited: recruited, Total: total, Residual: residual}
				bestDate = earliest
			}
		})
		// Minimal recruit count wins outright; stop at the first size
		// that produced any in-tolerance combination.
		if best != nil {
			break
		}
	}
	return best
}

// forEachCombination visits every k-subset of [0,n) in lexicographic
// order, which keeps pool iteration (and tie-breaking) deterministic.
func forEachCombination(n, k int, visit func(idx []int)) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		visit(idx)
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
