package matching

import (
	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

// HistoricalAnnotation is a Layer 4 outcome: a cancelled order whose
// quantity explains the unresolved remainder. Annotation-only — it never
// changes match_status, it is surfaced to reviewers.
type HistoricalAnnotation struct {
	Order    models.Order
	Residual float64
}

// ExplainWithCancelled looks through the cancelled orders of the
// shipment's PO for one whose quantity accounts for the remainder the
// active orders could not cover. matchedTotal is the quantity already
// bound to the shipment (primary plus any recruited orders).
func ExplainWithCancelled(shipment *models.Shipment, matchedTotal decimal.Decimal, cancelled []models.Order, tolerance float64) *HistoricalAnnotation {
	remainder := shipment.Quantity.Sub(matchedTotal)
	if remainder.Sign() <= 0 {
		return nil
	}

	var best *HistoricalAnnotation
	for i := range cancelled {
		residual := QuantityVariance(remainder, cancelled[i].Quantity)
		if residual > tolerance {
			continue
		}
		if best == nil || residual < best.Residual {
			best = &HistoricalAnnotation{Order: cancelled[i], Residual: residual}
		}
	}
	return best
}
