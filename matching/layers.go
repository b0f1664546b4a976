package matching

import (
	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

// Candidate is one scored (order, shipment) pair.
type Candidate struct {
	Order     models.Order
	Composite float64
	Scores    []models.MatchAttributeScore
}

// MatchContext carries everything a layer needs, fully in memory, so each
// layer stays a pure function and is testable on its own.
type MatchContext struct {
	Shipment models.Shipment
	// Candidates is the PO-blocked set in stable order.
	Candidates []Candidate
	// WideCandidates is the relaxed set used by deep fuzzy.
	WideCandidates []Candidate
	Settings       models.CustomerMatchSettings
}

// MatchOutcome is a definite answer from one layer.
type MatchOutcome struct {
	Method     models.MatchMethod
	Order      models.Order
	Confidence float64
	Scores     []models.MatchAttributeScore
}

// Layer inspects the context and returns an outcome, or nil to pass the
// shipment to the next layer.
type Layer func(mc *MatchContext) *MatchOutcome

// Layers is the ordered stop-at-first-success pipeline (Layers 0-2).
// Quantity checking and Layers 3-4 run on the accepted outcome afterwards.
func Layers() []Layer {
	return []Layer{LayerExact, LayerFuzzy, LayerDeepFuzzy}
}

// LayerExact accepts a candidate whose every compared attribute scored 1.0
// on canonicalized values.
func LayerExact(mc *MatchContext) *MatchOutcome {
	for i := range mc.Candidates {
		cand := &mc.Candidates[i]
		if cand.Composite < 1.0 || !allAttributesExact(cand.Scores) {
			continue
		}
		return &MatchOutcome{
			Method:     models.MatchMethodExact,
			Order:      cand.Order,
			Confidence: 1.0,
			Scores:     cand.Scores,
		}
	}
	return nil
}

func allAttributesExact(scores []models.MatchAttributeScore) bool {
	for _, s := range scores {
		if s.Score < 1.0 {
			return false
		}
	}
	return true
}

// LayerFuzzy accepts the best PO-scoped candidate at or above the
// high-confidence threshold.
func LayerFuzzy(mc *MatchContext) *MatchOutcome {
	best := bestCandidate(mc.Candidates)
	if best == nil || best.Composite < mc.Settings.HiConfThreshold {
		return nil
	}
	return &MatchOutcome{
		Method:     models.MatchMethodFuzzy,
		Order:      best.Order,
		Confidence: best.Composite,
		Scores:     best.Scores,
	}
}

// LayerDeepFuzzy repeats the fuzzy acceptance over the widened candidate
// set for shipments Layers 0-1 could not place.
func LayerDeepFuzzy(mc *MatchContext) *MatchOutcome {
	best := bestCandidate(mc.WideCandidates)
	if best == nil || best.Composite < mc.Settings.HiConfThreshold {
		return nil
	}
	return &MatchOutcome{
		Method:     models.MatchMethodDeepFuzzy,
		Order:      best.Order,
		Confidence: best.Composite,
		Scores:     best.Scores,
	}
}

// bestCandidate picks the highest composite; ties keep the earlier
// candidate so the run stays deterministic.
func bestCandidate(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		if best == nil || candidates[i].Composite > best.Composite {
			best = &candidates[i]
		}
	}
	return best
}

// QuantityVariance is |shipment.qty - total| / total. A zero denominator
// with a non-zero shipment quantity counts as total mismatch.
func QuantityVariance(shipmentQty, totalOrderQty decimal.Decimal) float64 {
	if totalOrderQty.IsZero() {
		if shipmentQty.IsZero() {
			return 0
		}
		return 1
	}
	v, _ := shipmentQty.Sub(totalOrderQty).Abs().Div(totalOrderQty).Float64()
	return v
}

// QuantityCheck applies the customer's variance tolerance to one matched
// order.
func QuantityCheck(shipment *models.Shipment, order *models.Order, tolerance float64) (float64, models.QuantityCheckResult) {
	variance := QuantityVariance(shipment.Quantity, order.Quantity)
	if variance <= tolerance {
		return variance, models.QuantityCheckPass
	}
	return variance, models.QuantityCheckFail
}
