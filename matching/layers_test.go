package matching

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

func defaultSettings() models.CustomerMatchSettings {
	return models.CustomerMatchSettings{
		Customer:          "ACME",
		VarianceTolerance: 0.10,
		HiConfThreshold:   0.85,
		NoMatchThreshold:  0.60,
	}
}

func candidate(orderId int, composite float64, scores ...models.MatchAttributeScore) Candidate {
	order := testOrder("X1", "RED", "SEA", 100)
	order.ID = orderId
	return Candidate{Order: *order, Composite: composite, Scores: scores}
}

func TestLayerExact_RequiresEveryAttributeAtOne(t *testing.T) {
	mc := &MatchContext{
		Shipment: *testShipment("X1", "RED", "SEA", 100),
		Candidates: []Candidate{
			// Composite 1.0 can still hide a sub-exact attribute when
			// another attribute is over-weighted; Layer 0 must reject it.
			candidate(1, 1.0, models.MatchAttributeScore{AttributeName: AttributeNameStyleCode, Score: 0.9}),
			candidate(2, 1.0, models.MatchAttributeScore{AttributeName: AttributeNameStyleCode, Score: 1.0}),
		},
		Settings: defaultSettings(),
	}

	out := LayerExact(mc)
	if out == nil {
		t.Fatal("expected an exact outcome")
	}
	if out.Order.ID != 2 {
		t.Fatalf("matched order %d, want 2", out.Order.ID)
	}
	if out.Method != models.MatchMethodExact || out.Confidence != 1.0 {
		t.Fatalf("outcome = %s/%v, want exact/1.0", out.Method, out.Confidence)
	}
}

func TestLayerExact_NoExactCandidate(t *testing.T) {
	mc := &MatchContext{
		Candidates: []Candidate{candidate(1, 0.93, models.MatchAttributeScore{Score: 0.9})},
		Settings:   defaultSettings(),
	}
	if out := LayerExact(mc); out != nil {
		t.Fatalf("expected nil, got %+v", out)
	}
}

func TestLayerFuzzy_AcceptsAtThreshold(t *testing.T) {
	mc := &MatchContext{
		Candidates: []Candidate{candidate(1, 0.70), candidate(2, 0.85)},
		Settings:   defaultSettings(),
	}
	out := LayerFuzzy(mc)
	if out == nil {
		t.Fatal("expected a fuzzy outcome at threshold")
	}
	if out.Order.ID != 2 || out.Method != models.MatchMethodFuzzy {
		t.Fatalf("got order %d method %s, want 2/fuzzy", out.Order.ID, out.Method)
	}
	if out.Confidence != 0.85 {
		t.Fatalf("confidence = %v, want 0.85", out.Confidence)
	}
}

func TestLayerFuzzy_UncertainBandPassesThrough(t *testing.T) {
	mc := &MatchContext{
		Candidates: []Candidate{candidate(1, 0.70)},
		Settings:   defaultSettings(),
	}
	if out := LayerFuzzy(mc); out != nil {
		t.Fatalf("0.70 is below hi-conf threshold, expected nil, got %+v", out)
	}
}

func TestLayerDeepFuzzy_UsesWideSet(t *testing.T) {
	mc := &MatchContext{
		Candidates:     nil,
		WideCandidates: []Candidate{candidate(7, 0.90)},
		Settings:       defaultSettings(),
	}
	out := LayerDeepFuzzy(mc)
	if out == nil || out.Order.ID != 7 || out.Method != models.MatchMethodDeepFuzzy {
		t.Fatalf("got %+v, want deep_fuzzy match on order 7", out)
	}
}

func TestBestCandidate_TiesKeepEarlier(t *testing.T) {
	cands := []Candidate{candidate(1, 0.9), candidate(2, 0.9), candidate(3, 0.8)}
	best := bestCandidate(cands)
	if best == nil || best.Order.ID != 1 {
		t.Fatalf("tie must keep the earlier candidate, got %+v", best)
	}
	if bestCandidate(nil) != nil {
		t.Fatal("empty slice must yield nil")
	}
}

func TestQuantityCheck(t *testing.T) {
	ship := testShipment("X1", "RED", "SEA", 105)
	order := testOrder("X1", "RED", "SEA", 100)

	variance, result := QuantityCheck(ship, order, 0.10)
	if result != models.QuantityCheckPass {
		t.Fatalf("5%% variance under 10%% tolerance must pass, got %s", result)
	}
	if variance != 0.05 {
		t.Fatalf("variance = %v, want 0.05", variance)
	}

	ship.Quantity = decimal.NewFromInt(760)
	if _, result = QuantityCheck(ship, order, 0.10); result != models.QuantityCheckFail {
		t.Fatal("660% variance must fail the quantity check")
	}
}

func TestQuantityVariance_ZeroDenominator(t *testing.T) {
	if v := QuantityVariance(decimal.Zero, decimal.Zero); v != 0 {
		t.Fatalf("0 vs 0 variance = %v, want 0", v)
	}
	if v := QuantityVariance(decimal.NewFromInt(5), decimal.Zero); v != 1 {
		t.Fatalf("5 vs 0 variance = %v, want 1 (total mismatch)", v)
	}
}
