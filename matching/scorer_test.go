package matching

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

func boolPtr(b bool) *bool { return &b }

func testOrder(style, color, delivery string, qty int64) *models.Order {
	return &models.Order{
		ID:               1,
		Customer:         "ACME",
		PoNumber:         "1001",
		StyleCode:        style,
		ColorDescription: color,
		DeliveryMethod:   delivery,
		Quantity:         decimal.NewFromInt(qty),
		OrderDate:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		LifecycleFlag:    models.LifecycleFlagActive,
	}
}

func testShipment(style, color, delivery string, qty int64) *models.Shipment {
	return &models.Shipment{
		ID:               1,
		Customer:         "ACME",
		PoNumber:         "1001",
		StyleCode:        style,
		ColorDescription: color,
		DeliveryMethod:   delivery,
		Quantity:         decimal.NewFromInt(qty),
		ShippedDate:      time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func exactConfig(attr string, weight int64, requiresExact bool) models.CustomerMatchConfig {
	return models.CustomerMatchConfig{
		Customer:           "ACME",
		AttributeName:      attr,
		Weight:             decimal.NewFromInt(weight),
		ComparisonMethod:   models.ComparisonMethodExact,
		RequiresExactMatch: boolPtr(requiresExact),
	}
}

func emptySnapshot() *MappingSnapshot {
	return NewMappingSnapshot("ACME", nil)
}

func TestScore_AllExact_CompositeIsOne(t *testing.T) {
	scorer := NewScorer([]models.CustomerMatchConfig{
		exactConfig(AttributeNameStyleCode, 3, true),
		exactConfig(AttributeNameColorDescription, 2, true),
	}, emptySnapshot(), nil)

	composite, scores := scorer.Score(testOrder("X1", "RED", "SEA", 100), testShipment("X1", "RED", "SEA", 100))
	if composite != 1.0 {
		t.Fatalf("composite = %v, want 1.0", composite)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d attribute scores, want 2", len(scores))
	}
	for _, s := range scores {
		if s.Score != 1.0 {
			t.Errorf("attribute %s scored %v, want 1.0", s.AttributeName, s.Score)
		}
	}
}

func TestScore_HardVeto_ForcesZero(t *testing.T) {
	scorer := NewScorer([]models.CustomerMatchConfig{
		exactConfig(AttributeNameStyleCode, 3, true),
		exactConfig(AttributeNameColorDescription, 2, false),
	}, emptySnapshot(), nil)

	// Style differs and requires exact: composite must be 0 even though
	// color alone would contribute 0.4 of the weight.
	composite, _ := scorer.Score(testOrder("X1", "RED", "", 100), testShipment("X2", "RED", "", 100))
	if composite != 0 {
		t.Fatalf("composite = %v, want 0 (hard veto)", composite)
	}
}

func TestScore_ZeroWeight_SkippedAndCannotVeto(t *testing.T) {
	scorer := NewScorer([]models.CustomerMatchConfig{
		exactConfig(AttributeNameStyleCode, 0, true), // config error: must not veto
		exactConfig(AttributeNameColorDescription, 2, false),
	}, emptySnapshot(), nil)

	composite, scores := scorer.Score(testOrder("X1", "RED", "", 100), testShipment("DIFFERENT", "RED", "", 100))
	if composite != 1.0 {
		t.Fatalf("composite = %v, want 1.0 (zero-weight attribute skipped)", composite)
	}
	if len(scores) != 1 {
		t.Fatalf("got %d attribute scores, want 1 (zero-weight excluded)", len(scores))
	}
}

func TestScore_MissingValue_ScoresZeroButStaysInDenominator(t *testing.T) {
	scorer := NewScorer([]models.CustomerMatchConfig{
		exactConfig(AttributeNameStyleCode, 3, false),
		exactConfig(AttributeNameDeliveryMethod, 1, false),
	}, emptySnapshot(), nil)

	// Shipment has no delivery method: that attribute scores 0 but its
	// weight still divides the composite (3*1 + 1*0) / 4.
	composite, _ := scorer.Score(testOrder("X1", "", "SEA", 100), testShipment("X1", "", "", 100))
	if math.Abs(composite-0.75) > 1e-9 {
		t.Fatalf("composite = %v, want 0.75", composite)
	}
}

func TestScore_SimilarityAboveHighConfidence(t *testing.T) {
	configs := []models.CustomerMatchConfig{
		{Customer: "ACME", AttributeName: AttributeNameStyleCode, Weight: decimal.NewFromInt(3), ComparisonMethod: models.ComparisonMethodSimilarity},
		exactConfig(AttributeNameColorDescription, 2, false),
	}
	scorer := NewScorer(configs, emptySnapshot(), nil)

	// One trailing character of nine differs: similarity 8/9 ~ 0.889.
	composite, scores := scorer.Score(testOrder("STYLE-X1", "RED", "", 100), testShipment("STYLE-X1A", "RED", "", 100))
	wantStyle := 1.0 - 1.0/9.0
	want := (wantStyle*3 + 1.0*2) / 5
	if math.Abs(composite-want) > 1e-9 {
		t.Fatalf("composite = %v, want %v", composite, want)
	}
	if composite < 0.85 {
		t.Fatalf("composite = %v, expected at or above the 0.85 default threshold", composite)
	}
	if scores[0].Method != models.ComparisonMethodSimilarity {
		t.Errorf("style method = %s, want similarity", scores[0].Method)
	}
}

func TestScore_SimilarityBelowAttributeThresholdIsZero(t *testing.T) {
	configs := []models.CustomerMatchConfig{
		{Customer: "ACME", AttributeName: AttributeNameStyleCode, Weight: decimal.NewFromInt(1), ComparisonMethod: models.ComparisonMethodSimilarity, SimilarityThreshold: 0.9},
	}
	scorer := NewScorer(configs, emptySnapshot(), nil)

	composite, _ := scorer.Score(testOrder("ABCD", "", "", 1), testShipment("ABXY", "", "", 1))
	if composite != 0 {
		t.Fatalf("composite = %v, want 0 (similarity 0.5 under threshold 0.9)", composite)
	}
}

func TestScore_NumericCloseness(t *testing.T) {
	configs := []models.CustomerMatchConfig{
		{Customer: "ACME", AttributeName: AttributeNameQuantity, Weight: decimal.NewFromInt(1), ComparisonMethod: models.ComparisonMethodNumeric},
	}
	scorer := NewScorer(configs, emptySnapshot(), nil)

	composite, _ := scorer.Score(testOrder("X", "", "", 100), testShipment("X", "", "", 90))
	if math.Abs(composite-0.9) > 1e-9 {
		t.Fatalf("composite = %v, want 0.9", composite)
	}
}

func TestScore_CanonicalizationBridgesVocabulary(t *testing.T) {
	active := true
	rows := []models.AttributeMapping{
		{Scope: models.MappingScopeCustomer, Customer: "ACME", AttributeName: AttributeNameColorDescription,
			SourceValue: "SCARLET", SourceSide: models.SourceSideShipment, CanonicalValue: "RED",
			Confidence: 1, IsApproved: boolPtr(true), Active: &active},
	}
	scorer := NewScorer([]models.CustomerMatchConfig{
		exactConfig(AttributeNameColorDescription, 2, true),
	}, NewMappingSnapshot("ACME", rows), nil)

	composite, scores := scorer.Score(testOrder("", "RED", "", 1), testShipment("", "scarlet", "", 1))
	if composite != 1.0 {
		t.Fatalf("composite = %v, want 1.0 after canonicalization", composite)
	}
	if scores[0].ShipmentCanonical != "RED" {
		t.Errorf("shipment canonical = %q, want RED", scores[0].ShipmentCanonical)
	}
	if scores[0].ShipmentValue != "scarlet" {
		t.Errorf("raw shipment value = %q, want preserved", scores[0].ShipmentValue)
	}
}
