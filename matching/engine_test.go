package matching

import (
	"testing"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

func TestWeakestAttribute_PicksLowestDisagreement(t *testing.T) {
	scores := []models.MatchAttributeScore{
		{AttributeName: AttributeNameStyleCode, ShipmentValue: "X1", OrderCanonical: "X1", Score: 1.0},
		{AttributeName: AttributeNameColorDescription, ShipmentValue: "CRIMSON", OrderCanonical: "RED", Score: 0},
		{AttributeName: AttributeNameDeliveryMethod, ShipmentValue: "BOAT", OrderCanonical: "SEA", Score: 0.4},
	}

	weak := weakestAttribute(scores)
	if weak == nil || weak.AttributeName != AttributeNameColorDescription {
		t.Fatalf("weakest = %+v, want the color disagreement", weak)
	}
}

func TestWeakestAttribute_SkipsMissingSides(t *testing.T) {
	scores := []models.MatchAttributeScore{
		{AttributeName: AttributeNameColorDescription, ShipmentValue: "", OrderCanonical: "RED", Score: 0},
		{AttributeName: AttributeNameStyleCode, ShipmentValue: "X1", OrderCanonical: "", Score: 0.2},
	}

	if weak := weakestAttribute(scores); weak != nil {
		t.Fatalf("weakest = %+v, want nil when a side is missing", weak)
	}
}

func TestWeakestAttribute_QuantityOnlyFailureHasNone(t *testing.T) {
	scores := []models.MatchAttributeScore{
		{AttributeName: AttributeNameStyleCode, ShipmentValue: "X1", OrderCanonical: "X1", Score: 1.0},
		{AttributeName: AttributeNameColorDescription, ShipmentValue: "RED", OrderCanonical: "RED", Score: 1.0},
	}

	if weak := weakestAttribute(scores); weak != nil {
		t.Fatalf("weakest = %+v, want nil when every attribute is exact", weak)
	}
}

func TestNewQueueItem_CarriesAttributeTriple(t *testing.T) {
	scores := []models.MatchAttributeScore{
		{AttributeName: AttributeNameStyleCode, ShipmentValue: "X1", OrderCanonical: "X1", Score: 1.0},
		{AttributeName: AttributeNameColorDescription, ShipmentValue: "CRIMSON", OrderCanonical: "RED", Score: 0},
	}

	item := newQueueItem("ACME", 42, 0.66, scores)
	if item.ResultId == nil || *item.ResultId != 42 {
		t.Fatalf("result id = %v, want 42", item.ResultId)
	}
	if item.AttributeName != AttributeNameColorDescription ||
		item.SourceValue != "CRIMSON" ||
		item.SourceSide != models.SourceSideShipment ||
		item.SuggestedCanonical != "RED" {
		t.Fatalf("item triple = %s/%s/%s -> %s, want color_description/CRIMSON/shipment -> RED",
			item.AttributeName, item.SourceValue, item.SourceSide, item.SuggestedCanonical)
	}
	if item.SuggestedScore != 0.66 {
		t.Fatalf("suggested score = %v, want 0.66", item.SuggestedScore)
	}
}

func TestNewQueueItem_QuantityReviewHasNoTriple(t *testing.T) {
	scores := []models.MatchAttributeScore{
		{AttributeName: AttributeNameStyleCode, ShipmentValue: "X1", OrderCanonical: "X1", Score: 1.0},
	}

	item := newQueueItem("ACME", 7, 1.0, scores)
	if item.AttributeName != "" || item.SourceValue != "" || item.SuggestedCanonical != "" {
		t.Fatalf("item = %+v, want no attribute triple for a pure quantity review", item)
	}
}
