package matching

import (
	"testing"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

func blockedSet(snapshot *MappingSnapshot, poScope string, orders ...models.Order) *CandidateSet {
	set := &CandidateSet{
		byPo:      map[string][]models.Order{},
		cancelled: map[string][]models.Order{},
		snapshot:  snapshot,
	}
	if poScope != "" {
		set.scope = snapshot.Canonicalize(AttributeNamePoNumber, poScope, models.SourceSideAny).Value
	}
	for _, order := range orders {
		po := snapshot.Canonicalize(AttributeNamePoNumber, order.PoNumber, models.SourceSideOrder).Value
		if order.LifecycleFlag == models.LifecycleFlagCancelled {
			set.cancelled[po] = append(set.cancelled[po], order)
			continue
		}
		set.byPo[po] = append(set.byPo[po], order)
		set.all = append(set.all, order)
	}
	return set
}

func TestCandidateSet_PoAliasBucketing(t *testing.T) {
	// Order feed says "PO-1001", shipment feed says "1001"; the mapping
	// bridges both into one blocking bucket.
	snap := NewMappingSnapshot("ACME", []models.AttributeMapping{
		mappingRow(models.MappingScopeCustomer, "ACME", AttributeNamePoNumber, "PO-1001", models.SourceSideOrder, "1001", 1),
	})

	order := poolOrder(1, 100, baseDate)
	order.PoNumber = "po-1001"
	set := blockedSet(snap, "", order)

	ship := testShipment("X1", "RED", "SEA", 100)
	ship.PoNumber = "1001"
	got := set.ForShipment(ship)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("got %+v, want the aliased order", got)
	}
}

func TestCandidateSet_CancelledOrdersAreSeparate(t *testing.T) {
	snap := NewMappingSnapshot("ACME", nil)

	active := poolOrder(1, 100, baseDate)
	cancelled := poolOrder(2, 660, baseDate)
	cancelled.LifecycleFlag = models.LifecycleFlagCancelled
	set := blockedSet(snap, "", active, cancelled)

	ship := testShipment("X1", "RED", "SEA", 100)
	if got := set.ForShipment(ship); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("active bucket = %+v, want only order 1", got)
	}
	if got := set.CancelledForShipment(ship); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("cancelled bucket = %+v, want only order 2", got)
	}
	if got := set.Widened(); len(got) != 1 {
		t.Fatalf("widened pool = %+v, cancelled orders must stay out", got)
	}
}

func TestCandidateSet_WidenedSpansPos(t *testing.T) {
	snap := NewMappingSnapshot("ACME", nil)

	a := poolOrder(1, 100, baseDate)
	b := poolOrder(2, 40, baseDate)
	b.PoNumber = "1002"
	set := blockedSet(snap, "", a, b)

	ship := testShipment("X1", "RED", "SEA", 100)
	ship.PoNumber = "1001"
	if got := set.ForShipment(ship); len(got) != 1 {
		t.Fatalf("PO bucket = %+v, want only the 1001 order", got)
	}
	if got := set.Widened(); len(got) != 2 {
		t.Fatalf("widened pool = %+v, want both orders", got)
	}
}

func TestCandidateSet_InScopeResolvesAliases(t *testing.T) {
	// Shipment feed says "PO-1001"; a job scoped to "1001" must still
	// cover it once a mapping bridges the alias.
	snap := NewMappingSnapshot("ACME", []models.AttributeMapping{
		mappingRow(models.MappingScopeCustomer, "ACME", AttributeNamePoNumber, "PO-1001", models.SourceSideShipment, "1001", 1),
	})
	set := blockedSet(snap, "1001", poolOrder(1, 100, baseDate))

	aliased := testShipment("X1", "RED", "SEA", 100)
	aliased.PoNumber = "po-1001"
	if !set.InScope(aliased) {
		t.Fatal("aliased shipment must be in a job scoped to its canonical PO")
	}

	other := testShipment("X1", "RED", "SEA", 100)
	other.PoNumber = "1002"
	if set.InScope(other) {
		t.Fatal("shipment on another PO must be out of scope")
	}

	unscoped := blockedSet(snap, "", poolOrder(1, 100, baseDate))
	if !unscoped.InScope(other) {
		t.Fatal("an unscoped job covers every shipment")
	}
}

func TestCandidateSet_WidenedIgnoresJobScope(t *testing.T) {
	snap := NewMappingSnapshot("ACME", nil)

	a := poolOrder(1, 100, baseDate)
	b := poolOrder(2, 40, baseDate)
	b.PoNumber = "1002"
	set := blockedSet(snap, "1001", a, b)

	ship := testShipment("X1", "RED", "SEA", 100)
	ship.PoNumber = "1001"
	if got := set.ForShipment(ship); len(got) != 1 {
		t.Fatalf("PO bucket = %+v, want only the 1001 order", got)
	}
	if got := set.Widened(); len(got) != 2 {
		t.Fatalf("widened pool = %+v, want the whole customer even in a scoped job", got)
	}
}
