package matching

import (
	"context"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
)

// CandidateSet is the blocked search space for one job scope: active
// orders grouped by canonical PO plus the widened per-customer pool used
// by deep fuzzy. Ordering inside each group is stable (order id asc) so a
// job run is deterministic.
type CandidateSet struct {
	byPo      map[string][]models.Order
	all       []models.Order
	cancelled map[string][]models.Order
	snapshot  *MappingSnapshot
	scope     string
}

// Block loads and groups the candidate orders for a customer. Cross-customer
// comparison never happens: the query itself is customer-scoped. PO grouping
// is alias-resolved through the mapping snapshot so "PO-1001" and "1001"
// land in one bucket. A job's PO scope narrows which shipments run (see
// InScope), never the candidate pools themselves: deep fuzzy always sees the
// whole customer.
func Block(ctx context.Context, customer, poNumber string, snapshot *MappingSnapshot) (*CandidateSet, error) {
	active, err := models.ListOrders(ctx, customer, "", models.LifecycleFlagActive)
	if err != nil {
		return nil, err
	}
	cancelled, err := models.ListOrders(ctx, customer, "", models.LifecycleFlagCancelled)
	if err != nil {
		return nil, err
	}

	set := &CandidateSet{
		byPo:      make(map[string][]models.Order),
		cancelled: make(map[string][]models.Order),
		snapshot:  snapshot,
	}
	if poNumber != "" {
		set.scope = snapshot.Canonicalize(AttributeNamePoNumber, poNumber, models.SourceSideAny).Value
	}

	for _, order := range active {
		po := snapshot.Canonicalize(AttributeNamePoNumber, order.PoNumber, models.SourceSideOrder).Value
		set.byPo[po] = append(set.byPo[po], order)
		set.all = append(set.all, order)
	}
	for _, order := range cancelled {
		po := snapshot.Canonicalize(AttributeNamePoNumber, order.PoNumber, models.SourceSideOrder).Value
		set.cancelled[po] = append(set.cancelled[po], order)
	}
	return set, nil
}

// InScope reports whether a shipment belongs to the job's PO scope. Both
// sides are alias-resolved, so a job scoped to "1001" covers a shipment
// labelled "PO-1001" when a mapping bridges the two.
func (c *CandidateSet) InScope(shipment *models.Shipment) bool {
	if c.scope == "" {
		return true
	}
	return c.canonicalPo(shipment) == c.scope
}

// ForShipment returns the PO-scoped candidates for one shipment.
func (c *CandidateSet) ForShipment(shipment *models.Shipment) []models.Order {
	po := c.canonicalPo(shipment)
	return c.byPo[po]
}

// Widened returns the relaxed candidate pool for deep fuzzy: every active
// order of the customer, regardless of PO or job scope.
func (c *CandidateSet) Widened() []models.Order {
	return c.all
}

// CancelledForShipment returns cancelled orders sharing the shipment's PO,
// the Layer 4 historical pool.
func (c *CandidateSet) CancelledForShipment(shipment *models.Shipment) []models.Order {
	po := c.canonicalPo(shipment)
	return c.cancelled[po]
}

func (c *CandidateSet) canonicalPo(shipment *models.Shipment) string {
	if c.snapshot == nil {
		return utils.NormalizeAttributeValue(shipment.PoNumber)
	}
	return c.snapshot.Canonicalize(AttributeNamePoNumber, shipment.PoNumber, models.SourceSideShipment).Value
}
