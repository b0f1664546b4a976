package matching

import (
	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

// AttributeNameQuantity participates in scoring as a numeric attribute when
// configured; the quantity check proper runs after matching.
const (
	AttributeNameStyleCode        = "style_code"
	AttributeNameColorDescription = "color_description"
	AttributeNameDeliveryMethod   = "delivery_method"
	AttributeNamePoNumber         = "po_number"
	AttributeNameQuantity         = "quantity"
)

// Scorer computes the weighted composite confidence for a candidate pair
// using one customer's attribute configs and the job's mapping snapshot.
type Scorer struct {
	configs  []models.CustomerMatchConfig
	snapshot *MappingSnapshot
	logger   *logrus.Logger
}

func NewScorer(configs []models.CustomerMatchConfig, snapshot *MappingSnapshot, logger *logrus.Logger) *Scorer {
	return &Scorer{configs: configs, snapshot: snapshot, logger: logger}
}

func orderAttribute(order *models.Order, name string) (string, bool) {
	switch name {
	case AttributeNameStyleCode:
		return order.StyleCode, order.StyleCode != ""
	case AttributeNameColorDescription:
		return order.ColorDescription, order.ColorDescription != ""
	case AttributeNameDeliveryMethod:
		return order.DeliveryMethod, order.DeliveryMethod != ""
	case AttributeNamePoNumber:
		return order.PoNumber, order.PoNumber != ""
	case AttributeNameQuantity:
		return order.Quantity.String(), true
	}
	return "", false
}

func shipmentAttribute(shipment *models.Shipment, name string) (string, bool) {
	switch name {
	case AttributeNameStyleCode:
		return shipment.StyleCode, shipment.StyleCode != ""
	case AttributeNameColorDescription:
		return shipment.ColorDescription, shipment.ColorDescription != ""
	case AttributeNameDeliveryMethod:
		return shipment.DeliveryMethod, shipment.DeliveryMethod != ""
	case AttributeNamePoNumber:
		return shipment.PoNumber, shipment.PoNumber != ""
	case AttributeNameQuantity:
		return shipment.Quantity.String(), true
	}
	return "", false
}

// Score returns the composite in [0,1] and the per-attribute breakdown.
// A requires_exact_match attribute scoring below 1.0 vetoes the composite
// to 0 regardless of the weighted sum. Zero-weight attributes are skipped
// entirely (config error: logged, cannot veto, out of the denominator).
// Missing values score 0 but stay in the denominator.
func (s *Scorer) Score(order *models.Order, shipment *models.Shipment) (float64, []models.MatchAttributeScore) {
	var weightedSum, totalWeight float64
	vetoed := false
	scores := make([]models.MatchAttributeScore, 0, len(s.configs))

	for _, cfg := range s.configs {
		weight, _ := cfg.Weight.Float64()
		requiresExact := cfg.RequiresExactMatch != nil && *cfg.RequiresExactMatch
		if weight == 0 {
			if requiresExact && s.logger != nil {
				s.logger.WithFields(logrus.Fields{
					"customer":  cfg.Customer,
					"attribute": cfg.AttributeName,
				}).Warn("requires_exact_match attribute has weight 0, skipping")
			}
			continue
		}

		rawOrder, orderOk := orderAttribute(order, cfg.AttributeName)
		rawShipment, shipmentOk := shipmentAttribute(shipment, cfg.AttributeName)

		score := 0.0
		canonOrder := ""
		canonShipment := ""
		if orderOk && shipmentOk {
			orderSide := s.snapshot.Canonicalize(cfg.AttributeName, rawOrder, models.SourceSideOrder)
			shipmentSide := s.snapshot.Canonicalize(cfg.AttributeName, rawShipment, models.SourceSideShipment)
			canonOrder = orderSide.Value
			canonShipment = shipmentSide.Value
			score = compareValues(cfg, canonOrder, canonShipment)
		}

		if requiresExact && score < 1.0 {
			vetoed = true
		}

		weightedSum += score * weight
		totalWeight += weight
		scores = append(scores, models.MatchAttributeScore{
			AttributeName:     cfg.AttributeName,
			OrderValue:        rawOrder,
			ShipmentValue:     rawShipment,
			OrderCanonical:    canonOrder,
			ShipmentCanonical: canonShipment,
			Score:             score,
			Method:            cfg.ComparisonMethod,
			Weight:            weight,
		})
	}

	if totalWeight == 0 {
		return 0, scores
	}
	if vetoed {
		return 0, scores
	}
	return weightedSum / totalWeight, scores
}

func compareValues(cfg models.CustomerMatchConfig, a, b string) float64 {
	switch cfg.ComparisonMethod {
	case models.ComparisonMethodSimilarity:
		sim := stringSimilarity(a, b)
		if sim < cfg.SimilarityThreshold {
			return 0
		}
		return sim
	case models.ComparisonMethodNumeric:
		return numericCloseness(a, b)
	default:
		if a == b {
			return 1
		}
		return 0
	}
}

// stringSimilarity is normalized edit distance: 1 - lev(a,b)/max(len).
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	sim := 1 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// numericCloseness is 1 - relative difference, clamped to [0,1].
func numericCloseness(a, b string) float64 {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA != nil || errB != nil {
		return 0
	}
	if da.IsZero() && db.IsZero() {
		return 1
	}
	denom := da.Abs()
	if db.Abs().GreaterThan(denom) {
		denom = db.Abs()
	}
	if denom.IsZero() {
		return 0
	}
	rel, _ := da.Sub(db).Abs().Div(denom).Float64()
	closeness := 1 - rel
	if closeness < 0 {
		return 0
	}
	return closeness
}
