package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
	"gorm.io/gorm"
)

// ReconciliationResult is one established (order, shipment) link. A split
// shipment carries several rows sharing a split_group; order_id is NULL
// only for explicit unmatched rows.
type ReconciliationResult struct {
	ID                  int                 `gorm:"primary_key" json:"id"`
	JobId               int                 `gorm:"not null;index" json:"job_id"`
	ShipmentId          int                 `gorm:"not null;index" json:"shipment_id"`
	OrderId             *int                `gorm:"default:null;index" json:"order_id"`
	MatchStatus         MatchStatus         `gorm:"type:enum('matched','unmatched','uncertain');not null" json:"match_status"`
	ConfidenceScore     float64             `gorm:"not null;default:0" json:"confidence_score"`
	MatchMethod         MatchMethod         `gorm:"type:enum('exact','fuzzy','deep_fuzzy','variance_resolution','historical','hitl');default:null" json:"match_method"`
	IsSplitShipment     *bool               `gorm:"not null;default:false" json:"is_split_shipment"`
	SplitGroup          string              `gorm:"size:64;default:null;index" json:"split_group"`
	QuantityCheckResult QuantityCheckResult `gorm:"type:enum('PASS','FAIL');default:null" json:"quantity_check_result"`
	ResidualVariance    float64             `gorm:"not null;default:0" json:"residual_variance"`
	// Annotation rows (Layer 4 historical) explain quantity without
	// claiming a match; they never count toward match_status.
	IsAnnotation *bool                 `gorm:"not null;default:false" json:"is_annotation"`
	Scores       []MatchAttributeScore `gorm:"foreignKey:ResultId" json:"scores,omitempty"`
	CreatedAt    time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// MatchAttributeScore is the audit trail behind one composite score: the
// raw and canonicalized values from both sides and the weighted outcome.
type MatchAttributeScore struct {
	ID                int              `gorm:"primary_key" json:"id"`
	ResultId          int              `gorm:"not null;index" json:"result_id"`
	AttributeName     string           `gorm:"size:100;not null" json:"attribute_name"`
	OrderValue        string           `gorm:"size:255;default:null" json:"order_value"`
	ShipmentValue     string           `gorm:"size:255;default:null" json:"shipment_value"`
	OrderCanonical    string           `gorm:"size:255;default:null" json:"order_canonical"`
	ShipmentCanonical string           `gorm:"size:255;default:null" json:"shipment_canonical"`
	Score             float64          `gorm:"not null" json:"score"`
	Method            ComparisonMethod `gorm:"type:enum('exact','similarity','numeric');not null" json:"method"`
	Weight            float64          `gorm:"not null" json:"weight"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

type ResultFilter struct {
	Customer    string      `form:"customer" json:"customer"`
	PoNumber    string      `form:"po_number" json:"po_number"`
	JobId       int         `form:"job_id" json:"job_id"`
	ShipmentId  int         `form:"shipment_id" json:"shipment_id"`
	MatchStatus MatchStatus `form:"match_status" json:"match_status"`
	SplitGroup  string      `form:"split_group" json:"split_group"`
}

// ListResults is the reporting/review query surface over results.
func ListResults(ctx context.Context, filter ResultFilter, page Pagination) ([]ReconciliationResult, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&ReconciliationResult{})
	if filter.Customer != "" || filter.PoNumber != "" {
		q = q.Joins("JOIN shipments ON shipments.id = reconciliation_results.shipment_id")
		if filter.Customer != "" {
			q = q.Where("shipments.customer = ?", filter.Customer)
		}
		if filter.PoNumber != "" {
			q = q.Where("shipments.po_number = ?", filter.PoNumber)
		}
	}
	if filter.JobId > 0 {
		q = q.Where("reconciliation_results.job_id = ?", filter.JobId)
	}
	if filter.ShipmentId > 0 {
		q = q.Where("reconciliation_results.shipment_id = ?", filter.ShipmentId)
	}
	if filter.MatchStatus != "" {
		q = q.Where("reconciliation_results.match_status = ?", filter.MatchStatus)
	}
	if filter.SplitGroup != "" {
		q = q.Where("reconciliation_results.split_group = ?", filter.SplitGroup)
	}
	var results []ReconciliationResult
	err := q.Order("reconciliation_results.id asc").
		Offset(page.Offset()).Limit(page.Limit()).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetResult(ctx context.Context, id int) (*ReconciliationResult, error) {
	db := config.GetDB()
	var result ReconciliationResult
	if err := db.WithContext(ctx).Preload("Scores").First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// ListResultScores returns the per-attribute breakdown for one result.
func ListResultScores(ctx context.Context, resultId int) ([]MatchAttributeScore, error) {
	db := config.GetDB()
	var scores []MatchAttributeScore
	if err := db.WithContext(ctx).Where("result_id = ?", resultId).Order("id asc").Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}

// HasMatchedResult reports whether a shipment already carries a binding
// matched row from a completed job. Re-runs use this for idempotence.
func HasMatchedResult(ctx context.Context, shipmentId int) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&ReconciliationResult{}).
		Joins("JOIN reconciliation_jobs ON reconciliation_jobs.id = reconciliation_results.job_id").
		Where("reconciliation_results.shipment_id = ? AND reconciliation_results.match_status = ? AND reconciliation_results.is_annotation = 0",
			shipmentId, MatchStatusMatched).
		Where("reconciliation_jobs.status = ?", JobStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MatchedOrderIds returns orders already bound by a matched, non-annotation
// result, used to keep recruited orders out of later candidate sets.
func MatchedOrderIds(ctx context.Context, customer string) (map[int]struct{}, error) {
	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).Model(&ReconciliationResult{}).
		Joins("JOIN orders ON orders.id = reconciliation_results.order_id").
		Where("orders.customer = ? AND reconciliation_results.match_status = ? AND reconciliation_results.is_annotation = 0",
			customer, MatchStatusMatched).
		Pluck("reconciliation_results.order_id", &ids).Error
	if err != nil {
		return nil, err
	}
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
