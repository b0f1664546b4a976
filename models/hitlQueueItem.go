package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
	"gorm.io/gorm"
)

var ErrAlreadyClaimed = errors.New("queue item already claimed")
var ErrTerminalQueueItem = errors.New("queue item is in a terminal state")

// HitlQueueItem is one pending human decision: either an uncertain
// reconciliation result or a raw attribute value needing canonicalization.
// Terminal rows (approved/rejected/modified) are immutable; re-review
// requires a fresh item.
type HitlQueueItem struct {
	ID       int        `gorm:"primary_key" json:"id"`
	ResultId *int       `gorm:"default:null;index" json:"result_id"`
	Customer string     `gorm:"size:100;not null;index" json:"customer"`
	Status   HitlStatus `gorm:"type:enum('pending','in_review','approved','rejected','modified');not null;default:'pending';index" json:"status"`

	// Attribute triple for canonicalization items (empty for match reviews).
	AttributeName string     `gorm:"size:100;default:null" json:"attribute_name"`
	SourceValue   string     `gorm:"size:255;default:null" json:"source_value"`
	SourceSide    SourceSide `gorm:"type:enum('order','shipment','any');default:null" json:"source_side"`

	SuggestedCanonical string  `gorm:"size:255;default:null" json:"suggested_canonical"`
	SuggestedScore     float64 `gorm:"not null;default:0" json:"suggested_score"`

	AssignedTo     string     `gorm:"size:100;default:null" json:"assigned_to"`
	Decision       string     `gorm:"size:50;default:null" json:"decision"`
	DecisionReason string     `gorm:"type:text" json:"decision_reason"`
	CanonicalValue string     `gorm:"size:255;default:null" json:"canonical_value"`
	ClaimedAt      *time.Time `gorm:"default:null" json:"claimed_at"`
	ResolvedAt     *time.Time `gorm:"default:null" json:"resolved_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateQueueItem appends a pending item plus its audit entry on the
// caller's transaction (jobs enqueue inside the per-shipment tx).
func CreateQueueItem(ctx context.Context, tx *gorm.DB, item *HitlQueueItem) error {
	item.Status = HitlStatusPending
	if err := tx.Create(item).Error; err != nil {
		return err
	}
	return RecordAudit(ctx, tx, "HitlQueueItem", item.ID, AuditActionCreate, "status", "", string(HitlStatusPending))
}

// ClaimQueueItem moves pending -> in_review with a conditional update.
// The WHERE clause is the optimistic check-and-set: with two concurrent
// claimers exactly one UPDATE hits a row, the loser gets ErrAlreadyClaimed.
// The update and its audit entry commit in one transaction, so a claim can
// never land without its trail.
func ClaimQueueItem(ctx context.Context, id int, reviewer string) (*HitlQueueItem, error) {
	db := config.GetDB()
	now := time.Now().UTC()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&HitlQueueItem{}).
			Where("id = ? AND status = ?", id, HitlStatusPending).
			Updates(map[string]interface{}{
				"status":      HitlStatusInReview,
				"assigned_to": reviewer,
				"claimed_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var existing HitlQueueItem
			if err := tx.First(&existing, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.ErrorRecordNotFound
				}
				return err
			}
			return ErrAlreadyClaimed
		}
		return RecordAudit(ctx, tx, "HitlQueueItem", id, AuditActionStatusTransition,
			"status", string(HitlStatusPending), string(HitlStatusInReview))
	})
	if err != nil {
		return nil, err
	}

	var item HitlQueueItem
	if err := db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ResolveQueueItem moves in_review -> terminal on the caller's transaction,
// again via conditional update so a terminal row can never transition.
func ResolveQueueItem(ctx context.Context, tx *gorm.DB, item *HitlQueueItem, terminal HitlStatus, decision HitlDecision, reason, canonicalValue string) error {
	if !IsTerminalHitlStatus(terminal) {
		return errors.New("resolve requires a terminal status")
	}
	now := time.Now().UTC()
	res := tx.Model(&HitlQueueItem{}).
		Where("id = ? AND status = ?", item.ID, HitlStatusInReview).
		Updates(map[string]interface{}{
			"status":          terminal,
			"decision":        string(decision),
			"decision_reason": reason,
			"canonical_value": canonicalValue,
			"resolved_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTerminalQueueItem
	}
	if err := RecordAudit(ctx, tx, "HitlQueueItem", item.ID, AuditActionStatusTransition,
		"status", string(HitlStatusInReview), string(terminal)); err != nil {
		return err
	}
	item.Status = terminal
	item.Decision = string(decision)
	item.DecisionReason = reason
	item.CanonicalValue = canonicalValue
	item.ResolvedAt = &now
	return nil
}

func GetQueueItem(ctx context.Context, id int) (*HitlQueueItem, error) {
	db := config.GetDB()
	var item HitlQueueItem
	if err := db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &item, nil
}

func ListQueueItems(ctx context.Context, customer string, status HitlStatus, page Pagination) ([]HitlQueueItem, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&HitlQueueItem{})
	if customer != "" {
		q = q.Where("customer = ?", customer)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var items []HitlQueueItem
	if err := q.Order("id asc").Offset(page.Offset()).Limit(page.Limit()).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
