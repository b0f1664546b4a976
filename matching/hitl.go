package matching

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

var ErrItemNotClaimed = errors.New("queue item must be claimed before deciding")
var ErrCanonicalValueRequired = errors.New("modify decision requires a canonical value")

// Decision is the reviewer's submission for one queue item.
type Decision struct {
	Action         models.HitlDecision `json:"action" binding:"required"`
	Reason         string              `json:"reason"`
	CanonicalValue string              `json:"canonical_value"`
}

// SubmitDecision applies a human decision to a claimed queue item.
//
// approve: the suggestion stands — a suggested canonical value is written
// approved into the mapping store, a suggested match becomes a matched
// result. reject: the suggestion is discarded and the shipment stays
// unmatched. modify: the supplied canonical value supersedes the active
// mapping for the key and, when the item points at a match, resolves it
// with match_method=hitl.
func SubmitDecision(ctx context.Context, itemId int, decision Decision) (*models.HitlQueueItem, error) {
	item, err := models.GetQueueItem(ctx, itemId)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalHitlStatus(item.Status) {
		return nil, models.ErrTerminalQueueItem
	}
	if item.Status != models.HitlStatusInReview {
		return nil, ErrItemNotClaimed
	}

	var terminal models.HitlStatus
	canonical := ""
	switch decision.Action {
	case models.HitlDecisionApprove:
		terminal = models.HitlStatusApproved
		canonical = item.SuggestedCanonical
	case models.HitlDecisionReject:
		terminal = models.HitlStatusRejected
	case models.HitlDecisionModify:
		if decision.CanonicalValue == "" {
			return nil, ErrCanonicalValueRequired
		}
		terminal = models.HitlStatusModified
		canonical = decision.CanonicalValue
	default:
		return nil, errors.New("unknown decision action: " + string(decision.Action))
	}

	// The mapping write serializes on its own advisory lock, so it runs
	// before the resolution transaction rather than inside it.
	if canonical != "" && item.AttributeName != "" {
		scope := models.MappingScopeCustomer
		if item.Customer == "" {
			scope = models.MappingScopeGlobal
		}
		side := item.SourceSide
		if side == "" {
			side = models.SourceSideAny
		}
		_, err := ApplyMapping(ctx, &models.NewAttributeMapping{
			Scope:          scope,
			Customer:       item.Customer,
			AttributeName:  item.AttributeName,
			SourceValue:    item.SourceValue,
			SourceSide:     side,
			CanonicalValue: canonical,
			Confidence:     1.0,
			IsApproved:     true,
		})
		if err != nil {
			return nil, err
		}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.ResolveQueueItem(ctx, tx, item, terminal, decision.Action, decision.Reason, canonical); err != nil {
			return err
		}
		if item.ResultId == nil {
			return nil
		}
		return applyDecisionToResult(ctx, tx, *item.ResultId, decision.Action)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// applyDecisionToResult rewrites the uncertain result the item points at.
// Accepted suggestions become human-established matches; rejections leave
// the shipment unmatched with the order link cleared.
func applyDecisionToResult(ctx context.Context, tx *gorm.DB, resultId int, action models.HitlDecision) error {
	var result models.ReconciliationResult
	if err := tx.First(&result, resultId).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{}
	newStatus := result.MatchStatus
	switch action {
	case models.HitlDecisionApprove, models.HitlDecisionModify:
		newStatus = models.MatchStatusMatched
		updates["match_status"] = models.MatchStatusMatched
		updates["match_method"] = models.MatchMethodHitl
	case models.HitlDecisionReject:
		newStatus = models.MatchStatusUnmatched
		updates["match_status"] = models.MatchStatusUnmatched
		updates["match_method"] = nil
		updates["order_id"] = nil
	}

	if err := tx.Model(&models.ReconciliationResult{}).Where("id = ?", resultId).Updates(updates).Error; err != nil {
		return err
	}
	return models.RecordAudit(ctx, tx, "ReconciliationResult", resultId, models.AuditActionUpdate,
		"match_status", string(result.MatchStatus), string(newStatus))
}

// Claim wraps the conditional pending -> in_review transition, retrying
// never: a lost race is surfaced to the caller as "already claimed".
func Claim(ctx context.Context, itemId int, reviewer string) (*models.HitlQueueItem, error) {
	return models.ClaimQueueItem(ctx, itemId, reviewer)
}
