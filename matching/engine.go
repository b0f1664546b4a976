package matching

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/models"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
)

const shipmentHandlerName = "reconcile_shipment"

// Engine runs reconciliation jobs. Jobs for different customers are
// independent; within one job shipments are processed sequentially in
// stable order so reruns are reproducible.
type Engine struct {
	logger *logrus.Logger
}

func NewEngine() *Engine {
	return &Engine{logger: config.GetLogger()}
}

type shipmentDisposition string

const (
	dispositionMatched   shipmentDisposition = "matched"
	dispositionUnmatched shipmentDisposition = "unmatched"
	dispositionUncertain shipmentDisposition = "uncertain"
	dispositionSkipped   shipmentDisposition = "skipped"
)

// RunJob drives one job from queued to a terminal state. Configuration
// errors and storage failures mark the job failed; a single bad shipment
// is skipped and the run continues; cancellation is honored between
// shipments and leaves committed results intact.
func (e *Engine) RunJob(ctx context.Context, jobId int) error {
	job, err := models.GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); !ok || cid == "" {
		ctx = utils.SetCorrelationIdInContext(ctx, job.CorrelationId)
	}

	if err := models.TransitionJob(ctx, jobId, models.JobStatusQueued, models.JobStatusRunning, nil); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Cancelled before start, or another runner owns it.
			return nil
		}
		return err
	}

	// Best-effort: one concurrent job per customer. Authority stays with
	// the MySQL idempotency keys, so a lost redis is not fatal.
	if locker := config.GetRedisLock(); locker != nil {
		lock, lockErr := locker.Obtain(ctx, "reconcile:job:"+job.Customer, 30*time.Minute, nil)
		if lockErr == nil {
			defer lock.Release(context.Background())
		} else if lockErr != redislock.ErrNotObtained {
			e.logger.WithField("customer", job.Customer).Warnf("job lock: %v", lockErr)
		}
	}

	if err := e.runScoped(ctx, job); err != nil {
		e.failJob(ctx, job, err)
		return err
	}
	return nil
}

func (e *Engine) runScoped(ctx context.Context, job *models.ReconciliationJob) error {
	configs, settings, err := models.LoadMatchConfig(ctx, job.Customer)
	if err != nil {
		return &ConfigurationError{Customer: job.Customer, Err: err}
	}

	snapshot, err := LoadMappingSnapshot(ctx, job.Customer)
	if err != nil {
		return err
	}
	candidates, err := Block(ctx, job.Customer, job.PoNumber, snapshot)
	if err != nil {
		return err
	}
	// Shipments are loaded customer-wide and scoped through the same
	// alias-resolved PO comparison the blocker uses, so a shipment whose
	// feed says "PO-1001" still runs in a job scoped to "1001".
	allShipments, err := models.ListShipments(ctx, job.Customer, "")
	if err != nil {
		return err
	}
	shipments := make([]models.Shipment, 0, len(allShipments))
	for i := range allShipments {
		if candidates.InScope(&allShipments[i]) {
			shipments = append(shipments, allShipments[i])
		}
	}
	boundOrders, err := models.MatchedOrderIds(ctx, job.Customer)
	if err != nil {
		return err
	}

	scorer := NewScorer(configs, snapshot, e.logger)
	force := job.Force != nil && *job.Force
	counts := map[shipmentDisposition]int{}

	for i := range shipments {
		if ctx.Err() != nil || models.IsCancelRequested(ctx, job.ID) {
			return models.TransitionJob(ctx, job.ID, models.JobStatusRunning, models.JobStatusCancelled,
				e.countUpdates(counts))
		}

		disposition, err := e.processShipment(ctx, job, &shipments[i], scorer, candidates, settings, boundOrders, force)
		if err != nil {
			var integrity *DataIntegrityError
			if errors.As(err, &integrity) {
				config.LogError(e.logger, "engine.go", "RunJob", "skipping shipment", shipments[i].ID, err)
				counts[dispositionSkipped]++
				continue
			}
			return err
		}
		counts[disposition]++
	}

	return models.TransitionJob(ctx, job.ID, models.JobStatusRunning, models.JobStatusCompleted, e.countUpdates(counts))
}

func (e *Engine) countUpdates(counts map[shipmentDisposition]int) map[string]interface{} {
	return map[string]interface{}{
		"matched_count":   counts[dispositionMatched],
		"unmatched_count": counts[dispositionUnmatched],
		"uncertain_count": counts[dispositionUncertain],
		"skipped_count":   counts[dispositionSkipped],
	}
}

func (e *Engine) failJob(ctx context.Context, job *models.ReconciliationJob, cause error) {
	err := models.TransitionJob(ctx, job.ID, models.JobStatusRunning, models.JobStatusFailed,
		map[string]interface{}{"error_message": cause.Error()})
	if err != nil {
		config.LogError(e.logger, "engine.go", "failJob", "marking job failed", job.ID, err)
	}
}

// processShipment runs the layer pipeline for one shipment and commits its
// results in one transaction. The durable idempotency key lives on the
// outer connection so a rolled-back shipment still records FAILED.
//
// The key is scoped to (job, shipment): it guards against crash re-runs
// and duplicate delivery inside one job. Across jobs the only skip is
// HasMatchedResult, so unmatched and uncertain shipments are re-examined
// by every later run and can be rescued by new mappings or HITL outcomes.
func (e *Engine) processShipment(
	ctx context.Context,
	job *models.ReconciliationJob,
	shipment *models.Shipment,
	scorer *Scorer,
	candidates *CandidateSet,
	settings models.CustomerMatchSettings,
	boundOrders map[int]struct{},
	force bool,
) (shipmentDisposition, error) {
	db := config.GetDB()
	messageId := strconv.Itoa(job.ID) + ":" + strconv.Itoa(shipment.ID)

	if !force {
		matched, err := models.HasMatchedResult(ctx, shipment.ID)
		if err != nil {
			return "", err
		}
		if matched {
			return dispositionSkipped, nil
		}
		skip, err := models.BeginIdempotency(db.WithContext(ctx), job.Customer, shipmentHandlerName, messageId)
		if err != nil {
			if errors.Is(err, models.ErrIdempotencyInProgress) {
				return "", &DataIntegrityError{Entity: "Shipment", Id: shipment.ID, Err: err}
			}
			return "", err
		}
		if skip {
			return dispositionSkipped, nil
		}
	}

	if shipment.Quantity.IsNegative() {
		_ = models.MarkIdempotencyFailed(db.WithContext(ctx), job.Customer, shipmentHandlerName, messageId,
			fmt.Errorf("negative quantity"))
		return "", &DataIntegrityError{Entity: "Shipment", Id: shipment.ID, Err: fmt.Errorf("negative quantity")}
	}

	disposition, err := e.matchAndPersist(ctx, job, shipment, scorer, candidates, settings, boundOrders)
	if err != nil {
		_ = models.MarkIdempotencyFailed(db.WithContext(ctx), job.Customer, shipmentHandlerName, messageId, err)
		return "", err
	}
	if err := models.MarkIdempotencySucceeded(db.WithContext(ctx), job.Customer, shipmentHandlerName, messageId); err != nil {
		return "", err
	}
	return disposition, nil
}

func (e *Engine) matchAndPersist(
	ctx context.Context,
	job *models.ReconciliationJob,
	shipment *models.Shipment,
	scorer *Scorer,
	candidates *CandidateSet,
	settings models.CustomerMatchSettings,
	boundOrders map[int]struct{},
) (shipmentDisposition, error) {
	db := config.GetDB()

	poOrders := candidates.ForShipment(shipment)
	// Zero candidates in the PO scope: unmatched immediately, no layers.
	if len(poOrders) == 0 {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return e.writeResult(ctx, tx, &models.ReconciliationResult{
				JobId:       job.ID,
				ShipmentId:  shipment.ID,
				MatchStatus: models.MatchStatusUnmatched,
			}, nil)
		})
		if err != nil {
			return "", err
		}
		return dispositionUnmatched, nil
	}

	mc := &MatchContext{
		Shipment:       *shipment,
		Candidates:     scoreAll(scorer, poOrders, shipment),
		WideCandidates: scoreAll(scorer, candidates.Widened(), shipment),
		Settings:       settings,
	}

	var outcome *MatchOutcome
	for _, layer := range Layers() {
		if outcome = layer(mc); outcome != nil {
			break
		}
	}

	if outcome == nil {
		return e.persistInconclusive(ctx, job, shipment, mc)
	}

	variance, check := QuantityCheck(shipment, &outcome.Order, settings.VarianceTolerance)
	if check == models.QuantityCheckPass {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return e.writeResult(ctx, tx, &models.ReconciliationResult{
				JobId:               job.ID,
				ShipmentId:          shipment.ID,
				OrderId:             &outcome.Order.ID,
				MatchStatus:         models.MatchStatusMatched,
				ConfidenceScore:     outcome.Confidence,
				MatchMethod:         outcome.Method,
				QuantityCheckResult: models.QuantityCheckPass,
				ResidualVariance:    variance,
			}, outcome.Scores)
		})
		if err != nil {
			return "", err
		}
		boundOrders[outcome.Order.ID] = struct{}{}
		return dispositionMatched, nil
	}

	return e.persistQuantityFailure(ctx, job, shipment, outcome, candidates, settings, boundOrders)
}

// persistQuantityFailure runs Layers 3-4 for a match that failed the
// quantity check and commits whichever resolution they reach.
func (e *Engine) persistQuantityFailure(
	ctx context.Context,
	job *models.ReconciliationJob,
	shipment *models.Shipment,
	outcome *MatchOutcome,
	candidates *CandidateSet,
	settings models.CustomerMatchSettings,
	boundOrders map[int]struct{},
) (shipmentDisposition, error) {
	db := config.GetDB()

	pool := make([]models.Order, 0)
	for _, order := range candidates.ForShipment(shipment) {
		if order.ID == outcome.Order.ID {
			continue
		}
		if _, bound := boundOrders[order.ID]; bound {
			continue
		}
		pool = append(pool, order)
	}

	if resolution := ResolveVariance(shipment, &outcome.Order, pool, settings.VarianceTolerance); resolution != nil {
		splitGroup := uuid.NewString()
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			primary := &models.ReconciliationResult{
				JobId:               job.ID,
				ShipmentId:          shipment.ID,
				OrderId:             &outcome.Order.ID,
				MatchStatus:         models.MatchStatusMatched,
				ConfidenceScore:     outcome.Confidence,
				MatchMethod:         outcome.Method,
				IsSplitShipment:     utils.NewTrue(),
				SplitGroup:          splitGroup,
				QuantityCheckResult: models.QuantityCheckPass,
				ResidualVariance:    resolution.Residual,
			}
			if err := e.writeResult(ctx, tx, primary, outcome.Scores); err != nil {
				return err
			}
			for i := range resolution.Recruited {
				recruited := &models.ReconciliationResult{
					JobId:               job.ID,
					ShipmentId:          shipment.ID,
					OrderId:             &resolution.Recruited[i].ID,
					MatchStatus:         models.MatchStatusMatched,
					ConfidenceScore:     outcome.Confidence,
					MatchMethod:         models.MatchMethodVarianceResolution,
					IsSplitShipment:     utils.NewTrue(),
					SplitGroup:          splitGroup,
					QuantityCheckResult: models.QuantityCheckPass,
					ResidualVariance:    resolution.Residual,
				}
				if err := e.writeResult(ctx, tx, recruited, nil); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		boundOrders[outcome.Order.ID] = struct{}{}
		for i := range resolution.Recruited {
			boundOrders[resolution.Recruited[i].ID] = struct{}{}
		}
		return dispositionMatched, nil
	}

	// Tolerance unresolvable: not an error. Layer 4 may still explain the
	// remainder with a cancelled order, then the shipment goes to review.
	annotation := ExplainWithCancelled(shipment, outcome.Order.Quantity,
		candidates.CancelledForShipment(shipment), settings.VarianceTolerance)

	variance := QuantityVariance(shipment.Quantity, outcome.Order.Quantity)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uncertain := &models.ReconciliationResult{
			JobId:               job.ID,
			ShipmentId:          shipment.ID,
			OrderId:             &outcome.Order.ID,
			MatchStatus:         models.MatchStatusUncertain,
			ConfidenceScore:     outcome.Confidence,
			MatchMethod:         outcome.Method,
			QuantityCheckResult: models.QuantityCheckFail,
			ResidualVariance:    variance,
		}
		if err := e.writeResult(ctx, tx, uncertain, outcome.Scores); err != nil {
			return err
		}
		if annotation != nil {
			note := &models.ReconciliationResult{
				JobId:            job.ID,
				ShipmentId:       shipment.ID,
				OrderId:          &annotation.Order.ID,
				MatchStatus:      models.MatchStatusUncertain,
				ConfidenceScore:  outcome.Confidence,
				MatchMethod:      models.MatchMethodHistorical,
				ResidualVariance: annotation.Residual,
				IsAnnotation:     utils.NewTrue(),
			}
			if err := e.writeResult(ctx, tx, note, nil); err != nil {
				return err
			}
		}
		return models.CreateQueueItem(ctx, tx, newQueueItem(job.Customer, uncertain.ID, outcome.Confidence, outcome.Scores))
	})
	if err != nil {
		return "", err
	}
	return dispositionUncertain, nil
}

// persistInconclusive handles shipments no layer accepted: below the
// no-match floor they are unmatched, inside the uncertain band they are
// queued for review against the best candidate.
func (e *Engine) persistInconclusive(
	ctx context.Context,
	job *models.ReconciliationJob,
	shipment *models.Shipment,
	mc *MatchContext,
) (shipmentDisposition, error) {
	db := config.GetDB()

	best := bestCandidate(mc.Candidates)
	if wide := bestCandidate(mc.WideCandidates); wide != nil && (best == nil || wide.Composite > best.Composite) {
		best = wide
	}

	if best == nil || best.Composite < mc.Settings.NoMatchThreshold {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return e.writeResult(ctx, tx, &models.ReconciliationResult{
				JobId:       job.ID,
				ShipmentId:  shipment.ID,
				MatchStatus: models.MatchStatusUnmatched,
			}, nil)
		})
		if err != nil {
			return "", err
		}
		return dispositionUnmatched, nil
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uncertain := &models.ReconciliationResult{
			JobId:           job.ID,
			ShipmentId:      shipment.ID,
			OrderId:         &best.Order.ID,
			MatchStatus:     models.MatchStatusUncertain,
			ConfidenceScore: best.Composite,
		}
		if err := e.writeResult(ctx, tx, uncertain, best.Scores); err != nil {
			return err
		}
		return models.CreateQueueItem(ctx, tx, newQueueItem(job.Customer, uncertain.ID, best.Composite, best.Scores))
	})
	if err != nil {
		return "", err
	}
	return dispositionUncertain, nil
}

func (e *Engine) writeResult(ctx context.Context, tx *gorm.DB, result *models.ReconciliationResult, scores []models.MatchAttributeScore) error {
	if err := tx.Create(result).Error; err != nil {
		return err
	}
	for i := range scores {
		scores[i].ID = 0
		scores[i].ResultId = result.ID
		if err := tx.Create(&scores[i]).Error; err != nil {
			return err
		}
	}
	return models.RecordAudit(ctx, tx, "ReconciliationResult", result.ID, models.AuditActionCreate,
		"match_status", "", string(result.MatchStatus))
}

// newQueueItem builds the pending review item for an uncertain result.
// When the disagreement is attributable, the item carries the attribute
// triple plus the order-side canonical as the suggestion, so an approve or
// modify decision feeds the mapping store and later runs rescore with it.
func newQueueItem(customer string, resultId int, score float64, scores []models.MatchAttributeScore) *models.HitlQueueItem {
	item := &models.HitlQueueItem{
		ResultId:       &resultId,
		Customer:       customer,
		SuggestedScore: score,
	}
	if weak := weakestAttribute(scores); weak != nil {
		item.AttributeName = weak.AttributeName
		item.SourceValue = weak.ShipmentValue
		item.SourceSide = models.SourceSideShipment
		item.SuggestedCanonical = weak.OrderCanonical
	}
	return item
}

// weakestAttribute picks the lowest-scoring disagreeing attribute of a
// candidate. Exact attributes and attributes with a missing side carry no
// mapping signal and are skipped; a quantity-only failure returns nil.
func weakestAttribute(scores []models.MatchAttributeScore) *models.MatchAttributeScore {
	var weakest *models.MatchAttributeScore
	for i := range scores {
		s := &scores[i]
		if s.Score >= 1.0 || s.ShipmentValue == "" || s.OrderCanonical == "" {
			continue
		}
		if weakest == nil || s.Score < weakest.Score {
			weakest = s
		}
	}
	return weakest
}

func scoreAll(scorer *Scorer, orders []models.Order, shipment *models.Shipment) []Candidate {
	out := make([]Candidate, 0, len(orders))
	for i := range orders {
		composite, scores := scorer.Score(&orders[i], shipment)
		out = append(out, Candidate{Order: orders[i], Composite: composite, Scores: scores})
	}
	return out
}
