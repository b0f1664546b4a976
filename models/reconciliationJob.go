package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
	"gorm.io/gorm"
)

var ErrJobNotCancellable = errors.New("job is not cancellable")

// ReconciliationJob is the ledger row for one batch run. It owns the
// results written by that run and records enough to re-run safely.
type ReconciliationJob struct {
	ID       int       `gorm:"primary_key" json:"id"`
	Customer string    `gorm:"size:100;not null;index" json:"customer"`
	PoNumber string    `gorm:"size:100;default:null" json:"po_number"`
	Force    *bool     `gorm:"not null;default:false" json:"force"`
	Status   JobStatus `gorm:"type:enum('queued','running','completed','failed','cancelled');not null;default:'queued';index" json:"status"`

	MatchedCount   int `gorm:"not null;default:0" json:"matched_count"`
	UnmatchedCount int `gorm:"not null;default:0" json:"unmatched_count"`
	UncertainCount int `gorm:"not null;default:0" json:"uncertain_count"`
	SkippedCount   int `gorm:"not null;default:0" json:"skipped_count"`

	// CancelRequested is the cooperative-cancellation flag the runner polls
	// between shipments. It stays set after the job reaches cancelled.
	CancelRequested *bool `gorm:"not null;default:false" json:"cancel_requested"`

	ErrorMessage  string     `gorm:"type:text" json:"error_message"`
	CorrelationId string     `gorm:"size:64;not null;index" json:"correlation_id"`
	StartedAt     *time.Time `gorm:"default:null" json:"started_at"`
	FinishedAt    *time.Time `gorm:"default:null" json:"finished_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateJob(ctx context.Context, customer, poNumber string, force bool) (*ReconciliationJob, error) {
	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = utils.NewCorrelationId()
	}
	job := ReconciliationJob{
		Customer:      customer,
		PoNumber:      poNumber,
		Force:         &force,
		Status:        JobStatusQueued,
		CorrelationId: cid,
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&job).Error; err != nil {
			return err
		}
		return RecordAudit(ctx, tx, "ReconciliationJob", job.ID, AuditActionCreate, "status", "", string(JobStatusQueued))
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// TransitionJob applies a conditional status update so two runners can
// never drive the same job, and audits the transition.
func TransitionJob(ctx context.Context, jobId int, from, to JobStatus, updates map[string]interface{}) error {
	db := config.GetDB()
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	now := time.Now().UTC()
	switch to {
	case JobStatusRunning:
		updates["started_at"] = now
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		updates["finished_at"] = now
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ReconciliationJob{}).
			Where("id = ? AND status = ?", jobId, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return RecordAudit(ctx, tx, "ReconciliationJob", jobId, AuditActionStatusTransition,
			"status", string(from), string(to))
	})
}

// RequestJobCancel cancels a queued job outright and flags a running one.
// The runner polls the flag between shipments and stops cooperatively.
func RequestJobCancel(ctx context.Context, jobId int) error {
	job, err := GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	switch job.Status {
	case JobStatusQueued:
		return TransitionJob(ctx, jobId, JobStatusQueued, JobStatusCancelled, nil)
	case JobStatusRunning:
		db := config.GetDB()
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&ReconciliationJob{}).
				Where("id = ? AND status = ?", jobId, JobStatusRunning).
				Update("cancel_requested", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Finished between the read and the update.
				return ErrJobNotCancellable
			}
			return RecordAudit(ctx, tx, "ReconciliationJob", jobId, AuditActionUpdate,
				"cancel_requested", "false", "true")
		})
	default:
		return ErrJobNotCancellable
	}
}

// IsCancelRequested is the runner-side poll for cooperative cancellation.
func IsCancelRequested(ctx context.Context, jobId int) bool {
	db := config.GetDB()
	var flag bool
	if err := db.WithContext(ctx).Model(&ReconciliationJob{}).
		Where("id = ?", jobId).
		Pluck("cancel_requested", &flag).Error; err != nil {
		return false
	}
	return flag
}

func GetJob(ctx context.Context, id int) (*ReconciliationJob, error) {
	db := config.GetDB()
	var job ReconciliationJob
	if err := db.WithContext(ctx).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

func ListJobs(ctx context.Context, customer string, status JobStatus, page Pagination) ([]ReconciliationJob, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&ReconciliationJob{})
	if customer != "" {
		q = q.Where("customer = ?", customer)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []ReconciliationJob
	if err := q.Order("id desc").Offset(page.Offset()).Limit(page.Limit()).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
