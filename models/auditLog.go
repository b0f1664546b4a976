package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
	"gorm.io/gorm"
)

// AuditLogEntry is append-only. Rows are never updated or deleted; every
// mutation of a reconciliation entity publishes one entry inside the same
// transaction as the write it describes.
type AuditLogEntry struct {
	ID            int         `gorm:"primary_key" json:"id"`
	EntityType    string      `gorm:"size:100;not null;index:idx_audit_entity" json:"entity_type"`
	EntityId      int         `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	Action        AuditAction `gorm:"size:50;not null" json:"action"`
	Field         string      `gorm:"size:100;default:null" json:"field"`
	OldValue      string      `gorm:"type:text" json:"old_value"`
	NewValue      string      `gorm:"type:text" json:"new_value"`
	Actor         string      `gorm:"size:100;not null" json:"actor"`
	CorrelationId string      `gorm:"size:64;default:null;index" json:"correlation_id"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// RecordAudit appends one entry on the caller's transaction. Actor and
// correlation id come from the context so business code never builds them.
func RecordAudit(ctx context.Context, tx *gorm.DB, entityType string, entityId int, action AuditAction, field, oldValue, newValue string) error {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	entry := AuditLogEntry{
		EntityType:    entityType,
		EntityId:      entityId,
		Action:        action,
		Field:         field,
		OldValue:      oldValue,
		NewValue:      newValue,
		Actor:         utils.GetActorFromContext(ctx),
		CorrelationId: cid,
	}
	return tx.Create(&entry).Error
}

// ListAuditLog queries the trail by entity and/or time window for
// downstream reporting.
func ListAuditLog(ctx context.Context, entityType string, entityId int, since *time.Time, page Pagination) ([]AuditLogEntry, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&AuditLogEntry{})
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if entityId > 0 {
		q = q.Where("entity_id = ?", entityId)
	}
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var entries []AuditLogEntry
	if err := q.Order("id asc").Offset(page.Offset()).Limit(page.Limit()).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
