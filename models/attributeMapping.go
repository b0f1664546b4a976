package models

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
	"gorm.io/gorm"
)

// ErrMappingContention marks write failures caused by another concurrent
// writer on the same key (lost advisory lock, duplicate active row).
// Callers may retry these; any other write error is a real fault.
var ErrMappingContention = errors.New("mapping write contention")

// AttributeMapping maps a raw feed value to its canonical value for one
// (scope, customer, attribute, source_value, source_side) key. Rows are
// superseded, never deleted: the Active flag is TRUE for the live row and
// NULL for superseded ones, so the unique index only covers the live row
// while keeping full history.
type AttributeMapping struct {
	ID             int          `gorm:"primary_key" json:"id"`
	Scope          MappingScope `gorm:"type:enum('customer','global');not null;index:uniq_attr_map,unique" json:"scope"`
	Customer       string       `gorm:"size:100;not null;default:'';index:uniq_attr_map,unique" json:"customer"`
	AttributeName  string       `gorm:"size:100;not null;index:uniq_attr_map,unique" json:"attribute_name"`
	SourceValue    string       `gorm:"size:255;not null;index:uniq_attr_map,unique" json:"source_value"`
	SourceSide     SourceSide   `gorm:"type:enum('order','shipment','any');not null;index:uniq_attr_map,unique" json:"source_side"`
	CanonicalValue string       `gorm:"size:255;not null" json:"canonical_value"`
	Confidence     float64      `gorm:"not null;default:0" json:"confidence"`
	IsApproved     *bool        `gorm:"not null;default:false" json:"is_approved"`
	Active         *bool        `gorm:"default:null;index:uniq_attr_map,unique" json:"active"`
	SupersededBy   *int         `gorm:"default:null" json:"superseded_by"`
	CreatedBy      string       `gorm:"size:100;not null" json:"created_by"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAttributeMapping struct {
	Scope          MappingScope `json:"scope" binding:"required"`
	Customer       string       `json:"customer"`
	AttributeName  string       `json:"attribute_name" binding:"required"`
	SourceValue    string       `json:"source_value" binding:"required"`
	SourceSide     SourceSide   `json:"source_side" binding:"required"`
	CanonicalValue string       `json:"canonical_value" binding:"required"`
	Confidence     float64      `json:"confidence"`
	IsApproved     bool         `json:"is_approved"`
}

func (m *NewAttributeMapping) lockName() string {
	key := fmt.Sprintf("%s|%s|%s|%s|%s", m.Scope, m.Customer, m.AttributeName, m.SourceValue, m.SourceSide)
	// GET_LOCK names are capped at 64 chars, so hash the composite key.
	return fmt.Sprintf("attrmap:%x", sha256.Sum256([]byte(key)))[:64]
}

// AcquireMappingLock serializes writers per mapping key across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that performs the supersede-and-insert transaction.
func AcquireMappingLock(tx *gorm.DB, input *NewAttributeMapping) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 10)", input.lockName()).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("%w: lock timeout for %s/%s/%s", ErrMappingContention, input.Scope, input.AttributeName, input.SourceValue)
	}
	return nil
}

func ReleaseMappingLock(tx *gorm.DB, input *NewAttributeMapping) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", input.lockName()).Scan(&_ok).Error
}

// WriteAttributeMapping installs a new active mapping for a key, superseding
// any prior active row. The whole operation runs under the per-key advisory
// lock plus one transaction, so two concurrent writers can never leave two
// simultaneously-active rows.
//
// Writing the identical canonical value again is a no-op and returns the
// existing row.
func WriteAttributeMapping(ctx context.Context, input *NewAttributeMapping) (*AttributeMapping, error) {
	db := config.GetDB()

	input.SourceValue = utils.NormalizeAttributeValue(input.SourceValue)
	input.CanonicalValue = utils.NormalizeAttributeValue(input.CanonicalValue)
	if input.Scope == MappingScopeGlobal {
		input.Customer = ""
	}

	if err := AcquireMappingLock(db, input); err != nil {
		return nil, err
	}
	defer ReleaseMappingLock(db, input)

	var result *AttributeMapping
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior AttributeMapping
		found := true
		err := tx.Where(
			"scope = ? AND customer = ? AND attribute_name = ? AND source_value = ? AND source_side = ? AND active = 1",
			input.Scope, input.Customer, input.AttributeName, input.SourceValue, input.SourceSide,
		).First(&prior).Error
		if err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			found = false
		}

		if found && prior.CanonicalValue == input.CanonicalValue {
			result = &prior
			return nil
		}

		next := AttributeMapping{
			Scope:          input.Scope,
			Customer:       input.Customer,
			AttributeName:  input.AttributeName,
			SourceValue:    input.SourceValue,
			SourceSide:     input.SourceSide,
			CanonicalValue: input.CanonicalValue,
			Confidence:     input.Confidence,
			IsApproved:     &input.IsApproved,
			Active:         utils.NewTrue(),
			CreatedBy:      utils.GetActorFromContext(ctx),
		}

		if found {
			// Supersede first so the unique index never sees two active rows.
			if err := tx.Model(&AttributeMapping{}).Where("id = ?", prior.ID).
				Updates(map[string]interface{}{"active": nil}).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&next).Error; err != nil {
			if isDuplicateKeyErr(err) {
				// Another writer slipped an active row in for this key.
				return fmt.Errorf("%w: %v", ErrMappingContention, err)
			}
			return err
		}
		if found {
			if err := tx.Model(&AttributeMapping{}).Where("id = ?", prior.ID).
				Updates(map[string]interface{}{"superseded_by": next.ID}).Error; err != nil {
				return err
			}
			if err := RecordAudit(ctx, tx, "AttributeMapping", prior.ID, AuditActionSupersede,
				"canonical_value", prior.CanonicalValue, next.CanonicalValue); err != nil {
				return err
			}
		}
		if err := RecordAudit(ctx, tx, "AttributeMapping", next.ID, AuditActionCreate,
			"canonical_value", "", next.CanonicalValue); err != nil {
			return err
		}

		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListActiveMappings loads the live mappings visible to one customer:
// customer-scoped rows plus global rows. Jobs snapshot this once at start.
func ListActiveMappings(ctx context.Context, customer string) ([]AttributeMapping, error) {
	db := config.GetDB()
	var mappings []AttributeMapping
	err := db.WithContext(ctx).
		Where("active = 1 AND (scope = ? OR (scope = ? AND customer = ?))",
			MappingScopeGlobal, MappingScopeCustomer, customer).
		Order("id asc").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}
