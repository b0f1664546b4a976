package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shipment is one physical shipment line from the upstream shipment feed.
// A shipment split across orders keeps one row here; the split lives in
// reconciliation_results sharing a split_group id. SplitGroup/ParentShipmentId
// are populated when the feed itself delivers pre-split records.
type Shipment struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Customer         string          `gorm:"size:100;not null;index:idx_shipment_scope" json:"customer" binding:"required"`
	PoNumber         string          `gorm:"size:100;not null;index:idx_shipment_scope" json:"po_number" binding:"required"`
	StyleCode        string          `gorm:"size:100;not null" json:"style_code" binding:"required"`
	ColorDescription string          `gorm:"size:255;default:null" json:"color_description"`
	DeliveryMethod   string          `gorm:"size:100;default:null" json:"delivery_method"`
	Quantity         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	ShippedDate      time.Time       `gorm:"not null" json:"shipped_date" binding:"required"`
	SplitGroup       string          `gorm:"size:64;default:null;index" json:"split_group"`
	ParentShipmentId *int            `gorm:"default:null" json:"parent_shipment_id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ListShipments returns shipments for a customer, optionally narrowed to one PO,
// in stable id order.
func ListShipments(ctx context.Context, customer string, poNumber string) ([]Shipment, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Where("customer = ?", customer)
	if poNumber != "" {
		q = q.Where("po_number = ?", poNumber)
	}
	var shipments []Shipment
	if err := q.Order("id asc").Find(&shipments).Error; err != nil {
		return nil, err
	}
	return shipments, nil
}

func GetShipment(ctx context.Context, id int) (*Shipment, error) {
	db := config.GetDB()
	var shipment Shipment
	if err := db.WithContext(ctx).First(&shipment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &shipment, nil
}
