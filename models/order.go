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

// Order is one purchase-order line from the upstream order feed.
// This service only reads orders; creation and lifecycle flips are owned
// by the feed (seed tooling writes them for local runs).
type Order struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Customer         string          `gorm:"size:100;not null;index:idx_order_scope" json:"customer" binding:"required"`
	PoNumber         string          `gorm:"size:100;not null;index:idx_order_scope" json:"po_number" binding:"required"`
	StyleCode        string          `gorm:"size:100;not null" json:"style_code" binding:"required"`
	ColorDescription string          `gorm:"size:255;default:null" json:"color_description"`
	DeliveryMethod   string          `gorm:"size:100;default:null" json:"delivery_method"`
	Quantity         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	OrderDate        time.Time       `gorm:"not null" json:"order_date" binding:"required"`
	LifecycleFlag    LifecycleFlag   `gorm:"type:enum('ACTIVE','CANCELLED');not null;default:'ACTIVE'" json:"lifecycle_flag"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ListOrders returns orders for a customer, optionally narrowed to one PO.
// Ordering is fixed (id asc) so one job run sees a stable candidate order.
func ListOrders(ctx context.Context, customer string, poNumber string, flags ...LifecycleFlag) ([]Order, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Where("customer = ?", customer)
	if poNumber != "" {
		q = q.Where("po_number = ?", poNumber)
	}
	if len(flags) > 0 {
		q = q.Where("lifecycle_flag IN ?", flags)
	}
	var orders []Order
	if err := q.Order("id asc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var order Order
	if err := db.WithContext(ctx).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &order, nil
}
