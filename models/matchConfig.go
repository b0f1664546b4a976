package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"github.com/shopspring/decimal"
)

// CustomerMatchConfig governs the scorer for one customer attribute:
// relative weight, comparison method and the hard-veto flag. Loaded once
// per job start; edits take effect on the next job.
type CustomerMatchConfig struct {
	ID                  int              `gorm:"primary_key" json:"id"`
	Customer            string           `gorm:"size:100;not null;index:uniq_match_config,unique" json:"customer" binding:"required"`
	AttributeName       string           `gorm:"size:100;not null;index:uniq_match_config,unique" json:"attribute_name" binding:"required"`
	Weight              decimal.Decimal  `gorm:"type:decimal(10,4);not null" json:"weight"`
	ComparisonMethod    ComparisonMethod `gorm:"type:enum('exact','similarity','numeric');not null" json:"comparison_method" binding:"required"`
	SimilarityThreshold float64          `gorm:"not null;default:0" json:"similarity_threshold"`
	RequiresExactMatch  *bool            `gorm:"not null;default:false" json:"requires_exact_match"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomerMatchSettings holds the per-customer tolerance knobs. The cited
// defaults (0.10 variance, 0.60/0.85 confidence band) apply when a customer
// has no row; env can override the global defaults.
type CustomerMatchSettings struct {
	ID                int       `gorm:"primary_key" json:"id"`
	Customer          string    `gorm:"size:100;not null;unique" json:"customer" binding:"required"`
	VarianceTolerance float64   `gorm:"not null;default:0.10" json:"variance_tolerance"`
	HiConfThreshold   float64   `gorm:"not null;default:0.85" json:"hi_conf_threshold"`
	NoMatchThreshold  float64   `gorm:"not null;default:0.60" json:"no_match_threshold"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func DefaultMatchSettings(customer string) CustomerMatchSettings {
	return CustomerMatchSettings{
		Customer:          customer,
		VarianceTolerance: config.FloatFromEnv("DEFAULT_VARIANCE_TOLERANCE", 0.10),
		HiConfThreshold:   config.FloatFromEnv("DEFAULT_HI_CONF_THRESHOLD", 0.85),
		NoMatchThreshold:  config.FloatFromEnv("DEFAULT_NO_MATCH_THRESHOLD", 0.60),
	}
}

func matchConfigCacheKey(customer string) string {
	return "CustomerMatchConfig:" + customer
}

type cachedMatchConfig struct {
	Configs  []CustomerMatchConfig `json:"configs"`
	Settings CustomerMatchSettings `json:"settings"`
}

// LoadMatchConfig returns the attribute configs and settings for a customer,
// redis-cached (best effort) with DB fallthrough. A customer with zero
// attribute configs is a configuration error: the job must fail fast rather
// than silently match on nothing.
func LoadMatchConfig(ctx context.Context, customer string) ([]CustomerMatchConfig, CustomerMatchSettings, error) {
	var cached cachedMatchConfig
	if ok, err := config.GetRedisObject(matchConfigCacheKey(customer), &cached); err == nil && ok {
		return cached.Configs, cached.Settings, nil
	}

	db := config.GetDB()
	var configs []CustomerMatchConfig
	if err := db.WithContext(ctx).Where("customer = ?", customer).Order("attribute_name asc").Find(&configs).Error; err != nil {
		return nil, CustomerMatchSettings{}, err
	}
	if len(configs) == 0 {
		return nil, CustomerMatchSettings{}, errors.New("no match config for customer " + customer)
	}

	settings := DefaultMatchSettings(customer)
	var row CustomerMatchSettings
	err := db.WithContext(ctx).Where("customer = ?", customer).First(&row).Error
	if err == nil {
		settings = row
	}

	_ = config.SetRedisObject(matchConfigCacheKey(customer), cachedMatchConfig{Configs: configs, Settings: settings}, 10*time.Minute)
	return configs, settings, nil
}

// UpsertMatchConfig writes one attribute config row and invalidates the
// customer's cache. Next job picks it up.
func UpsertMatchConfig(ctx context.Context, input *CustomerMatchConfig) (*CustomerMatchConfig, error) {
	if input.Weight.IsNegative() {
		return nil, errors.New("weight must be >= 0")
	}
	db := config.GetDB()
	var existing CustomerMatchConfig
	err := db.WithContext(ctx).
		Where("customer = ? AND attribute_name = ?", input.Customer, input.AttributeName).
		First(&existing).Error
	if err == nil {
		input.ID = existing.ID
		input.CreatedAt = existing.CreatedAt
	}
	if err := db.WithContext(ctx).Save(input).Error; err != nil {
		return nil, err
	}
	_ = config.DeleteRedisKeys(matchConfigCacheKey(input.Customer))
	return input, nil
}
