package matching

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
)

// CanonicalValue is one canonicalizer answer. When no mapping exists the
// raw value passes through unchanged at confidence 0 so exact comparison
// can still run on untransformed data.
type CanonicalValue struct {
	Value      string
	Confidence float64
	IsApproved bool
}

type mappingKey struct {
	attribute string
	value     string
	side      models.SourceSide
}

// MappingSnapshot is the immutable per-job view of active mappings for one
// customer (customer rows shadow global rows). Jobs load it once at start;
// mapping writes land in the next run.
type MappingSnapshot struct {
	customer string
	byKey    map[mappingKey]models.AttributeMapping
}

// LoadMappingSnapshot reads the active mappings visible to a customer.
func LoadMappingSnapshot(ctx context.Context, customer string) (*MappingSnapshot, error) {
	rows, err := models.ListActiveMappings(ctx, customer)
	if err != nil {
		return nil, err
	}
	return NewMappingSnapshot(customer, rows), nil
}

// NewMappingSnapshot indexes mapping rows for lookup. Global rows are
// inserted first so a customer row for the same key wins.
func NewMappingSnapshot(customer string, rows []models.AttributeMapping) *MappingSnapshot {
	snap := &MappingSnapshot{
		customer: customer,
		byKey:    make(map[mappingKey]models.AttributeMapping, len(rows)),
	}
	for _, scope := range []models.MappingScope{models.MappingScopeGlobal, models.MappingScopeCustomer} {
		for _, row := range rows {
			if row.Scope != scope {
				continue
			}
			snap.byKey[mappingKey{row.AttributeName, row.SourceValue, row.SourceSide}] = row
		}
	}
	return snap
}

// Canonicalize resolves one attribute value for one side. Side-specific
// mappings win over side "any"; a missing mapping falls back to the
// normalized raw value at confidence 0.
func (s *MappingSnapshot) Canonicalize(attribute, rawValue string, side models.SourceSide) CanonicalValue {
	normalized := utils.NormalizeAttributeValue(rawValue)
	if row, ok := s.byKey[mappingKey{attribute, normalized, side}]; ok {
		return CanonicalValue{Value: row.CanonicalValue, Confidence: row.Confidence, IsApproved: row.IsApproved != nil && *row.IsApproved}
	}
	if row, ok := s.byKey[mappingKey{attribute, normalized, models.SourceSideAny}]; ok {
		return CanonicalValue{Value: row.CanonicalValue, Confidence: row.Confidence, IsApproved: row.IsApproved != nil && *row.IsApproved}
	}
	return CanonicalValue{Value: normalized, Confidence: 0, IsApproved: false}
}

type mappingWriter func(context.Context, *models.NewAttributeMapping) (*models.AttributeMapping, error)

// ApplyMapping writes a mapping through the versioned store. A lost race
// against a concurrent writer (ErrMappingContention) is retried once
// before surfacing ErrConcurrencyConflict; every other write error is the
// store's real failure and passes through unchanged.
func ApplyMapping(ctx context.Context, input *models.NewAttributeMapping) (*models.AttributeMapping, error) {
	return applyMapping(ctx, input, models.WriteAttributeMapping)
}

func applyMapping(ctx context.Context, input *models.NewAttributeMapping, write mappingWriter) (*models.AttributeMapping, error) {
	mapping, err := write(ctx, input)
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, models.ErrMappingContention) {
		return nil, err
	}
	mapping, err = write(ctx, input)
	if err != nil {
		if errors.Is(err, models.ErrMappingContention) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}
	return mapping, nil
}
