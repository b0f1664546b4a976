package utils

import (
	"strings"

	"github.com/google/uuid"
)

func NewTrue() *bool {
	b := true
	return &b
}

// NormalizeAttributeValue folds raw feed values for lookup:
// trims, collapses inner whitespace, uppercases. Mapping keys and
// comparisons always run on normalized values.
func NormalizeAttributeValue(raw string) string {
	fields := strings.Fields(raw)
	return strings.ToUpper(strings.Join(fields, " "))
}

func NewCorrelationId() string {
	return uuid.NewString()
}
