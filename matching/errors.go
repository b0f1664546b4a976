package matching

import (
	"errors"
	"fmt"
)

// ErrConcurrencyConflict surfaces a lost race (mapping write or claim)
// after the single built-in retry has been spent.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ConfigurationError aborts the whole job for the affected customer.
// No partial results are written past the point it is detected.
type ConfigurationError struct {
	Customer string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for customer %s: %v", e.Customer, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DataIntegrityError marks one bad pair. The job skips it, logs, and
// continues; it is never fatal.
type DataIntegrityError struct {
	Entity string
	Id     int
	Err    error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error on %s %d: %v", e.Entity, e.Id, e.Err)
}

func (e *DataIntegrityError) Unwrap() error { return e.Err }
