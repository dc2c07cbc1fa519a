package syncer

import (
	"errors"
	"fmt"
)

// Entity kinds used in errors, logs and metrics.
const (
	KindRarities   = "rarities"
	KindPrintings  = "printings"
	KindConditions = "conditions"
	KindSets       = "sets"
	KindProducts   = "products"
	KindSkus       = "skus"
)

// ErrIDCountMismatch is wrapped by a PersistenceError when the store returned
// a different number of identifiers than rows written.
var ErrIDCountMismatch = errors.New("store returned wrong number of ids")

// NetworkError is a failed remote fetch. Offset and Limit are zero for
// unpaginated lookups and totals.
type NetworkError struct {
	Kind   string
	Offset int
	Limit  int
	Err    error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("fetch %s at offset %d (limit %d): %v", e.Kind, e.Offset, e.Limit, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failed local write.
type PersistenceError struct {
	Kind string
	Err  error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}
