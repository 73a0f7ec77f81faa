// Package services defines the business logic for complaints.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrComplaintNotFound indicates that no complaint exists with the
	// requested id.
	ErrComplaintNotFound = errors.New("complaint not found")

	// ErrConcurrencyConflict is returned when a conditional write lost to a
	// concurrent change of the same complaint. The caller may re-read and
	// retry.
	ErrConcurrencyConflict = errors.New("complaint was modified concurrently")
)

// StorageError wraps an infrastructure failure of the backing store. It is
// retryable: the request may succeed once the backing recovers.
type StorageError struct {
	Op      string // store operation, e.g. "update_status"
	Backend string // "sql" or "table"
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("complaint store %s (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
