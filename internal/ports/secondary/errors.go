package secondary

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable is matched by every history store open/write failure.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// StoreError wraps a storage failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStoreUnavailable) true for every StoreError.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// MeasurementFailure means the measurement utility could not produce a result.
type MeasurementFailure struct {
	Reason string
	Err    error
}

func (e *MeasurementFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("measurement failed: %s: %v", e.Reason, e.Err)
	}
	return "measurement failed: " + e.Reason
}

func (e *MeasurementFailure) Unwrap() error { return e.Err }

// MeasurementParseError means the utility ran but its output was unusable.
type MeasurementParseError struct {
	Field string
	Err   error
}

func (e *MeasurementParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("measurement output unparseable: %v", e.Err)
	}
	return fmt.Sprintf("measurement output unparseable: field %q: %v", e.Field, e.Err)
}

func (e *MeasurementParseError) Unwrap() error { return e.Err }

// Remote sync errors.
var (
	ErrSyncUnreachable = errors.New("measurement host unreachable")
	ErrSyncDataInvalid = errors.New("measurement host returned invalid data")
)

// Session artifact errors.
var (
	ErrNoSession           = errors.New("no saved session")
	ErrSessionIncompatible = errors.New("saved session has an incompatible format")
)

// ErrElementNotFound is returned by the browser driver when no element matches.
var ErrElementNotFound = errors.New("element not found")
