// Package complaint contains the pure business logic for complaint records.
// This is part of the Functional Core - no I/O, only pure functions.
package complaint

import "time"

// Status represents the possible states of a complaint record.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusFiled            Status = "FILED"
	StatusFailed           Status = "FAILED"
	StatusSkippedDuplicate Status = "SKIPPED_DUPLICATE"
)

// InitialStatus returns the status of a newly created complaint record.
func InitialStatus() Status {
	return StatusPending
}

// IsTerminal reports whether a record in status s may never change again.
func IsTerminal(s Status) bool {
	switch s {
	case StatusFiled, StatusFailed, StatusSkippedDuplicate:
		return true
	}
	return false
}

// IsValid reports whether s is a known status.
func IsValid(s Status) bool {
	return s == StatusPending || IsTerminal(s)
}

// BlocksPeriod reports whether a record in status s prevents further filing
// for its period. Only a confirmed filing does.
func BlocksPeriod(s Status) bool {
	return s == StatusFiled
}

// StatusTransitionResult captures the new status and the timestamp to stamp
// on the record.
type StatusTransitionResult struct {
	NewStatus Status
	UpdatedAt time.Time
}

// ApplyStatusTransition returns the record changes for moving to newStatus.
// The caller passes the current time to enable testing.
func ApplyStatusTransition(newStatus Status, now time.Time) StatusTransitionResult {
	return StatusTransitionResult{NewStatus: newStatus, UpdatedAt: now.UTC()}
}
