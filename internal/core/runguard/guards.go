// Package runguard decides whether a filing run may start.
// This is part of the Functional Core - no I/O, only pure functions.
package runguard

import (
	"fmt"
	"time"
)

// DenyReason classifies a refused admission.
type DenyReason string

const (
	ReasonNone          DenyReason = ""
	ReasonAlreadyFiled  DenyReason = "AlreadyFiled"
	ReasonRunInProgress DenyReason = "RunInProgress"
)

// OwnerLiveness is what the caller could learn about the lock holder's process.
type OwnerLiveness int

const (
	// OwnerUnknown means the holder is on another host or its liveness could not be checked.
	OwnerUnknown OwnerLiveness = iota
	OwnerAlive
	OwnerDead
)

// Lock describes an existing run lock.
type Lock struct {
	Token      string
	PID        int
	Host       string
	Period     string
	AcquiredAt time.Time
}

// AdmissionContext provides everything needed to decide admission.
// Populated by the caller inside the same transaction that will write the lock.
type AdmissionContext struct {
	Period         string
	PeriodHasFiled bool
	Existing       *Lock
	OwnerLiveness  OwnerLiveness
	Now            time.Time
	StaleAfter     time.Duration
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed      bool
	Reason       DenyReason
	Message      string
	ReclaimStale bool   // the existing lock must be removed before acquiring
	StaleReason  string // why the existing lock was considered stale
}

// Decide evaluates whether a filing run for ctx.Period may start.
// Rules:
//   - a period with a FILED complaint is never admitted (AlreadyFiled)
//   - a live, fresh lock denies admission (RunInProgress)
//   - a lock whose owner is dead, or which is older than StaleAfter, is reclaimed
func Decide(ctx AdmissionContext) Decision {
	if ctx.PeriodHasFiled {
		return Decision{
			Allowed: false,
			Reason:  ReasonAlreadyFiled,
			Message: fmt.Sprintf("a complaint for %s has already been filed", ctx.Period),
		}
	}

	if ctx.Existing == nil {
		return Decision{Allowed: true}
	}

	if stale, why := IsStale(*ctx.Existing, ctx.OwnerLiveness, ctx.Now, ctx.StaleAfter); stale {
		return Decision{Allowed: true, ReclaimStale: true, StaleReason: why}
	}

	return Decision{
		Allowed: false,
		Reason:  ReasonRunInProgress,
		Message: fmt.Sprintf("filing run for %s in progress (pid %d on %s since %s)",
			ctx.Existing.Period, ctx.Existing.PID, ctx.Existing.Host, ctx.Existing.AcquiredAt.Format(time.RFC3339)),
	}
}

// IsStale reports whether lock may be reclaimed, and why.
func IsStale(lock Lock, liveness OwnerLiveness, now time.Time, staleAfter time.Duration) (bool, string) {
	if liveness == OwnerDead {
		return true, fmt.Sprintf("owner pid %d on %s is no longer running", lock.PID, lock.Host)
	}
	if staleAfter > 0 {
		age := now.Sub(lock.AcquiredAt)
		if age > staleAfter {
			return true, fmt.Sprintf("lock held for %s exceeds %s", age.Round(time.Second), staleAfter)
		}
	}
	return false, ""
}
